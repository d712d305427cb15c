package domain

// RiskTier classifies shaking at the user's district.
type RiskTier string

const (
	TierSafe    RiskTier = "safe"
	TierWarning RiskTier = "warning"
	TierDanger  RiskTier = "danger"
)

// TierThresholds are the intensity cut-offs for warning and danger.
type TierThresholds struct {
	Warning float64 `json:"warning"`
	Danger  float64 `json:"danger"`
}

// DefaultTierThresholds matches the dashboard: warning from 2, danger from 4.
var DefaultTierThresholds = TierThresholds{Warning: 2, Danger: 4}

// TierFor maps an intensity to a tier.
func (t TierThresholds) TierFor(intensity float64) RiskTier {
	switch {
	case intensity >= t.Danger:
		return TierDanger
	case intensity >= t.Warning:
		return TierWarning
	default:
		return TierSafe
	}
}

// PersonalRisk is the estimate for the user's own district.
type PersonalRisk struct {
	Region    RegionKey `json:"region"`
	Intensity float64   `json:"intensity"`
	Tier      RiskTier  `json:"tier"`
	Resolved  bool      `json:"resolved"` // false when the district is unknown or absent from the map
}

// AssessPersonalRisk looks up the user's district in m. An unknown or missing
// district yields intensity 0 and the safe tier with Resolved=false.
func AssessPersonalRisk(m IntensityMap, key RegionKey, t TierThresholds) PersonalRisk {
	risk := PersonalRisk{Region: key, Tier: TierSafe}
	if key.IsUnknown() {
		return risk
	}
	v, ok := m.Lookup(key)
	if !ok {
		return risk
	}
	risk.Intensity = v
	risk.Tier = t.TierFor(v)
	risk.Resolved = true
	return risk
}
