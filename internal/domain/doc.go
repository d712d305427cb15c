// Package domain models earthquake epicenters, administrative regions, and
// the district-level shaking intensity estimated from them.
//
// # Data Source
//
// Earthquake reports originate from the Central Weather Administration (CWA)
// open-data API. The collector polls the significant (E-A0016-001) and local
// (E-A0015-001) report datasets, converts each report into a QuakeMessage and
// publishes it as JSON to the Kafka source topic.
//
// # CWA Data Conventions
//
// Coordinates:
//
//	EpicenterLatitude / EpicenterLongitude are decimal degrees (WGS-84),
//	delivered as JSON numbers or numeric strings depending on the dataset.
//
// Depth:
//
//	FocalDepth in kilometres, always >= 0.
//
// Intensity labels:
//
//	The CWA seismic intensity scale runs 0 through 7. Levels 5 and 6 are split
//	into weak/strong halves: "5弱", "5強", "6弱", "6強". Area labels carry a
//	"級" suffix ("4級"). Only the integer part is kept when labels are parsed.
//
// Administrative names:
//
//	County names appear with either "台" or "臺" (e.g. "台東縣" / "臺東縣").
//	NormalizeName folds both to "臺" so lookups match the gazetteer.
//
// # Intensity Model
//
// Estimated intensity is an illustrative attenuation law, not a calibrated
// seismological model:
//
//	base      = M - 2*log10(max(distanceKm, 5)) - 0.0045*depthKm
//	intensity = max(0, base) * siteFactor
//
// Distance is the great-circle (Haversine) distance between the epicenter and
// the district reference point, with an Earth radius of 6371 km. Values are
// rounded half-up to one decimal place when placed in an IntensityMap.
//
// # Personal Risk
//
// A user's district intensity maps onto a RiskTier: danger at >= 4, warning at
// >= 2, safe otherwise. Thresholds are configurable.
package domain
