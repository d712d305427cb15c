package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Assessment is the estimation result published to the sink topic and served
// by the API.
type Assessment struct {
	ID           string         `json:"id"`
	QuakeID      string         `json:"quake_id,omitempty"`
	Source       string         `json:"source"`
	Location     string         `json:"location,omitempty"`
	Epicenter    Epicenter      `json:"epicenter"`
	Threshold    float64        `json:"threshold"`
	Intensities  IntensityMap   `json:"intensities"`
	Affected     []AffectedArea `json:"affected"`
	MaxIntensity float64        `json:"max_intensity"`
	Reported     int            `json:"reported_intensity,omitempty"` // feed-observed maximum level, 0 if unknown
	Personal     *PersonalRisk  `json:"personal,omitempty"`
	OriginTime   time.Time      `json:"origin_time,omitzero"`
	AssessedAt   time.Time      `json:"assessed_at"`
}
