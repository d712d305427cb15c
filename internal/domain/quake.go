package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sources of an estimation.
const (
	SourceCWA   = "cwa"
	SourceDrill = "drill"
	SourceAPI   = "api"
	SourceMock  = "mock"
)

// Taipei is Taiwan's fixed UTC+8 zone. Feed times and calendar days use it.
var Taipei = time.FixedZone("CST", 8*60*60)

// Station is an observed intensity reading reported with a quake.
type Station struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	County    string  `json:"county"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Intensity int     `json:"intensity"`
}

// QuakeReport is an earthquake report as published by the feed.
type QuakeReport struct {
	ID           string    `json:"id"`
	OriginTime   time.Time `json:"origin_time"`
	Epicenter    Epicenter `json:"epicenter"`
	Location     string    `json:"location"`
	MaxIntensity int       `json:"max_intensity"`
	ReportURL    string    `json:"report_url,omitempty"`
	Content      string    `json:"content,omitempty"`
	Stations     []Station `json:"stations,omitempty"`
}

// QuakeMessage is the JSON payload carried on the source topic.
type QuakeMessage struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	OriginTime   time.Time `json:"origin_time"`
	Location     string    `json:"location"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	Magnitude    float64   `json:"magnitude"`
	Depth        float64   `json:"depth"`
	MaxIntensity int       `json:"max_intensity,omitempty"`
}

// Epicenter returns the estimation input described by the message.
func (m QuakeMessage) Epicenter() Epicenter {
	return Epicenter{Lat: m.Lat, Lon: m.Lon, Magnitude: m.Magnitude, Depth: m.Depth}
}

// NewQuakeMessage converts a feed report into its wire form.
func NewQuakeMessage(r QuakeReport, source string) QuakeMessage {
	return QuakeMessage{
		ID:           r.ID,
		Source:       source,
		OriginTime:   r.OriginTime,
		Location:     r.Location,
		Lat:          r.Epicenter.Lat,
		Lon:          r.Epicenter.Lon,
		Magnitude:    r.Epicenter.Magnitude,
		Depth:        r.Epicenter.Depth,
		MaxIntensity: r.MaxIntensity,
	}
}

// ErrMalformedMessage marks a source-topic message that is not a quake message.
var ErrMalformedMessage = errors.New("malformed quake message")

// ParseQuakeMessage decodes and validates a raw source-topic message.
func ParseQuakeMessage(raw RawEvent) (QuakeMessage, error) {
	var msg QuakeMessage
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		return QuakeMessage{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if err := msg.Epicenter().Validate(); err != nil {
		return QuakeMessage{}, fmt.Errorf("quake %q: %w", msg.ID, err)
	}
	if msg.ID == "" {
		msg.ID = string(raw.Key)
	}
	if msg.Source == "" {
		msg.Source = SourceCWA
	}
	return msg, nil
}

// ParseIntensityLabel extracts the integer level from a CWA intensity label
// such as "4級", "5弱" or "6強". Unparseable labels yield 0.
func ParseIntensityLabel(label string) int {
	label = strings.TrimSpace(label)
	end := strings.IndexFunc(label, func(r rune) bool { return r < '0' || r > '9' })
	if end == -1 {
		end = len(label)
	}
	n, err := strconv.Atoi(label[:end])
	if err != nil {
		return 0
	}
	return n
}
