// Package cwa reads earthquake reports and weather-station observations from
// the Central Weather Administration open-data API.
package cwa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
)

// DefaultBaseURL is the datastore root of the CWA open-data API.
const DefaultBaseURL = "https://opendata.cwa.gov.tw/api/v1/rest/datastore"

// Datasets.
const (
	DatasetSignificant = "E-A0016-001"
	DatasetLocal       = "E-A0015-001"
	DatasetWeather     = "O-A0001-001"
)

// Client fetches earthquake reports and weather observations.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a CWA client. ratePerSecond <= 0 disables rate limiting.
func NewClient(apiKey, baseURL string, timeout time.Duration, ratePerSecond float64, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(limit, 1),
		metrics: metrics,
		logger:  logger,
	}
}

// SignificantReports returns the numbered (felt island-wide) reports, newest first.
func (c *Client) SignificantReports(ctx context.Context) ([]domain.QuakeReport, error) {
	return c.fetch(ctx, DatasetSignificant)
}

// LocalReports returns the small-area reports, newest first.
func (c *Client) LocalReports(ctx context.Context) ([]domain.QuakeReport, error) {
	return c.fetch(ctx, DatasetLocal)
}

// WeatherObservations returns the latest reading of every automatic weather
// station. Stations without WGS84 coordinates are skipped.
func (c *Client) WeatherObservations(ctx context.Context) ([]domain.WeatherObservation, error) {
	var feed weatherResponse
	if err := c.get(ctx, DatasetWeather, &feed); err != nil {
		return nil, err
	}

	observations := make([]domain.WeatherObservation, 0, len(feed.Records.Station))
	for _, st := range feed.Records.Station {
		o, err := st.toObservation()
		if err != nil {
			c.logger.Warn("skipping malformed station", "dataset", DatasetWeather, "station_id", st.StationID, "error", err)
			continue
		}
		observations = append(observations, o)
	}
	return observations, nil
}

func (c *Client) fetch(ctx context.Context, dataset string) ([]domain.QuakeReport, error) {
	var feed response
	if err := c.get(ctx, dataset, &feed); err != nil {
		return nil, err
	}

	reports := make([]domain.QuakeReport, 0, len(feed.Records.Earthquake))
	for _, q := range feed.Records.Earthquake {
		r, err := q.toReport()
		if err != nil {
			c.logger.Warn("skipping malformed report", "dataset", dataset, "earthquake_no", q.EarthquakeNo.String(), "error", err)
			continue
		}
		reports = append(reports, r)
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].OriginTime.After(reports[j].OriginTime)
	})
	return reports, nil
}

// get decodes one dataset into v, rate-limited and instrumented per dataset.
func (c *Client) get(ctx context.Context, dataset string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", dataset, err)
	}

	start := time.Now()
	err := c.doRequest(ctx, dataset, v)
	c.metrics.FeedAPIDuration.WithLabelValues(dataset).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FeedRequests.WithLabelValues(dataset, "error").Inc()
		return err
	}
	c.metrics.FeedRequests.WithLabelValues(dataset, "success").Inc()
	return nil
}

func (c *Client) doRequest(ctx context.Context, dataset string, v any) error {
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, dataset, url.Values{"Authorization": {c.apiKey}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", dataset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("cwa API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CWA API response types.

type response struct {
	Success string  `json:"success"`
	Records records `json:"records"`
}

type records struct {
	Earthquake []earthquake `json:"Earthquake"`
}

type earthquake struct {
	EarthquakeNo   flexString     `json:"EarthquakeNo"`
	ReportContent  string         `json:"ReportContent"`
	ReportImageURI string         `json:"ReportImageURI"`
	Web            string         `json:"Web"`
	EarthquakeInfo earthquakeInfo `json:"EarthquakeInfo"`
	Intensity      intensity      `json:"Intensity"`
}

type earthquakeInfo struct {
	OriginTime          string    `json:"OriginTime"`
	FocalDepth          flexFloat `json:"FocalDepth"`
	Epicenter           epicenter `json:"Epicenter"`
	EarthquakeMagnitude magnitude `json:"EarthquakeMagnitude"`
}

type epicenter struct {
	Location           string    `json:"Location"`
	EpicenterLatitude  flexFloat `json:"EpicenterLatitude"`
	EpicenterLongitude flexFloat `json:"EpicenterLongitude"`
}

type magnitude struct {
	MagnitudeType  string    `json:"MagnitudeType"`
	MagnitudeValue flexFloat `json:"MagnitudeValue"`
}

type intensity struct {
	ShakingArea []shakingArea `json:"ShakingArea"`
}

type shakingArea struct {
	CountyName    string    `json:"CountyName"`
	AreaIntensity string    `json:"AreaIntensity"`
	EqStation     []station `json:"EqStation"`
}

type station struct {
	StationID        string    `json:"StationID"`
	StationName      string    `json:"StationName"`
	StationLatitude  flexFloat `json:"StationLatitude"`
	StationLongitude flexFloat `json:"StationLongitude"`
	SeismicIntensity string    `json:"SeismicIntensity"`
}

func (q earthquake) toReport() (domain.QuakeReport, error) {
	info := q.EarthquakeInfo
	origin, err := time.ParseInLocation("2006-01-02 15:04:05", info.OriginTime, domain.Taipei)
	if err != nil {
		return domain.QuakeReport{}, fmt.Errorf("origin time %q: %w", info.OriginTime, err)
	}

	ep := domain.Epicenter{
		Lat:       float64(info.Epicenter.EpicenterLatitude),
		Lon:       float64(info.Epicenter.EpicenterLongitude),
		Magnitude: float64(info.EarthquakeMagnitude.MagnitudeValue),
		Depth:     float64(info.FocalDepth),
	}
	if err := ep.Validate(); err != nil {
		return domain.QuakeReport{}, err
	}

	id := q.EarthquakeNo.String()
	if id == "" {
		id = origin.UTC().Format("20060102T150405Z")
	}

	r := domain.QuakeReport{
		ID:         id,
		OriginTime: origin.UTC(),
		Epicenter:  ep,
		Location:   info.Epicenter.Location,
		ReportURL:  q.Web,
		Content:    q.ReportContent,
	}
	for _, area := range q.Intensity.ShakingArea {
		if level := domain.ParseIntensityLabel(area.AreaIntensity); level > r.MaxIntensity {
			r.MaxIntensity = level
		}
		for _, s := range area.EqStation {
			if s.StationLatitude == 0 || s.StationLongitude == 0 {
				continue
			}
			r.Stations = append(r.Stations, domain.Station{
				ID:        s.StationID,
				Name:      s.StationName,
				County:    area.CountyName,
				Lat:       float64(s.StationLatitude),
				Lon:       float64(s.StationLongitude),
				Intensity: domain.ParseIntensityLabel(s.SeismicIntensity),
			})
		}
	}
	return r, nil
}

// Weather dataset types.

type weatherResponse struct {
	Success string         `json:"success"`
	Records weatherRecords `json:"records"`
}

type weatherRecords struct {
	Station []weatherStation `json:"Station"`
}

type weatherStation struct {
	StationName    string         `json:"StationName"`
	StationID      string         `json:"StationId"`
	ObsTime        obsTime        `json:"ObsTime"`
	GeoInfo        geoInfo        `json:"GeoInfo"`
	WeatherElement weatherElement `json:"WeatherElement"`
}

type obsTime struct {
	DateTime string `json:"DateTime"`
}

type geoInfo struct {
	Coordinates []coordinate `json:"Coordinates"`
	CountyName  string       `json:"CountyName"`
	TownName    string       `json:"TownName"`
}

type coordinate struct {
	CoordinateName   string    `json:"CoordinateName"`
	StationLatitude  flexFloat `json:"StationLatitude"`
	StationLongitude flexFloat `json:"StationLongitude"`
}

type weatherElement struct {
	Weather          string     `json:"Weather"`
	Now              nowElement `json:"Now"`
	WindDirection    flexFloat  `json:"WindDirection"`
	WindSpeed        flexFloat  `json:"WindSpeed"`
	AirTemperature   flexFloat  `json:"AirTemperature"`
	RelativeHumidity flexFloat  `json:"RelativeHumidity"`
}

type nowElement struct {
	Precipitation flexFloat `json:"Precipitation"`
}

// missingReading is the sentinel CWA stations report for an absent value.
const missingReading = -99

func (st weatherStation) toObservation() (domain.WeatherObservation, error) {
	var wgs84 *coordinate
	for i := range st.GeoInfo.Coordinates {
		if st.GeoInfo.Coordinates[i].CoordinateName == "WGS84" {
			wgs84 = &st.GeoInfo.Coordinates[i]
			break
		}
	}
	if wgs84 == nil {
		return domain.WeatherObservation{}, errors.New("no WGS84 coordinates")
	}
	lat, lon := float64(wgs84.StationLatitude), float64(wgs84.StationLongitude)
	if !domain.ValidCoordinate(lat, lon) {
		return domain.WeatherObservation{}, fmt.Errorf("coordinates (%g, %g) out of range", lat, lon)
	}

	observed, err := parseObsTime(st.ObsTime.DateTime)
	if err != nil {
		return domain.WeatherObservation{}, err
	}

	el := st.WeatherElement
	weather := el.Weather
	if weather == "-99" {
		weather = ""
	}
	return domain.WeatherObservation{
		StationID:        st.StationID,
		StationName:      st.StationName,
		County:           st.GeoInfo.CountyName,
		Town:             st.GeoInfo.TownName,
		Lat:              lat,
		Lon:              lon,
		ObservedAt:       observed,
		Weather:          weather,
		AirTemperature:   reading(el.AirTemperature),
		RelativeHumidity: reading(el.RelativeHumidity),
		WindSpeed:        reading(el.WindSpeed),
		WindDirection:    reading(el.WindDirection),
		Precipitation:    reading(el.Now.Precipitation),
	}, nil
}

func parseObsTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, domain.Taipei)
	if err != nil {
		return time.Time{}, fmt.Errorf("observation time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func reading(f flexFloat) *float64 {
	if f <= missingReading {
		return nil
	}
	v := float64(f)
	return &v
}

// flexFloat accepts both JSON numbers and numeric strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %s: %w", b, err)
	}
	*f = flexFloat(v)
	return nil
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), `"`)
	if str == "null" {
		str = ""
	}
	*s = flexString(str)
	return nil
}

func (s flexString) String() string { return string(s) }
