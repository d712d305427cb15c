package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/estimator"
	"github.com/couchcryptid/quake-intensity-service/internal/gazetteer"
	"github.com/couchcryptid/quake-intensity-service/internal/weather"
)

const (
	// requestTimeout bounds how long a request waits for the first gazetteer load.
	requestTimeout = 5 * time.Second

	// weatherTimeout bounds a request that may refresh weather observations.
	weatherTimeout = 15 * time.Second
)

// Gazetteers provides the active gazetteer. *gazetteer.Store implements it.
type Gazetteers interface {
	Wait(ctx context.Context) (*gazetteer.Gazetteer, error)
	Load(ctx context.Context) gazetteer.LoadResult
}

// Locator resolves a coordinate to a district. *gazetteer.CachedLocator implements it.
type Locator interface {
	Nearest(ctx context.Context, lat, lon float64) (gazetteer.Match, bool, error)
}

// Assessor builds assessments. *estimator.Assessor implements it.
type Assessor interface {
	Assess(ctx context.Context, req estimator.AssessRequest) (domain.Assessment, error)
}

// AssessmentLog records and lists recent assessments. *pipeline.RecentStore implements it.
type AssessmentLog interface {
	Add(a domain.Assessment)
	Recent(n int) []domain.Assessment
}

// QuakeList lists assessed quakes. *pipeline.QuakeLog implements it.
type QuakeList interface {
	List(f domain.QuakeFilter) []domain.QuakeSummary
	Stats(now time.Time) domain.QuakeStats
}

// WeatherFinder finds the weather station nearest a point. *weather.Service implements it.
type WeatherFinder interface {
	Nearest(ctx context.Context, lat, lon float64) (weather.Nearest, error)
}

// API serves the /api/v1 routes.
type API struct {
	gazetteers Gazetteers
	locator    Locator
	assessor   Assessor
	recent     AssessmentLog
	quakes     QuakeList
	weather    WeatherFinder
	logger     *slog.Logger
}

// APIOption enables an optional route group.
type APIOption func(*API)

// WithQuakes serves the quake list and daily stats from q.
func WithQuakes(q QuakeList) APIOption {
	return func(a *API) { a.quakes = q }
}

// WithWeather serves nearest-station weather from w.
func WithWeather(w WeatherFinder) APIOption {
	return func(a *API) { a.weather = w }
}

// NewAPI creates the API handlers.
func NewAPI(gazetteers Gazetteers, locator Locator, assessor Assessor, recent AssessmentLog, logger *slog.Logger, opts ...APIOption) *API {
	a := &API{
		gazetteers: gazetteers,
		locator:    locator,
		assessor:   assessor,
		recent:     recent,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/regions", a.handleRegions)
	mux.HandleFunc("GET /api/v1/regions/nearest", a.handleNearest)
	mux.HandleFunc("GET /api/v1/regions/{county}/{district}", a.handleRegion)
	mux.HandleFunc("POST /api/v1/gazetteer/reload", a.handleReload)
	mux.HandleFunc("POST /api/v1/intensity", a.handleIntensity)
	mux.HandleFunc("POST /api/v1/drill", a.handleDrill)
	mux.HandleFunc("GET /api/v1/assessments/recent", a.handleRecent)
	if a.quakes != nil {
		mux.HandleFunc("GET /api/v1/quakes", a.handleQuakes)
		mux.HandleFunc("GET /api/v1/quakes/stats", a.handleQuakeStats)
	}
	if a.weather != nil {
		mux.HandleFunc("GET /api/v1/weather/nearest", a.handleWeatherNearest)
	}
}

type regionsResponse struct {
	Version uint64          `json:"version"`
	Count   int             `json:"count"`
	Regions []domain.Region `json:"regions"`
}

func (a *API) handleRegions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	g, err := a.gazetteers.Wait(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	regions := g.Regions()
	writeJSON(w, http.StatusOK, regionsResponse{Version: g.Version(), Count: len(regions), Regions: regions})
}

type nearestResponse struct {
	gazetteer.Match
	Resolved bool `json:"resolved"`
}

func (a *API) handleNearest(w http.ResponseWriter, r *http.Request) {
	lat, err := parseQueryFloat(r, "lat")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	lon, err := parseQueryFloat(r, "lon")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	m, ok, err := a.locator.Nearest(ctx, lat, lon)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, nearestResponse{Match: m, Resolved: ok})
}

func (a *API) handleRegion(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	g, err := a.gazetteers.Wait(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	region, ok := g.Lookup(r.PathValue("county"), r.PathValue("district"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("region not found"))
		return
	}
	writeJSON(w, http.StatusOK, region)
}

type reloadResponse struct {
	Source   string                   `json:"source"`
	Fallback bool                     `json:"fallback"`
	Error    string                   `json:"error,omitempty"`
	Regions  int                      `json:"regions"`
	Version  uint64                   `json:"version"`
	Skipped  []gazetteer.SkippedEntry `json:"skipped"`
}

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	res := a.gazetteers.Load(r.Context())

	resp := reloadResponse{
		Source:   res.Source,
		Fallback: res.Fallback,
		Regions:  res.Gazetteer.Len(),
		Version:  res.Gazetteer.Version(),
		Skipped:  res.Diagnostics.Skipped,
	}
	if resp.Skipped == nil {
		resp.Skipped = []gazetteer.SkippedEntry{}
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type intensityRequest struct {
	QuakeID   string                  `json:"quake_id"`
	Location  string                  `json:"location"`
	Lat       *float64                `json:"lat"`
	Lon       *float64                `json:"lon"`
	Magnitude *float64                `json:"magnitude"`
	Depth     float64                 `json:"depth"`
	Threshold *float64                `json:"threshold"`
	User      *estimator.UserLocation `json:"user"`
}

func (a *API) handleIntensity(w http.ResponseWriter, r *http.Request) {
	var body intensityRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.Lat == nil || body.Lon == nil || body.Magnitude == nil {
		writeError(w, http.StatusBadRequest, errors.New("lat, lon and magnitude are required"))
		return
	}

	a.assess(w, r, estimator.AssessRequest{
		QuakeID:  body.QuakeID,
		Source:   domain.SourceAPI,
		Location: body.Location,
		Epicenter: domain.Epicenter{
			Lat:       *body.Lat,
			Lon:       *body.Lon,
			Magnitude: *body.Magnitude,
			Depth:     body.Depth,
		},
		Threshold: body.Threshold,
		User:      body.User,
	})
}

type drillRequest struct {
	User *estimator.UserLocation `json:"user"`
}

func (a *API) handleDrill(w http.ResponseWriter, r *http.Request) {
	var body drillRequest
	if err := decodeBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.assess(w, r, estimator.Drill(body.User))
}

func (a *API) assess(w http.ResponseWriter, r *http.Request, req estimator.AssessRequest) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	assessment, err := a.assessor.Assess(ctx, req)
	switch {
	case errors.Is(err, domain.ErrInvalidEpicenter):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		a.logger.Warn("assessment failed", "source", req.Source, "error", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	a.recent.Add(assessment)
	writeJSON(w, http.StatusOK, assessment)
}

func (a *API) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessments": a.recent.Recent(limit)})
}

type quakesResponse struct {
	Since        time.Time             `json:"since,omitzero"`
	MinMagnitude float64               `json:"min_magnitude"`
	Count        int                   `json:"count"`
	Quakes       []domain.QuakeSummary `json:"quakes"`
}

func (a *API) handleQuakes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since, err := domain.WindowStart(q.Get("since"), domain.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var minMagnitude float64
	if s := q.Get("min_magnitude"); s != "" && s != domain.WindowAll {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			writeError(w, http.StatusBadRequest, errors.New("invalid min_magnitude"))
			return
		}
		minMagnitude = v
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	quakes := a.quakes.List(domain.QuakeFilter{Since: since, MinMagnitude: minMagnitude, Limit: limit})
	writeJSON(w, http.StatusOK, quakesResponse{Since: since, MinMagnitude: minMagnitude, Count: len(quakes), Quakes: quakes})
}

func (a *API) handleQuakeStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.quakes.Stats(domain.Now()))
}

func (a *API) handleWeatherNearest(w http.ResponseWriter, r *http.Request) {
	lat, err := parseQueryFloat(r, "lat")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	lon, err := parseQueryFloat(r, "lon")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !domain.ValidCoordinate(lat, lon) {
		writeError(w, http.StatusBadRequest, errors.New("coordinates out of range"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), weatherTimeout)
	defer cancel()

	n, err := a.weather.Nearest(ctx, lat, lon)
	switch {
	case errors.Is(err, weather.ErrNoStations):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		a.logger.Warn("weather lookup failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid limit")
	}
	return n, nil
}

func parseQueryFloat(r *http.Request, key string) (float64, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, errors.New("missing query parameter " + key)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("invalid query parameter " + key)
	}
	return v, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeJSON encodes v before writing the header so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n')) //nolint:errcheck // best-effort response
}
