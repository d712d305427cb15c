// Command validate performs data-quality checks on a gazetteer file and,
// optionally, on the fixtures produced by genmock. It verifies that every
// entry is well formed, that coordinates and site factors are plausible, that
// the built-in counties are covered, and that fixture assessments match what
// the estimator computes today.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -gazetteer data/regions.yaml \
//	  -quakes data/mock/quake_messages.json \
//	  -assessments data/mock/assessments.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/estimator"
	"github.com/couchcryptid/quake-intensity-service/internal/gazetteer"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
)

// Plausible bounds for districts administered from Taipei, outlying islands included.
const (
	minLat, maxLat = 21.5, 26.5
	minLon, maxLon = 118.0, 122.5
	maxSiteFactor  = 3.0
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	gazetteerPath := flag.String("gazetteer", "", "path to the gazetteer YAML or JSON file")
	quakesPath := flag.String("quakes", "", "optional quake message fixture")
	assessmentsPath := flag.String("assessments", "", "optional assessment fixture (requires -quakes)")
	flag.Parse()

	if *gazetteerPath == "" || (*assessmentsPath != "" && *quakesPath == "") {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*gazetteerPath, *quakesPath, *assessmentsPath); code != 0 {
		os.Exit(code)
	}
}

func run(gazetteerPath, quakesPath, assessmentsPath string) int {
	// Set a fixed clock matching genmock.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.April, 3, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	fmt.Println("=== Gazetteer Integrity Validation ===")
	fmt.Println()

	records, err := gazetteer.FileSource{Path: gazetteerPath}.Records(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load gazetteer: %v\n", err)
		return 1
	}
	g, diag := gazetteer.New(records)

	phases := []*phase{
		validateEntries(diag),
		validateGeography(g),
		validateSiteFactors(records),
		validateBuiltinCoverage(g),
	}

	var quakes []domain.QuakeMessage
	var assessments []domain.Assessment
	if quakesPath != "" {
		if quakes, err = loadJSON[domain.QuakeMessage](quakesPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load quakes: %v\n", err)
			return 1
		}
		phases = append(phases, validateQuakes(quakes))
	}
	if assessmentsPath != "" {
		if assessments, err = loadJSON[domain.Assessment](assessmentsPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load assessments: %v\n", err)
			return 1
		}
		phases = append(phases, validateAssessments(g, quakes, assessments))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d gazetteer entries (%d usable, %d counties), %d quakes, %d assessments\n",
		len(records), g.Len(), len(g.Counties()), len(quakes), len(assessments))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Phase 1: every entry is usable ──

func validateEntries(diag gazetteer.Diagnostics) *phase {
	p := &phase{name: "Gazetteer entries well formed"}
	for _, s := range diag.Skipped {
		p.errorf("%s/%s: %s", s.County, s.District, s.Reason)
	}
	return p
}

// ── Phase 2: coordinates fall inside Taiwan ──

func validateGeography(g *gazetteer.Gazetteer) *phase {
	p := &phase{name: "Coordinates within Taiwan bounds"}
	if g.Len() == 0 {
		p.errorf("gazetteer has no usable districts")
		return p
	}
	for _, r := range g.Regions() {
		if r.Lat < minLat || r.Lat > maxLat || r.Lon < minLon || r.Lon > maxLon {
			p.errorf("%s: (%g, %g) outside [%g,%g]x[%g,%g]", r.RegionKey, r.Lat, r.Lon, minLat, maxLat, minLon, maxLon)
		}
	}
	return p
}

// ── Phase 3: site factors are plausible ──

func validateSiteFactors(records []domain.RegionRecord) *phase {
	p := &phase{name: "Site factors in (0, 3]"}
	for _, r := range records {
		if r.Site == nil {
			continue
		}
		if *r.Site <= 0 || *r.Site > maxSiteFactor {
			p.errorf("%s: site factor %g", r.Key(), *r.Site)
		}
	}
	return p
}

// ── Phase 4: built-in counties are covered ──

func validateBuiltinCoverage(g *gazetteer.Gazetteer) *phase {
	p := &phase{name: "Built-in counties covered"}
	have := make(map[string]bool)
	for _, c := range g.Counties() {
		have[c] = true
	}
	for _, c := range gazetteer.Builtin().Counties() {
		if !have[c] {
			p.errorf("county %s missing", c)
		}
	}
	return p
}

// ── Phase 5: quake fixture is valid ──

func validateQuakes(quakes []domain.QuakeMessage) *phase {
	p := &phase{name: "Quake fixture valid"}
	seen := make(map[string]bool, len(quakes))
	for i, q := range quakes {
		if q.ID == "" {
			p.errorf("quake[%d]: missing id", i)
		} else if seen[q.ID] {
			p.errorf("quake[%d]: duplicate id %s", i, q.ID)
		}
		seen[q.ID] = true
		if err := q.Epicenter().Validate(); err != nil {
			p.errorf("quake[%d] %s: %v", i, q.ID, err)
		}
		if q.OriginTime.IsZero() {
			p.errorf("quake[%d] %s: missing origin_time", i, q.ID)
		}
	}
	return p
}

// ── Phase 6: assessments match the estimator ──

func validateAssessments(g *gazetteer.Gazetteer, quakes []domain.QuakeMessage, assessments []domain.Assessment) *phase {
	p := &phase{name: "Assessments match estimator output"}

	byID := make(map[string]domain.QuakeMessage, len(quakes))
	for _, q := range quakes {
		byID[q.ID] = q
	}
	if len(assessments) != len(quakes) {
		p.errorf("count mismatch: %d quakes, %d assessments", len(quakes), len(assessments))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	assessor := estimator.NewAssessor(gazetteer.NewStaticStore(g, logger, metrics), estimator.DefaultOptions(), logger, metrics)

	for i := range assessments {
		got := &assessments[i]
		q, ok := byID[got.QuakeID]
		if !ok {
			p.errorf("assessment %s: unknown quake %s", got.ID, got.QuakeID)
			continue
		}
		want, err := assessor.Assess(context.Background(), estimator.AssessRequest{
			QuakeID:   q.ID,
			Source:    q.Source,
			Epicenter: q.Epicenter(),
			Threshold: &got.Threshold,
		})
		if err != nil {
			p.errorf("assessment %s: %v", got.ID, err)
			continue
		}
		compareAssessments(p, want, got)
	}
	return p
}

func compareAssessments(p *phase, want domain.Assessment, got *domain.Assessment) {
	pf := func(format string, args ...any) {
		p.errorf("assessment %s: "+format, append([]any{got.ID}, args...)...)
	}
	if want.Intensities.Len() != got.Intensities.Len() {
		pf("district count %d, want %d", got.Intensities.Len(), want.Intensities.Len())
	}
	for _, key := range want.Intensities.Keys() {
		w, _ := want.Intensities.Lookup(key)
		v, ok := got.Intensities.Lookup(key)
		if !ok {
			pf("missing %s", key)
			continue
		}
		if !floatEq(v, w) {
			pf("%s intensity %g, want %g", key, v, w)
		}
	}
	if !floatEq(want.MaxIntensity, got.MaxIntensity) {
		pf("max intensity %g, want %g", got.MaxIntensity, want.MaxIntensity)
	}
	if len(want.Affected) != len(got.Affected) {
		pf("affected count %d, want %d", len(got.Affected), len(want.Affected))
		return
	}
	for i := range want.Affected {
		if want.Affected[i] != got.Affected[i] {
			pf("affected[%d] %+v, want %+v", i, got.Affected[i], want.Affected[i])
		}
	}
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
