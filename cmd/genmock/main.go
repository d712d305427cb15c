// Command genmock reads a CSV of historical epicenters and generates fixtures
// for the pipeline and API test suites: the quake messages as they appear on
// the source topic, and the assessments the service produces for them. It
// runs the real estimator so fixtures match pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -csv data/mock/quakes.csv \
//	  -quakes-out data/mock/quake_messages.json \
//	  -assessments-out data/mock/assessments.json
//
// The CSV header must contain id, origin_time, location, lat, lon, magnitude
// and depth; origin_time is RFC 3339.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/estimator"
	"github.com/couchcryptid/quake-intensity-service/internal/gazetteer"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
)

var requiredColumns = []string{"id", "origin_time", "location", "lat", "lon", "magnitude", "depth"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvPath := flag.String("csv", "", "CSV file of epicenters")
	quakesOut := flag.String("quakes-out", "", "output path for the quake message fixture")
	assessmentsOut := flag.String("assessments-out", "", "output path for the assessment fixture")
	gazetteerSource := flag.String("gazetteer", "builtin", "gazetteer source: builtin, file path or URL")
	flag.Parse()

	if *csvPath == "" || *quakesOut == "" || *assessmentsOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -csv, -quakes-out, -assessments-out")
	}

	// Set a fixed clock for reproducible AssessedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.April, 3, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	quakes, err := readQuakes(*csvPath)
	if err != nil {
		return fmt.Errorf("processing %s: %w", *csvPath, err)
	}
	log.Printf("read %d quakes", len(quakes))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	store := gazetteer.NewStore(gazetteer.SourceFor(*gazetteerSource, 10*time.Second), logger, metrics)
	res := store.Load(context.Background())
	if res.Err != nil {
		return fmt.Errorf("load gazetteer %s: %w", *gazetteerSource, res.Err)
	}
	assessor := estimator.NewAssessor(store, estimator.DefaultOptions(), logger, metrics)

	assessments := make([]domain.Assessment, 0, len(quakes))
	for _, q := range quakes {
		a, err := assessor.Assess(context.Background(), estimator.AssessRequest{
			QuakeID:    q.ID,
			Source:     q.Source,
			Location:   q.Location,
			OriginTime: q.OriginTime,
			Epicenter:  q.Epicenter(),
		})
		if err != nil {
			return fmt.Errorf("assess %s: %w", q.ID, err)
		}
		// Stable IDs keep fixture diffs readable.
		a.ID = "fixture-" + q.ID
		assessments = append(assessments, a)
	}

	if err := writeJSON(*quakesOut, quakes); err != nil {
		return fmt.Errorf("writing quake fixture: %w", err)
	}
	log.Printf("wrote quake fixture: %s", *quakesOut)

	if err := writeJSON(*assessmentsOut, assessments); err != nil {
		return fmt.Errorf("writing assessment fixture: %w", err)
	}
	log.Printf("wrote assessment fixture: %s", *assessmentsOut)

	printStats(assessments)
	return nil
}

func readQuakes(path string) ([]domain.QuakeMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.TrimSpace(h)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	quakes := make([]domain.QuakeMessage, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		origin, err := time.Parse(time.RFC3339, get(row, colIdx, "origin_time"))
		if err != nil {
			return nil, fmt.Errorf("line %d: origin_time: %w", line, err)
		}
		nums := map[string]float64{}
		for _, col := range []string{"lat", "lon", "magnitude", "depth"} {
			v, err := strconv.ParseFloat(get(row, colIdx, col), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, col, err)
			}
			nums[col] = v
		}
		quakes = append(quakes, domain.QuakeMessage{
			ID:         get(row, colIdx, "id"),
			Source:     domain.SourceCWA,
			OriginTime: origin.UTC(),
			Location:   get(row, colIdx, "location"),
			Lat:        nums["lat"],
			Lon:        nums["lon"],
			Magnitude:  nums["magnitude"],
			Depth:      nums["depth"],
		})
	}
	return quakes, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

type countyMax struct {
	county    string
	intensity float64
}

func printStats(assessments []domain.Assessment) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(assessments))

	for i := range assessments {
		a := &assessments[i]
		fmt.Printf("\n%s %s (M%.1f, %.1f km)\n", a.QuakeID, a.Location, a.Epicenter.Magnitude, a.Epicenter.Depth)
		fmt.Printf("  Max intensity: %.1f\n", a.MaxIntensity)
		fmt.Printf("  Affected (>= %.1f): %d\n", a.Threshold, len(a.Affected))
		for _, area := range a.Affected {
			fmt.Printf("    %s %s %.1f\n", area.County, area.District, area.Intensity)
		}

		maxes := make([]countyMax, 0, len(a.Intensities))
		for county, districts := range a.Intensities {
			var highest float64
			for _, v := range districts {
				highest = max(highest, v)
			}
			maxes = append(maxes, countyMax{county, highest})
		}
		sort.Slice(maxes, func(i, j int) bool {
			if maxes[i].intensity != maxes[j].intensity {
				return maxes[i].intensity > maxes[j].intensity
			}
			return maxes[i].county < maxes[j].county
		})
		fmt.Print("  County max:")
		for _, m := range maxes {
			fmt.Printf(" %s=%.1f", m.county, m.intensity)
		}
		fmt.Println()
	}
}
