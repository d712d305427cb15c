package gazetteer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
)

// Source supplies raw gazetteer records.
type Source interface {
	Name() string
	Records(ctx context.Context) ([]domain.RegionRecord, error)
}

// SourceFor selects a source from a GAZETTEER_SOURCE value: "builtin" (or
// empty), an http(s) URL, or a file path.
func SourceFor(location string, timeout time.Duration) Source {
	location = strings.TrimSpace(location)
	switch {
	case location == "" || location == "builtin":
		return BuiltinSource{}
	case strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://"):
		return NewHTTPSource(location, timeout)
	default:
		return FileSource{Path: location}
	}
}

// BuiltinSource serves the compiled-in dataset. It never fails.
type BuiltinSource struct{}

func (BuiltinSource) Name() string { return "builtin" }

func (BuiltinSource) Records(_ context.Context) ([]domain.RegionRecord, error) {
	return BuiltinRecords(), nil
}

// FileSource reads a YAML or JSON gazetteer document from disk.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return "file:" + f.Path }

func (f FileSource) Records(_ context.Context) ([]domain.RegionRecord, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read gazetteer file: %w", err)
	}
	return ParseRecords(data)
}

// HTTPSource fetches a YAML or JSON gazetteer document from a URL.
type HTTPSource struct {
	URL        string
	httpClient *http.Client
}

// NewHTTPSource creates a remote source with the given request timeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{URL: url, httpClient: &http.Client{Timeout: timeout}}
}

func (h *HTTPSource) Name() string { return "http:" + h.URL }

func (h *HTTPSource) Records(ctx context.Context) ([]domain.RegionRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch gazetteer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch gazetteer: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gazetteer body: %w", err)
	}
	return ParseRecords(data)
}

// districtAttrs is the per-district value in a gazetteer document.
type districtAttrs struct {
	Lat  *float64 `yaml:"lat"`
	Lon  *float64 `yaml:"lon"`
	Site *float64 `yaml:"site"`
}

// ParseRecords decodes a gazetteer document of the form
//
//	county:
//	  district: {lat: 25.03, lon: 121.56, site: 1.1}
//
// JSON with the same shape is accepted. Document order is preserved.
func ParseRecords(data []byte) ([]domain.RegionRecord, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode gazetteer: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("decode gazetteer: empty document")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("decode gazetteer: line %d: expected county mapping", root.Line)
	}

	var records []domain.RegionRecord
	for i := 0; i+1 < len(root.Content); i += 2 {
		county, districts := root.Content[i].Value, root.Content[i+1]
		if districts.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("decode gazetteer: county %q: expected district mapping", county)
		}
		for j := 0; j+1 < len(districts.Content); j += 2 {
			district := districts.Content[j].Value
			var attrs districtAttrs
			if err := districts.Content[j+1].Decode(&attrs); err != nil {
				return nil, fmt.Errorf("decode gazetteer: %s/%s: %w", county, district, err)
			}
			records = append(records, domain.RegionRecord{
				County:   county,
				District: district,
				Lat:      attrs.Lat,
				Lon:      attrs.Lon,
				Site:     attrs.Site,
			})
		}
	}
	return records, nil
}
