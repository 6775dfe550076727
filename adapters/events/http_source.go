package events

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"abtrust/domain/experiment"
	"abtrust/ports"

	"github.com/tidwall/gjson"
)

// HTTPSourceConfig describes a JSON endpoint that serves observations
type HTTPSourceConfig struct {
	URL        string            `json:"url" yaml:"url"`
	DataPath   string            `json:"data_path" yaml:"data_path"` // gjson path of the observation array
	Headers    map[string]string `json:"headers" yaml:"headers"`
	AuthMethod string            `json:"auth_method" yaml:"auth_method"` // bearer, api_key or empty
	AuthToken  string            `json:"-" yaml:"auth_token"`
	Timeout    time.Duration     `json:"timeout" yaml:"timeout"`
	MaxPages   int               `json:"max_pages" yaml:"max_pages"`
}

// cursorFields are the response fields checked for a next-page cursor
var cursorFields = []string{"next_cursor", "cursor", "next", "continuation_token"}

// HTTPSource fetches observations from a paginated JSON API
type HTTPSource struct {
	config     HTTPSourceConfig
	httpClient *http.Client

	// LastStats holds the counts of the most recent fetch
	LastStats ReadStats
}

var _ ports.ObservationSource = (*HTTPSource)(nil)

// NewHTTPSource creates an HTTP observation source
func NewHTTPSource(config HTTPSourceConfig) *HTTPSource {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxPages == 0 {
		config.MaxPages = 100
	}
	if config.DataPath == "" {
		config.DataPath = "observations"
	}
	return &HTTPSource{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Observations implements ports.ObservationSource, following cursors until the last page
func (s *HTTPSource) Observations(ctx context.Context) ([]experiment.Observation, error) {
	var (
		observations []experiment.Observation
		stats        ReadStats
		cursor       string
	)

	for page := 0; page < s.config.MaxPages; page++ {
		body, err := s.fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}

		data := gjson.GetBytes(body, s.config.DataPath)
		if !data.Exists() || !data.IsArray() {
			return nil, fmt.Errorf("data path '%s' is not an array in response", s.config.DataPath)
		}
		data.ForEach(func(_, record gjson.Result) bool {
			stats.Lines++
			if obs, ok := parseObservation(record, record.Raw); ok {
				observations = append(observations, obs)
				stats.Parsed++
			} else {
				stats.Skipped++
			}
			return true
		})

		cursor = nextCursor(body)
		if cursor == "" {
			break
		}
	}

	s.LastStats = stats
	if stats.Skipped > 0 {
		log.Printf("[Events] Skipped %d of %d records from %s", stats.Skipped, stats.Lines, s.config.URL)
	}
	return observations, nil
}

func (s *HTTPSource) fetch(ctx context.Context, cursor string) ([]byte, error) {
	target, err := url.Parse(s.config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid observation URL: %w", err)
	}
	if cursor != "" {
		q := target.Query()
		q.Set("cursor", cursor)
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}
	switch s.config.AuthMethod {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+s.config.AuthToken)
	case "api_key":
		req.Header.Set("X-API-Key", s.config.AuthToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("observation API returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func nextCursor(body []byte) string {
	for _, field := range cursorFields {
		if cursor := gjson.GetBytes(body, field); cursor.Exists() && cursor.String() != "" {
			return cursor.String()
		}
	}
	return ""
}
