// Package events reads binary outcome observations produced by upstream event pipelines.
package events

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"abtrust/domain/experiment"
	"abtrust/ports"

	"github.com/tidwall/gjson"
)

// maxLineBytes bounds a single JSON line
const maxLineBytes = 1 << 20

// subjectFields are the accepted names of the subject identifier, in priority order
var subjectFields = []string{"subject_id", "user_id"}

// ReadStats counts what a read accepted and skipped
type ReadStats struct {
	Lines   int `json:"lines"`
	Parsed  int `json:"parsed"`
	Skipped int `json:"skipped"`
}

// FileSource reads observations from a JSON-lines file on every call
type FileSource struct {
	Path string

	// LastStats holds the counts of the most recent read
	LastStats ReadStats
}

var _ ports.ObservationSource = (*FileSource)(nil)

// NewFileSource creates a source for the given path
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Observations implements ports.ObservationSource
func (s *FileSource) Observations(ctx context.Context) ([]experiment.Observation, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open observations file: %w", err)
	}
	defer file.Close()

	observations, stats, err := ReadJSONL(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.Path, err)
	}
	s.LastStats = stats
	if stats.Skipped > 0 {
		log.Printf("[Events] Skipped %d of %d lines in %s", stats.Skipped, stats.Lines, s.Path)
	}
	return observations, nil
}

// ReadJSONL parses one observation per line. Blank lines are ignored; lines that are not
// JSON objects or lack a subject, layer or boolean outcome are skipped and counted.
func ReadJSONL(ctx context.Context, r io.Reader) ([]experiment.Observation, ReadStats, error) {
	var (
		observations []experiment.Observation
		stats        ReadStats
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stats.Lines++
		if stats.Lines%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}

		obs, ok := parseObservation(gjson.Parse(line), line)
		if !ok {
			stats.Skipped++
			continue
		}
		observations = append(observations, obs)
		stats.Parsed++
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, err
	}

	return observations, stats, nil
}

func parseObservation(record gjson.Result, raw string) (experiment.Observation, bool) {
	if !gjson.Valid(raw) || !record.IsObject() {
		return experiment.Observation{}, false
	}

	var subject string
	for _, field := range subjectFields {
		if v := record.Get(field); v.Exists() && v.String() != "" {
			subject = v.String()
			break
		}
	}
	layer := record.Get("layer").String()
	if subject == "" || layer == "" {
		return experiment.Observation{}, false
	}

	outcome, ok := parseOutcome(record.Get("outcome"))
	if !ok {
		return experiment.Observation{}, false
	}

	return experiment.Observation{SubjectID: subject, Layer: layer, Outcome: outcome}, true
}

// parseOutcome accepts JSON booleans and the numbers 0 and 1
func parseOutcome(v gjson.Result) (bool, bool) {
	switch v.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.Number:
		switch v.Num {
		case 0:
			return false, true
		case 1:
			return true, true
		}
	}
	return false, false
}
