// Package manifest loads the list of samples to be measured in a beamtime
// session.
//
// A manifest groups samples by session and by user application:
//
//	sessions:
//	  - id: 1
//	    date: 2019-06-19
//	    applications:
//	      - id: 120
//	        samples:
//	          - position: 1
//	            name: sample A
//	            measurement: PXRD
package manifest

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mtwharmby/emacontrol/ema"
	"gopkg.in/yaml.v3"
)

// Measurement types.
const (
	PXRD = "PXRD"
	PDF  = "PDF"
)

var (
	// ErrUnknownMeasurement is returned for a measurement type other than
	// PXRD or PDF.
	ErrUnknownMeasurement = errors.New("unknown measurement type")

	// ErrNoSession is returned when no session falls near the requested date.
	ErrNoSession = errors.New("no session found")
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	time.RFC3339,
}

// Sample is one magazine slot.
type Sample struct {
	Position    int    `yaml:"position"`
	Name        string `yaml:"name"`
	Measurement string `yaml:"measurement"`
}

// Application is a user proposal with its samples.
type Application struct {
	ID      int      `yaml:"id"`
	Samples []Sample `yaml:"samples"`
}

// Session is one beamtime.
type Session struct {
	ID           int           `yaml:"id"`
	Date         string        `yaml:"date"`
	Applications []Application `yaml:"applications"`

	date time.Time
}

// Day returns the parsed session date.
func (s *Session) Day() time.Time {
	return s.date
}

// Manifest is the parsed manifest file.
type Manifest struct {
	Sessions []Session `yaml:"sessions"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates manifest YAML.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	for i := range m.Sessions {
		s := &m.Sessions[i]
		d, err := parseDate(s.Date)
		if err != nil {
			return fmt.Errorf("session %d: %w", s.ID, err)
		}
		s.date = d

		taken := make(map[int]int)
		for _, app := range s.Applications {
			for j := range app.Samples {
				sample := &app.Samples[j]
				if sample.Position < ema.MinSample || sample.Position > ema.MaxSample {
					return fmt.Errorf("session %d application %d: %w", s.ID, app.ID, &ema.RangeError{
						Name:  "position",
						Value: float64(sample.Position),
						Min:   ema.MinSample,
						Max:   ema.MaxSample,
					})
				}
				if owner, ok := taken[sample.Position]; ok {
					return fmt.Errorf("session %d: position %d used by applications %d and %d",
						s.ID, sample.Position, owner, app.ID)
				}
				taken[sample.Position] = app.ID

				measurement, err := normalizeMeasurement(sample.Measurement)
				if err != nil {
					return fmt.Errorf("session %d position %d: %w", s.ID, sample.Position, err)
				}
				sample.Measurement = measurement
			}
		}
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func normalizeMeasurement(s string) (string, error) {
	switch up := strings.ToUpper(strings.TrimSpace(s)); up {
	case PXRD, PDF:
		return up, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownMeasurement, s)
	}
}

// Session returns the session with the given id.
func (m *Manifest) Session(id int) (*Session, error) {
	for i := range m.Sessions {
		if m.Sessions[i].ID == id {
			return &m.Sessions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", ErrNoSession, id)
}

// SessionNear returns the first session dated within delta days of day.
func (m *Manifest) SessionNear(day time.Time, delta int) (*Session, error) {
	y, mo, d := day.Date()
	today := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	limit := time.Duration(delta) * 24 * time.Hour

	for i := range m.Sessions {
		s := &m.Sessions[i]
		sy, smo, sd := s.date.Date()
		diff := time.Date(sy, smo, sd, 0, 0, 0, 0, time.UTC).Sub(today)
		if diff < 0 {
			diff = -diff
		}
		if diff <= limit {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w within %d day(s) of %s", ErrNoSession, delta, today.Format("2006-01-02"))
}

// ApplicationIDs returns the ids of the session's applications in file
// order.
func (s *Session) ApplicationIDs() []int {
	ids := make([]int, 0, len(s.Applications))
	for _, app := range s.Applications {
		ids = append(ids, app.ID)
	}
	return ids
}

// Samples maps magazine position to sample name for one application and
// measurement type.
func (s *Session) Samples(appID int, measurement string) (map[int]string, error) {
	measurement, err := normalizeMeasurement(measurement)
	if err != nil {
		return nil, err
	}
	for _, app := range s.Applications {
		if app.ID != appID {
			continue
		}
		samples := make(map[int]string)
		for _, sample := range app.Samples {
			if sample.Measurement == measurement {
				samples[sample.Position] = sample.Name
			}
		}
		return samples, nil
	}
	return nil, fmt.Errorf("no application %d in session %d", appID, s.ID)
}

// SamplesByApplication returns Samples for every application in the
// session, keyed by application id.
func (s *Session) SamplesByApplication(measurement string) (map[int]map[int]string, error) {
	all := make(map[int]map[int]string, len(s.Applications))
	for _, id := range s.ApplicationIDs() {
		samples, err := s.Samples(id, measurement)
		if err != nil {
			return nil, err
		}
		all[id] = samples
	}
	return all, nil
}

// Entry is one sample in a measurement queue.
type Entry struct {
	Application int
	Position    int
	Name        string
}

// Queue lists the session's samples for measurement ordered by magazine
// position.
func (s *Session) Queue(measurement string) ([]Entry, error) {
	measurement, err := normalizeMeasurement(measurement)
	if err != nil {
		return nil, err
	}
	var queue []Entry
	for _, app := range s.Applications {
		for _, sample := range app.Samples {
			if sample.Measurement == measurement {
				queue = append(queue, Entry{Application: app.ID, Position: sample.Position, Name: sample.Name})
			}
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i].Position < queue[j].Position })
	return queue, nil
}
