// Package timetable loads the static weekly timetable from YAML.
package timetable

import (
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/schedule"
)

//go:embed default.yaml
var defaultTimetable []byte

// rawEntry mirrors one YAML entry before clocks are parsed.
type rawEntry struct {
	ID        string `koanf:"id"`
	DayOfWeek int    `koanf:"day_of_week"`
	Start     string `koanf:"start"`
	End       string `koanf:"end"`
	Subject   string `koanf:"subject"`
	Section   string `koanf:"section"`
	Faculty   string `koanf:"faculty"`
}

// bytesProvider feeds an in-memory document to koanf.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) { return b, nil }

func (b bytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("bytes provider does not support Read")
}

// Load reads the timetable at path. An empty path selects the embedded
// default timetable.
func Load(path string) ([]model.TimetableEntry, error) {
	var provider koanf.Provider = bytesProvider(defaultTimetable)
	source := "embedded default"
	if path != "" {
		provider = file.Provider(path)
		source = path
	}

	k := koanf.New(".")
	if err := k.Load(provider, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTimetable, source, err)
	}
	var raw []rawEntry
	if err := k.UnmarshalWithConf("entries", &raw, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTimetable, source, err)
	}

	entries, err := convert(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTimetable, source, err)
	}
	if err := schedule.Validate(entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTimetable, source, err)
	}
	return entries, nil
}

// Default returns the embedded timetable.
func Default() ([]model.TimetableEntry, error) { return Load("") }

func convert(raw []rawEntry) ([]model.TimetableEntry, error) {
	out := make([]model.TimetableEntry, 0, len(raw))
	var errs []error
	for i, r := range raw {
		start, err := model.ParseClock(r.Start)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): start: %w", i, r.ID, err))
			continue
		}
		end, err := model.ParseClock(r.End)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): end: %w", i, r.ID, err))
			continue
		}
		out = append(out, model.TimetableEntry{
			ID:           r.ID,
			DayOfWeek:    time.Weekday(r.DayOfWeek),
			Start:        start,
			End:          end,
			Subject:      r.Subject,
			Section:      model.NormalizeSection(r.Section),
			FacultyLabel: r.Faculty,
		})
	}
	return out, errors.Join(errs...)
}
