package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// ErrInvalidEntry marks a malformed timetable entry.
var ErrInvalidEntry = fmt.Errorf("invalid timetable entry: %w", model.ErrValidation)

// Validate checks entries before they are handed to NewResolver.
// All problems are joined into one error.
func Validate(entries []model.TimetableEntry) error {
	var errs []error
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		where := fmt.Sprintf("entry %d (%s)", i, e.ID)
		switch {
		case strings.TrimSpace(e.ID) == "":
			errs = append(errs, fmt.Errorf("%s: missing id: %w", where, ErrInvalidEntry))
		case strings.TrimSpace(e.Section) == "":
			errs = append(errs, fmt.Errorf("%s: missing section: %w", where, ErrInvalidEntry))
		case strings.TrimSpace(e.Subject) == "":
			errs = append(errs, fmt.Errorf("%s: missing subject: %w", where, ErrInvalidEntry))
		case e.DayOfWeek < time.Sunday || e.DayOfWeek > time.Saturday:
			errs = append(errs, fmt.Errorf("%s: day_of_week %d out of range: %w", where, e.DayOfWeek, ErrInvalidEntry))
		case !e.Start.Valid() || !e.End.Valid() || e.End < e.Start:
			errs = append(errs, fmt.Errorf("%s: bad interval %s-%s: %w", where, e.Start, e.End, ErrInvalidEntry))
		}
		if _, dup := seen[e.ID]; dup && e.ID != "" {
			errs = append(errs, fmt.Errorf("%s: duplicate id: %w", where, ErrInvalidEntry))
		}
		seen[e.ID] = struct{}{}
	}
	return errors.Join(errs...)
}
