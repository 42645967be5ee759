package timetable

import (
	"fmt"

	"github.com/okian/rollcall/internal/domain/model"
)

// ErrInvalidTimetable wraps any failure to read or decode a timetable.
var ErrInvalidTimetable = fmt.Errorf("invalid timetable: %w", model.ErrValidation)
