package repository

import (
	"errors"
	"fmt"

	"github.com/okian/rollcall/internal/domain/model"
)

// Sentinel kinds for repository errors. Each wraps a model kind so callers
// can match on either.
var (
	ErrStudentNotFound = fmt.Errorf("student %w", model.ErrNotFound)
	ErrFacultyNotFound = fmt.Errorf("faculty %w", model.ErrNotFound)
	ErrDuplicateRecord = fmt.Errorf("attendance record already exists: %w", model.ErrConflict)
	ErrDuplicateRoll   = fmt.Errorf("roll number already taken: %w", model.ErrConflict)
	ErrInvalidStudent  = fmt.Errorf("invalid student: %w", model.ErrValidation)
	ErrInvalidRoster   = fmt.Errorf("invalid roster file: %w", model.ErrValidation)
	ErrClosed          = errors.New("store closed")
)
