package aggregate

import (
	"errors"
	"fmt"

	"github.com/okian/rollcall/internal/domain/model"
)

// Sentinel kinds for aggregate errors.
var (
	ErrMissingStudent = errors.New("student id is required")
	ErrMissingToday   = errors.New("reference date is required")
	ErrUnknownWindow  = fmt.Errorf("unknown history window: %w", model.ErrValidation)
)
