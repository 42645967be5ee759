package model

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Sentinel error kinds shared by every layer. Match with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrStorage      = errors.New("storage failure")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error carries the session coordinates of a failed operation.
type Error struct {
	Op        string
	Kind      error
	Section   string
	Date      Date
	Subject   string
	StudentID string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Section != "" {
		b.WriteString(" section=" + e.Section)
	}
	if !e.Date.IsZero() {
		b.WriteString(" date=" + e.Date.String())
	}
	if e.Subject != "" {
		b.WriteString(" subject=" + e.Subject)
	}
	if e.StudentID != "" {
		b.WriteString(" student=" + e.StudentID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Retryable reports whether err is a transient storage failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorage) && !errors.Is(err, ErrConflict)
}

// DescribeValidation flattens validator errors into one readable error.
// Fields are named by their path below the validated struct, so map
// entries read "Outcomes[s1]" and top-level ones just "Subject". Other
// errors pass through unchanged.
func DescribeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		msgs = append(msgs, field+" failed "+fe.Tag())
	}
	return errors.New(strings.Join(msgs, "; "))
}
