package ledger

import "errors"

// Causes attached to model.Error by SubmitRoster.
var (
	ErrMissingDate     = errors.New("date is required")
	ErrMissingIdentity = errors.New("identity reference is required")
	ErrNotAuthorized   = errors.New("identity is not authorized to record attendance")
	ErrUnknownStudent  = errors.New("student is not on the section roster")
	ErrEmptyRoster     = errors.New("section has no enrolled students")
)
