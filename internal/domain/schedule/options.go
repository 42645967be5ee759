package schedule

import (
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// Anomaly describes overlapping timetable entries.
type Anomaly struct {
	Section string
	Date    model.Date   // set by CurrentSession
	Weekday time.Weekday // set by Overlaps
	At      model.Clock
	Entries []model.TimetableEntry
}

// AnomalyHook is invoked when more than one entry matches an instant.
type AnomalyHook func(Anomaly)

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithAnomalyHook registers a callback for overlapping matches.
func WithAnomalyHook(h AnomalyHook) Option {
	return func(r *Resolver) {
		r.onOverlap = h
	}
}
