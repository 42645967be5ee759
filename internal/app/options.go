package service

import (
	"time"

	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the backing store. Without one, Start creates an
// in-memory store seeded with WithStudents.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithStudents seeds the roster at Start. Applied to any store.
func WithStudents(students []model.Student) Option {
	return func(s *Service) {
		s.seed = append(s.seed, students...)
	}
}

// WithTimetable sets the weekly timetable.
func WithTimetable(entries []model.TimetableEntry) Option {
	return func(s *Service) {
		s.timetable = entries
	}
}

// WithLocation sets the zone used for "today" and wall-clock lookups.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPageSize sets the history page size.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithStatsInterval sets how often store size gauges are refreshed.
func WithStatsInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.statsInterval = d
		}
	}
}
