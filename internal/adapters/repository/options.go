package repository

import (
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithStudents seeds the roster at construction.
func WithStudents(students []model.Student) Option {
	return func(s *MemoryStore) {
		s.seed = append(s.seed, students...)
	}
}

// WithClock overrides the time source for faculty rows missing CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// PostgresOption applies a configuration option to the PostgresStore.
type PostgresOption func(*PostgresStore)

// WithMaxOpenConns caps the pool size.
func WithMaxOpenConns(n int) PostgresOption {
	return func(s *PostgresStore) {
		if n > 0 {
			s.maxOpen = n
		}
	}
}

// WithMaxIdleConns caps idle pooled connections.
func WithMaxIdleConns(n int) PostgresOption {
	return func(s *PostgresStore) {
		if n >= 0 {
			s.maxIdle = n
		}
	}
}

// WithConnMaxLifetime recycles pooled connections after d.
func WithConnMaxLifetime(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.maxLifetime = d
		}
	}
}
