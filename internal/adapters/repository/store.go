// Package repository holds the roster and attendance record stores.
package repository

import (
	"context"

	"github.com/okian/rollcall/internal/domain/aggregate"
	"github.com/okian/rollcall/internal/domain/ledger"
	"github.com/okian/rollcall/internal/domain/model"
)

// Counts is a coarse size report used for metrics and /stats.
type Counts struct {
	Students int `db:"students" json:"students"`
	Faculty  int `db:"faculty" json:"faculty"`
	Records  int `db:"records" json:"records"`
}

// Store provides read/write access to students, faculty and records.
type Store interface {
	ledger.Roster
	ledger.Store
	aggregate.Reader

	// StudentByID returns ErrStudentNotFound for unknown ids.
	StudentByID(ctx context.Context, id string) (model.Student, error)
	// StudentByRoll matches case-insensitively.
	StudentByRoll(ctx context.Context, roll string) (model.Student, error)
	// UpsertStudents inserts or refreshes reference rows keyed on ID.
	UpsertStudents(ctx context.Context, students []model.Student) error

	Counts(ctx context.Context) (Counts, error)
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
