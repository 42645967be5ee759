package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/metrics"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "unique_violation"

const recordColumns = `seq, id, student_id, faculty_id, section, date, subject, status, created_at`

const (
	upsertFacultySQL = `
		INSERT INTO faculty (id, identity_ref, display_name, employee_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_ref) DO UPDATE SET identity_ref = EXCLUDED.identity_ref
		RETURNING id, identity_ref, display_name, employee_id, created_at, (xmax = 0) AS inserted`

	upsertStudentSQL = `
		INSERT INTO students (id, roll_number, name, section)
		VALUES (:id, :roll_number, :name, :section)
		ON CONFLICT (id) DO UPDATE
		SET roll_number = EXCLUDED.roll_number, name = EXCLUDED.name, section = EXCLUDED.section`

	insertRecordSQL = `
		INSERT INTO attendance_records (id, student_id, faculty_id, section, date, subject, status, created_at)
		VALUES (:id, :student_id, :faculty_id, :section, :date, :subject, :status, :created_at)`

	sessionLockSQL   = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	deleteSessionSQL = `DELETE FROM attendance_records WHERE faculty_id = $1 AND date = $2 AND subject = $3`

	windowFilter = `student_id = $1 AND ($2::date IS NULL OR date >= $2::date) AND ($3::date IS NULL OR date <= $3::date)`
)

// PostgresStore implements Store on PostgreSQL through sqlx and lib/pq.
type PostgresStore struct {
	db          *sqlx.DB
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

// OpenPostgres connects, configures the pool and pings.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresStore(db, opts...), nil
}

// NewPostgresStore wraps an existing handle.
func NewPostgresStore(db *sqlx.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, maxOpen: 10, maxIdle: 5, maxLifetime: 30 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	db.SetMaxOpenConns(s.maxOpen)
	db.SetMaxIdleConns(s.maxIdle)
	db.SetConnMaxLifetime(s.maxLifetime)
	return s
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *PostgresStore) UpsertStudents(ctx context.Context, students []model.Student) error {
	if len(students) == 0 {
		return nil
	}
	start := time.Now()
	defer recordUpdateLatency(start)

	rows := make([]model.Student, 0, len(students))
	for _, in := range students {
		st, err := normalizeStudent(in)
		if err != nil {
			return err
		}
		rows = append(rows, st)
	}
	if _, err := s.db.NamedExecContext(ctx, upsertStudentSQL, rows); err != nil {
		return classify("upsert students", err, ErrDuplicateRoll)
	}
	return nil
}

func (s *PostgresStore) StudentsBySection(ctx context.Context, section string) ([]model.Student, error) {
	defer recordQueryLatency(time.Now())
	out := []model.Student{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, roll_number, name, section FROM students WHERE section = $1 ORDER BY roll_number`,
		model.NormalizeSection(section))
	if err != nil {
		return nil, fmt.Errorf("students by section: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) StudentByID(ctx context.Context, id string) (model.Student, error) {
	return s.oneStudent(ctx, `SELECT id, roll_number, name, section FROM students WHERE id = $1`, id)
}

func (s *PostgresStore) StudentByRoll(ctx context.Context, roll string) (model.Student, error) {
	return s.oneStudent(ctx, `SELECT id, roll_number, name, section FROM students WHERE roll_number = $1`, model.NormalizeRoll(roll))
}

func (s *PostgresStore) oneStudent(ctx context.Context, query, arg string) (model.Student, error) {
	defer recordQueryLatency(time.Now())
	var st model.Student
	if err := s.db.GetContext(ctx, &st, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.RecordErrorByComponent("repository", "not_found")
			return model.Student{}, ErrStudentNotFound
		}
		return model.Student{}, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

// facultyRow carries whether the upsert created the row (xmax is zero only
// for a freshly inserted tuple).
type facultyRow struct {
	model.Faculty
	Inserted bool `db:"inserted"`
}

// UpsertFaculty is a single INSERT .. ON CONFLICT so concurrent first
// submissions by one identity converge on one row.
func (s *PostgresStore) UpsertFaculty(ctx context.Context, f model.Faculty) (model.Faculty, error) {
	start := time.Now()
	defer recordUpdateLatency(start)
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	var out facultyRow
	err := s.db.QueryRowxContext(ctx, upsertFacultySQL,
		f.ID, f.IdentityRef, f.DisplayName, f.EmployeeID, f.CreatedAt).StructScan(&out)
	if err != nil {
		return model.Faculty{}, fmt.Errorf("upsert faculty: %w", err)
	}
	if out.Inserted {
		metrics.RecordFacultyUpsert()
	}
	return out.Faculty, nil
}

func (s *PostgresStore) FacultyByIdentity(ctx context.Context, ref string) (model.Faculty, error) {
	defer recordQueryLatency(time.Now())
	var f model.Faculty
	err := s.db.GetContext(ctx, &f,
		`SELECT id, identity_ref, display_name, employee_id, created_at FROM faculty WHERE identity_ref = $1`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Faculty{}, ErrFacultyNotFound
	}
	if err != nil {
		return model.Faculty{}, fmt.Errorf("faculty by identity: %w", err)
	}
	return f, nil
}

// ReplaceSession deletes and inserts inside one transaction. An advisory
// lock on the key serializes concurrent replaces of the same session.
func (s *PostgresStore) ReplaceSession(ctx context.Context, key model.SessionKey, records []model.Record) (replaced int, err error) {
	start := time.Now()
	defer recordUpdateLatency(start)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, sessionLockSQL, key.String()); err != nil {
		return 0, fmt.Errorf("lock session: %w", err)
	}
	res, err := tx.ExecContext(ctx, deleteSessionSQL, key.FacultyID, key.Date, key.Subject)
	if err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}
	if len(records) > 0 {
		if _, err = tx.NamedExecContext(ctx, insertRecordSQL, records); err != nil {
			err = classify("insert records", err, ErrDuplicateRecord)
			return 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit replace: %w", err)
	}
	return int(deleted), nil
}

func (s *PostgresStore) SessionRecords(ctx context.Context, key model.SessionKey) ([]model.Record, error) {
	defer recordQueryLatency(time.Now())
	out := []model.Record{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+recordColumns+` FROM attendance_records
		 WHERE faculty_id = $1 AND date = $2 AND subject = $3 ORDER BY seq`,
		key.FacultyID, key.Date, key.Subject)
	if err != nil {
		return nil, fmt.Errorf("session records: %w", err)
	}
	return out, nil
}

type tallyRow struct {
	Total   int `db:"total"`
	Present int `db:"present"`
}

const tallyColumns = `COUNT(*) AS total, COUNT(*) FILTER (WHERE status = 'present') AS present`

func (s *PostgresStore) StudentTally(ctx context.Context, studentID string) (model.Tally, error) {
	defer recordQueryLatency(time.Now())
	var row tallyRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+tallyColumns+` FROM attendance_records WHERE student_id = $1`, studentID)
	if err != nil {
		return model.Tally{}, fmt.Errorf("student tally: %w", err)
	}
	return model.Tally{Total: row.Total, Present: row.Present}, nil
}

// StudentRecords runs the count and the page in one read-only snapshot so
// both see the same replace state.
func (s *PostgresStore) StudentRecords(ctx context.Context, q model.RecordQuery) (model.RecordPage, error) {
	defer recordQueryLatency(time.Now())

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return model.RecordPage{}, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row tallyRow
	if err := tx.GetContext(ctx, &row,
		`SELECT `+tallyColumns+` FROM attendance_records WHERE `+windowFilter,
		q.StudentID, q.From, q.To); err != nil {
		return model.RecordPage{}, fmt.Errorf("count records: %w", err)
	}
	page := model.RecordPage{Total: row.Total, Present: row.Present}

	if q.Limit > 0 && q.Offset >= 0 && q.Offset < row.Total {
		if err := tx.SelectContext(ctx, &page.Records,
			`SELECT `+recordColumns+` FROM attendance_records WHERE `+windowFilter+`
			 ORDER BY date DESC, seq DESC LIMIT $4 OFFSET $5`,
			q.StudentID, q.From, q.To, q.Limit, q.Offset); err != nil {
			return model.RecordPage{}, fmt.Errorf("list records: %w", err)
		}
	}
	return page, nil
}

func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.GetContext(ctx, &c, `SELECT
		(SELECT COUNT(*) FROM students) AS students,
		(SELECT COUNT(*) FROM faculty) AS faculty,
		(SELECT COUNT(*) FROM attendance_records) AS records`)
	if err != nil {
		return Counts{}, fmt.Errorf("counts: %w", err)
	}
	return c, nil
}

// classify maps a unique violation to conflict; anything else is wrapped
// unchanged.
func classify(op string, err error, conflict error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == uniqueViolation {
		metrics.RecordErrorByComponent("repository", "conflict")
		return fmt.Errorf("%s: %w: %s", op, conflict, pqErr.Detail)
	}
	return fmt.Errorf("%s: %w", op, err)
}
