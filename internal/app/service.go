// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/aggregate"
	"github.com/okian/rollcall/internal/domain/ledger"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/schedule"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

const defaultStatsInterval = 15 * time.Second

// Service implements the API dependencies for the attendance system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	resolver   *schedule.Resolver
	ledger     *ledger.Ledger
	aggregator *aggregate.Aggregator

	// Configuration
	timetable     []model.TimetableEntry
	seed          []model.Student
	loc           *time.Location
	now           func() time.Time
	pageSize      int
	statsInterval time.Duration

	// State
	started   bool
	ownsStore bool
	stopCh    chan struct{}
	wg        sync.WaitGroup

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		loc:           time.Local,
		now:           time.Now,
		pageSize:      aggregate.DefaultPageSize,
		statsInterval: defaultStatsInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start wires the resolver, ledger and aggregator over the store.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting attendance service...")

	if err := schedule.Validate(s.timetable); err != nil {
		return fmt.Errorf("timetable: %w", err)
	}

	if s.store == nil {
		mem, err := repository.NewMemoryStore(ctx)
		if err != nil {
			return fmt.Errorf("create memory store: %w", err)
		}
		s.store = mem
		s.ownsStore = true
		s.logger.Info(ctx, "using in-memory store")
	}
	if len(s.seed) > 0 {
		if err := s.store.UpsertStudents(ctx, s.seed); err != nil {
			return fmt.Errorf("seed students: %w", err)
		}
		s.logger.Info(ctx, "roster seeded", logger.Int("students", len(s.seed)))
	}

	s.resolver = schedule.NewResolver(s.timetable, schedule.WithAnomalyHook(s.onAnomaly))
	metrics.UpdateTimetableEntries(s.resolver.Len())
	if overlaps := s.resolver.Overlaps(); len(overlaps) > 0 {
		s.logger.Debug(ctx, "timetable has touching or overlapping sessions",
			logger.Int("pairs", len(overlaps)),
		)
	}

	s.ledger = ledger.New(s.store, s.store, ledger.WithClock(s.now))
	s.aggregator = aggregate.New(s.store, aggregate.WithPageSize(s.pageSize))

	s.stopCh = make(chan struct{})
	s.refreshGauges(ctx)
	s.startGaugeUpdater(ctx)

	s.started = true
	s.logger.Info(ctx, "attendance service started",
		logger.Int("timetableEntries", s.resolver.Len()),
		logger.Strings("sections", s.resolver.Sections()),
		logger.Int("pageSize", s.pageSize),
		logger.String("timezone", s.loc.String()),
	)
	return nil
}

// Stop gracefully shuts down the service. A store created by Start is
// closed; a store passed in WithStore belongs to the caller.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(context.Background(), "stopping attendance service...")

	close(s.stopCh)
	s.wg.Wait()

	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing store failed", logger.Error(err))
		}
		s.store = nil
		s.ownsStore = false
	}

	s.started = false
	s.logger.Info(context.Background(), "attendance service stopped")
}

func (s *Service) onAnomaly(a schedule.Anomaly) {
	ids := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		ids = append(ids, e.ID)
	}
	metrics.RecordTimetableAnomaly(a.Section)
	s.logger.Warn(context.Background(), "multiple timetable entries match",
		logger.String("section", a.Section),
		logger.String("date", a.Date.String()),
		logger.String("at", a.At.String()),
		logger.Strings("entries", ids),
	)
}

func (s *Service) startGaugeUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.refreshGauges(ctx)
			}
		}
	}()
}

func (s *Service) refreshGauges(ctx context.Context) {
	c, err := s.store.Counts(ctx)
	if err != nil {
		s.logger.Debug(ctx, "counting store rows failed", logger.Error(err))
		return
	}
	metrics.UpdateStudentsTotal(c.Students)
	metrics.UpdateFacultyTotal(c.Faculty)
	metrics.UpdateRepositoryRecordsTotal(c.Records)
}

// running returns the wired components or ErrNotStarted.
func (s *Service) running() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// Today is the current calendar day in the configured zone.
func (s *Service) Today() model.Date {
	return model.DateOf(s.now().In(s.loc))
}

// Sections lists configured timetable sections.
func (s *Service) Sections() []string {
	if _, err := s.running(); err != nil {
		return nil
	}
	return s.resolver.Sections()
}

// Sessions returns the section's sessions on date. A zero date means today.
func (s *Service) Sessions(ctx context.Context, section string, date model.Date) ([]model.TimetableEntry, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = s.Today()
	}
	out := s.resolver.SessionsFor(section, date)
	s.logger.Debug(ctx, "sessions resolved",
		logger.String("section", model.NormalizeSection(section)),
		logger.String("date", date.String()),
		logger.Int("count", len(out)),
	)
	return out, nil
}

// CurrentSession resolves the session in progress at the instant, read on
// the configured zone's wall clock. A zero instant means now.
func (s *Service) CurrentSession(_ context.Context, section string, at time.Time) (model.TimetableEntry, bool, error) {
	if _, err := s.running(); err != nil {
		return model.TimetableEntry{}, false, err
	}
	if at.IsZero() {
		at = s.now()
	}
	entry, ok := s.resolver.CurrentSession(section, at.In(s.loc))
	return entry, ok, nil
}

// SubmitAttendance records a roster for an explicit subject.
func (s *Service) SubmitAttendance(ctx context.Context, sub ledger.Submission) (ledger.Receipt, error) {
	if _, err := s.running(); err != nil {
		return ledger.Receipt{}, err
	}
	start := time.Now()
	receipt, err := s.ledger.SubmitRoster(ctx, sub)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	result := Classify(err)
	metrics.RecordSubmission(result)
	if err != nil {
		metrics.RecordErrorLatency("ledger", result, elapsed)
		level := s.logger.Warn
		if model.Retryable(err) || result == "internal" {
			level = s.logger.Error
		}
		level(ctx, "roster submission rejected",
			logger.String("result", result),
			logger.Bool("retryable", model.Retryable(err)),
			logger.Error(err),
		)
		return ledger.Receipt{}, err
	}

	metrics.RecordSubmitLatency(elapsed)
	metrics.RecordRecordsWritten(receipt.Recorded)
	metrics.RecordRecordsReplaced(receipt.Replaced)
	s.logger.Info(ctx, "roster submitted",
		logger.String("section", receipt.Section),
		logger.String("date", receipt.Key.Date.String()),
		logger.String("subject", receipt.Key.Subject),
		logger.String("facultyId", receipt.Key.FacultyID),
		logger.Int("recorded", receipt.Recorded),
		logger.Int("present", receipt.Present),
		logger.Int("replaced", receipt.Replaced),
	)
	return receipt, nil
}

// SubmitSession records a roster for a timetable entry picked by id; the
// entry's subject labels the session.
func (s *Service) SubmitSession(ctx context.Context, identity model.Identity, section string, date model.Date, entryID string, outcomes map[string]model.Status) (ledger.Receipt, error) {
	if _, err := s.running(); err != nil {
		return ledger.Receipt{}, err
	}
	section = model.NormalizeSection(section)
	entry, ok := s.resolver.Session(section, date, strings.TrimSpace(entryID))
	if !ok {
		metrics.RecordSubmission(metrics.ResultNotFound)
		return ledger.Receipt{}, &model.Error{
			Op: "submit session", Kind: model.ErrNotFound, Section: section, Date: date,
			Err: fmt.Errorf("timetable entry %q", entryID),
		}
	}
	return s.SubmitAttendance(ctx, ledger.Submission{
		Section:  section,
		Date:     date,
		Subject:  entry.Subject,
		Identity: identity,
		Outcomes: outcomes,
	})
}

// SessionRoster returns the identity's live records for a session.
func (s *Service) SessionRoster(ctx context.Context, identity model.Identity, section string, date model.Date, subject string) ([]model.Record, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := s.ledger.SessionRecords(ctx, identity, section, date, subject)
	metrics.RecordQuery("session", float64(time.Since(start).Microseconds())/1000)
	return out, err
}

// Roster lists the students enrolled in section ordered by roll number.
func (s *Service) Roster(ctx context.Context, section string) ([]model.Student, error) {
	store, err := s.running()
	if err != nil {
		return nil, err
	}
	section = model.NormalizeSection(section)
	if section == "" {
		return nil, &model.Error{Op: "roster", Kind: model.ErrValidation, Err: errors.New("section is required")}
	}
	out, err := store.StudentsBySection(ctx, section)
	if err != nil {
		return nil, &model.Error{Op: "roster", Kind: model.ErrStorage, Section: section, Err: err}
	}
	return out, nil
}

// StudentByRoll looks a student up by roll number.
func (s *Service) StudentByRoll(ctx context.Context, roll string) (model.Student, error) {
	store, err := s.running()
	if err != nil {
		return model.Student{}, err
	}
	if strings.TrimSpace(roll) == "" {
		return model.Student{}, &model.Error{Op: "student by roll", Kind: model.ErrValidation, Err: errors.New("roll number is required")}
	}
	st, err := store.StudentByRoll(ctx, roll)
	if err != nil {
		return model.Student{}, lookupError("student by roll", "", err)
	}
	return st, nil
}

// StudentByID looks a student up by id.
func (s *Service) StudentByID(ctx context.Context, id string) (model.Student, error) {
	store, err := s.running()
	if err != nil {
		return model.Student{}, err
	}
	st, err := store.StudentByID(ctx, id)
	if err != nil {
		return model.Student{}, lookupError("student by id", id, err)
	}
	return st, nil
}

// OverallStats returns lifetime stats of a known student.
func (s *Service) OverallStats(ctx context.Context, studentID string) (aggregate.Stats, error) {
	if _, err := s.StudentByID(ctx, studentID); err != nil {
		return aggregate.Stats{}, err
	}
	start := time.Now()
	stats, err := s.aggregator.OverallStats(ctx, studentID)
	metrics.RecordQuery("stats", float64(time.Since(start).Microseconds())/1000)
	return stats, err
}

// History returns one page of a known student's windowed history relative
// to today in the configured zone.
func (s *Service) History(ctx context.Context, studentID, window string, page int) (aggregate.HistoryPage, error) {
	w, err := aggregate.ParseWindow(window)
	if err != nil {
		return aggregate.HistoryPage{}, &model.Error{Op: "history", Kind: model.ErrValidation, StudentID: studentID, Err: err}
	}
	if _, err := s.StudentByID(ctx, studentID); err != nil {
		return aggregate.HistoryPage{}, err
	}
	start := time.Now()
	out, err := s.aggregator.History(ctx, studentID, w, page, s.Today())
	metrics.RecordQuery("history", float64(time.Since(start).Microseconds())/1000)
	return out, err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":  s.started,
		"pageSize": s.pageSize,
		"timezone": s.loc.String(),
	}
	if s.started {
		stats["timetableEntries"] = s.resolver.Len()
		stats["sections"] = s.resolver.Sections()
		if c, err := s.store.Counts(ctx); err == nil {
			stats["students"] = c.Students
			stats["faculty"] = c.Faculty
			stats["records"] = c.Records
		}
	}
	return stats
}

// Classify names the error kind of err for metrics and logs.
func Classify(err error) string {
	var me *model.Error
	if errors.As(err, &me) && me.Kind != nil {
		err = me.Kind
	}
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, model.ErrValidation):
		return metrics.ResultValidation
	case errors.Is(err, model.ErrUnauthorized):
		return metrics.ResultUnauthorized
	case errors.Is(err, model.ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, model.ErrConflict):
		return metrics.ResultConflict
	case errors.Is(err, model.ErrStorage):
		return metrics.ResultStorage
	default:
		return "internal"
	}
}

func lookupError(op, studentID string, err error) error {
	kind := model.ErrStorage
	if errors.Is(err, model.ErrNotFound) {
		kind = model.ErrNotFound
	}
	return &model.Error{Op: op, Kind: kind, StudentID: studentID, Err: err}
}
