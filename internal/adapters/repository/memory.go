package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/metrics"
)

const memoryMetricsInterval = 5 * time.Second

// naturalKey is the (student, date, subject) uniqueness key.
type naturalKey struct {
	student string
	date    model.Date
	subject string
}

// Snapshot is an immutable view of the store. Writers build a new Snapshot
// and publish it atomically, so a reader sees a session either fully before
// or fully after a replace.
type Snapshot struct {
	students  map[string]model.Student
	byRoll    map[string]string
	bySection map[string][]model.Student // ordered by roll number
	faculty   map[string]model.Faculty   // by identity ref
	owner     map[naturalKey]model.SessionKey
	bySession map[model.SessionKey][]model.Record
	byStudent map[string][]model.Record // date desc, seq desc
	records   int
	seq       int64
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		students:  map[string]model.Student{},
		byRoll:    map[string]string{},
		bySection: map[string][]model.Student{},
		faculty:   map[string]model.Faculty{},
		owner:     map[naturalKey]model.SessionKey{},
		bySession: map[model.SessionKey][]model.Record{},
		byStudent: map[string][]model.Record{},
	}
}

// clone copies the top-level maps; slices are replaced, never mutated.
func (s *Snapshot) clone() *Snapshot {
	n := &Snapshot{
		students:  make(map[string]model.Student, len(s.students)),
		byRoll:    make(map[string]string, len(s.byRoll)),
		bySection: make(map[string][]model.Student, len(s.bySection)),
		faculty:   make(map[string]model.Faculty, len(s.faculty)),
		owner:     make(map[naturalKey]model.SessionKey, len(s.owner)),
		bySession: make(map[model.SessionKey][]model.Record, len(s.bySession)),
		byStudent: make(map[string][]model.Record, len(s.byStudent)),
		records:   s.records,
		seq:       s.seq,
	}
	for k, v := range s.students {
		n.students[k] = v
	}
	for k, v := range s.byRoll {
		n.byRoll[k] = v
	}
	for k, v := range s.bySection {
		n.bySection[k] = v
	}
	for k, v := range s.faculty {
		n.faculty[k] = v
	}
	for k, v := range s.owner {
		n.owner[k] = v
	}
	for k, v := range s.bySession {
		n.bySession[k] = v
	}
	for k, v := range s.byStudent {
		n.byStudent[k] = v
	}
	return n
}

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu       sync.Mutex // serializes writers
	snapshot atomic.Pointer[Snapshot]
	now      func() time.Time
	seed     []model.Student

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewMemoryStore constructs an empty store, applies seed students and starts
// a background metrics updater that ends with ctx or Close.
func NewMemoryStore(ctx context.Context, opts ...Option) (*MemoryStore, error) {
	s := &MemoryStore{now: time.Now, stopChan: make(chan struct{})}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshot.Store(emptySnapshot())

	if len(s.seed) > 0 {
		if err := s.UpsertStudents(ctx, s.seed); err != nil {
			return nil, err
		}
		s.seed = nil
	}

	s.startMetricsUpdater(ctx)
	return s, nil
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

// publish swaps in next and records snapshot metrics. Caller holds mu.
func (s *MemoryStore) publish(next *Snapshot, started time.Time) {
	s.snapshot.Store(next)
	ms := float64(time.Since(started).Microseconds()) / 1000
	metrics.RecordRepositorySnapshotRebuildDuration(ms)
	metrics.IncrementRepositorySnapshotCount()
}

// UpsertStudents inserts or refreshes students keyed on ID. Roll numbers
// and sections are normalized to upper case.
func (s *MemoryStore) UpsertStudents(ctx context.Context, students []model.Student) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	defer recordUpdateLatency(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snapshot.Load().clone()
	touched := map[string]struct{}{}
	for _, in := range students {
		st, err := normalizeStudent(in)
		if err != nil {
			return err
		}
		if owner, ok := next.byRoll[st.RollNumber]; ok && owner != st.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateRoll, st.RollNumber)
		}
		if old, ok := next.students[st.ID]; ok {
			delete(next.byRoll, old.RollNumber)
			touched[old.Section] = struct{}{}
		}
		next.students[st.ID] = st
		next.byRoll[st.RollNumber] = st.ID
		touched[st.Section] = struct{}{}
	}
	for section := range touched {
		var list []model.Student
		for _, st := range next.students {
			if st.Section == section {
				list = append(list, st)
			}
		}
		sort.Slice(list, func(i, j int) bool { return list[i].RollNumber < list[j].RollNumber })
		next.bySection[section] = list
	}
	s.publish(next, start)
	return nil
}

// StudentsBySection returns the section's roster ordered by roll number.
func (s *MemoryStore) StudentsBySection(_ context.Context, section string) ([]model.Student, error) {
	defer recordQueryLatency(time.Now())
	list := s.snapshot.Load().bySection[model.NormalizeSection(section)]
	out := make([]model.Student, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) StudentByID(_ context.Context, id string) (model.Student, error) {
	defer recordQueryLatency(time.Now())
	st, ok := s.snapshot.Load().students[strings.TrimSpace(id)]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Student{}, ErrStudentNotFound
	}
	return st, nil
}

func (s *MemoryStore) StudentByRoll(_ context.Context, roll string) (model.Student, error) {
	defer recordQueryLatency(time.Now())
	snap := s.snapshot.Load()
	id, ok := snap.byRoll[model.NormalizeRoll(roll)]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Student{}, ErrStudentNotFound
	}
	return snap.students[id], nil
}

// UpsertFaculty returns the existing row for f.IdentityRef or inserts f.
func (s *MemoryStore) UpsertFaculty(ctx context.Context, f model.Faculty) (model.Faculty, error) {
	if err := ctx.Err(); err != nil {
		return model.Faculty{}, err
	}
	if existing, ok := s.snapshot.Load().faculty[f.IdentityRef]; ok {
		return existing, nil
	}

	start := time.Now()
	defer recordUpdateLatency(start)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snapshot.Load()
	if existing, ok := cur.faculty[f.IdentityRef]; ok {
		return existing, nil
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}
	next := cur.clone()
	next.faculty[f.IdentityRef] = f
	s.publish(next, start)
	metrics.RecordFacultyUpsert()
	return f, nil
}

func (s *MemoryStore) FacultyByIdentity(_ context.Context, ref string) (model.Faculty, error) {
	defer recordQueryLatency(time.Now())
	f, ok := s.snapshot.Load().faculty[ref]
	if !ok {
		return model.Faculty{}, ErrFacultyNotFound
	}
	return f, nil
}

// ReplaceSession removes every record under key and inserts records as
// one published snapshot. A record colliding with another session's
// (student, date, subject) aborts the whole replace with ErrDuplicateRecord.
func (s *MemoryStore) ReplaceSession(ctx context.Context, key model.SessionKey, records []model.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	start := time.Now()
	defer recordUpdateLatency(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snapshot.Load()
	next := cur.clone()

	old := cur.bySession[key]
	affected := make(map[string]struct{}, len(old)+len(records))
	for _, r := range old {
		delete(next.owner, naturalKey{r.StudentID, r.Date, r.Subject})
		affected[r.StudentID] = struct{}{}
	}
	delete(next.bySession, key)
	next.records -= len(old)

	inserted := make([]model.Record, 0, len(records))
	for _, r := range records {
		if r.FacultyID != key.FacultyID || r.Date != key.Date || r.Subject != key.Subject {
			return 0, fmt.Errorf("record %s outside session %s: %w", r.ID, key, model.ErrValidation)
		}
		if _, ok := next.students[r.StudentID]; !ok {
			metrics.RecordErrorByComponent("repository", "not_found")
			return 0, fmt.Errorf("%w: %s", ErrStudentNotFound, r.StudentID)
		}
		nk := naturalKey{r.StudentID, r.Date, r.Subject}
		if _, taken := next.owner[nk]; taken {
			metrics.RecordErrorByComponent("repository", "conflict")
			return 0, fmt.Errorf("%w: student %s on %s for %s", ErrDuplicateRecord, r.StudentID, r.Date, r.Subject)
		}
		next.seq++
		r.Seq = next.seq
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		next.owner[nk] = key
		inserted = append(inserted, r)
		affected[r.StudentID] = struct{}{}
	}
	if len(inserted) > 0 {
		next.bySession[key] = inserted
	}
	next.records += len(inserted)

	for id := range affected {
		next.byStudent[id] = rebuildStudent(cur.byStudent[id], key, inserted, id)
	}

	s.publish(next, start)
	metrics.UpdateRepositoryRecordsTotal(next.records)
	return len(old), nil
}

// rebuildStudent drops prev's rows under key, adds the student's rows from
// inserted and restores date desc, seq desc order.
func rebuildStudent(prev []model.Record, key model.SessionKey, inserted []model.Record, studentID string) []model.Record {
	out := make([]model.Record, 0, len(prev)+1)
	for _, r := range prev {
		if r.FacultyID == key.FacultyID && r.Date == key.Date && r.Subject == key.Subject {
			continue
		}
		out = append(out, r)
	}
	for _, r := range inserted {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c > 0
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

func (s *MemoryStore) SessionRecords(_ context.Context, key model.SessionKey) ([]model.Record, error) {
	defer recordQueryLatency(time.Now())
	list := s.snapshot.Load().bySession[key]
	out := make([]model.Record, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) StudentTally(_ context.Context, studentID string) (model.Tally, error) {
	defer recordQueryLatency(time.Now())
	var t model.Tally
	for _, r := range s.snapshot.Load().byStudent[studentID] {
		t.Total++
		if r.Status == model.StatusPresent {
			t.Present++
		}
	}
	return t, nil
}

func (s *MemoryStore) StudentRecords(_ context.Context, q model.RecordQuery) (model.RecordPage, error) {
	defer recordQueryLatency(time.Now())
	var page model.RecordPage
	var match []model.Record
	for _, r := range s.snapshot.Load().byStudent[q.StudentID] {
		if !q.Includes(r.Date) {
			continue
		}
		page.Total++
		if r.Status == model.StatusPresent {
			page.Present++
		}
		if q.Limit > 0 && len(match) < q.Offset+q.Limit {
			match = append(match, r)
		}
	}
	if q.Limit > 0 && q.Offset >= 0 && q.Offset < len(match) {
		page.Records = append([]model.Record(nil), match[q.Offset:]...)
	}
	return page, nil
}

func (s *MemoryStore) Counts(_ context.Context) (Counts, error) {
	snap := s.snapshot.Load()
	return Counts{Students: len(snap.students), Faculty: len(snap.faculty), Records: snap.records}, nil
}

// startMetricsUpdater periodically republishes the record gauge.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(memoryMetricsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateRepositoryRecordsTotal(s.snapshot.Load().records)
			}
		}
	}()
}

func normalizeStudent(st model.Student) (model.Student, error) {
	st.ID = strings.TrimSpace(st.ID)
	st.RollNumber = model.NormalizeRoll(st.RollNumber)
	st.Section = model.NormalizeSection(st.Section)
	st.Name = strings.TrimSpace(st.Name)
	if st.ID == "" || st.RollNumber == "" || st.Section == "" {
		return st, fmt.Errorf("%w: id, roll_number and section are required (%q)", ErrInvalidStudent, st.ID)
	}
	return st, nil
}

func recordUpdateLatency(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func recordQueryLatency(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}
