// Package ledger commits full-roster attendance submissions with
// replace-not-append semantics.
package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/okian/rollcall/internal/domain/model"
)

// Fallbacks used when the identity provider supplies no profile hints.
const (
	DefaultDisplayName = "Faculty"
	employeeIDPrefix   = "EMP_"
	employeeIDRefChars = 8
)

// Roster supplies the students enrolled in a section.
type Roster interface {
	StudentsBySection(ctx context.Context, section string) ([]model.Student, error)
}

// Store persists faculty rows and attendance records.
type Store interface {
	// UpsertFaculty inserts a faculty keyed on IdentityRef or returns the
	// existing row untouched.
	UpsertFaculty(ctx context.Context, f model.Faculty) (model.Faculty, error)
	// FacultyByIdentity returns model.ErrNotFound for unknown refs.
	FacultyByIdentity(ctx context.Context, ref string) (model.Faculty, error)
	// ReplaceSession deletes every record matching key and inserts records
	// in one atomic step. It returns the number of rows deleted.
	ReplaceSession(ctx context.Context, key model.SessionKey, records []model.Record) (int, error)
	// SessionRecords returns the live records matching key.
	SessionRecords(ctx context.Context, key model.SessionKey) ([]model.Record, error)
}

// Submission is one faculty member's marks for one class session.
// Students missing from Outcomes are recorded absent.
type Submission struct {
	Section  string                  `validate:"required,max=32"`
	Date     model.Date              `validate:"-"`
	Subject  string                  `validate:"required,max=128"`
	Identity model.Identity          `validate:"-"`
	Outcomes map[string]model.Status `validate:"dive,keys,required,endkeys,oneof=present absent"`
}

// Receipt summarizes a committed submission.
type Receipt struct {
	Key      model.SessionKey `json:"key"`
	Section  string           `json:"section"`
	Recorded int              `json:"recorded"`
	Present  int              `json:"present"`
	Absent   int              `json:"absent"`
	Replaced int              `json:"replaced"`
}

// Ledger is safe for concurrent use; serialization of same-key replaces is
// the Store's job.
type Ledger struct {
	roster   Roster
	store    Store
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// New constructs a Ledger over the given ports.
func New(roster Roster, store Store, opts ...Option) *Ledger {
	l := &Ledger{
		roster:   roster,
		store:    store,
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SubmitRoster validates sub against the section roster, provisions the
// submitting faculty and atomically replaces the session's records.
// No write happens unless every check passes.
func (l *Ledger) SubmitRoster(ctx context.Context, sub Submission) (Receipt, error) {
	const op = "submit roster"

	sub.Section = model.NormalizeSection(sub.Section)
	sub.Subject = strings.TrimSpace(sub.Subject)
	sub.Identity.Ref = strings.TrimSpace(sub.Identity.Ref)

	fail := func(kind error, studentID string, err error) (Receipt, error) {
		return Receipt{}, &model.Error{
			Op: op, Kind: kind, Section: sub.Section, Date: sub.Date,
			Subject: sub.Subject, StudentID: studentID, Err: err,
		}
	}

	if err := l.validate.Struct(sub); err != nil {
		return fail(model.ErrValidation, "", model.DescribeValidation(err))
	}
	if sub.Date.IsZero() {
		return fail(model.ErrValidation, "", ErrMissingDate)
	}
	if sub.Identity.Ref == "" {
		return fail(model.ErrValidation, "", ErrMissingIdentity)
	}
	if !sub.Identity.Authorized {
		return fail(model.ErrUnauthorized, "", ErrNotAuthorized)
	}

	students, err := l.roster.StudentsBySection(ctx, sub.Section)
	if err != nil {
		return fail(model.ErrStorage, "", err)
	}
	if len(students) == 0 {
		return fail(model.ErrNotFound, "", ErrEmptyRoster)
	}

	enrolled := make(map[string]struct{}, len(students))
	for _, s := range students {
		enrolled[s.ID] = struct{}{}
	}
	for _, id := range sortedKeys(sub.Outcomes) {
		if _, ok := enrolled[id]; !ok {
			return fail(model.ErrValidation, id, ErrUnknownStudent)
		}
	}

	faculty, err := l.store.UpsertFaculty(ctx, provisional(sub.Identity, l.newID(), l.now()))
	if err != nil {
		return fail(model.ErrStorage, "", err)
	}

	key := model.SessionKey{FacultyID: faculty.ID, Date: sub.Date, Subject: sub.Subject}
	now := l.now().UTC()
	records := make([]model.Record, 0, len(students))
	present := 0
	for _, s := range students {
		status, ok := sub.Outcomes[s.ID]
		if !ok {
			status = model.StatusAbsent
		}
		if status == model.StatusPresent {
			present++
		}
		records = append(records, model.Record{
			ID:        l.newID(),
			StudentID: s.ID,
			FacultyID: faculty.ID,
			Section:   sub.Section,
			Date:      sub.Date,
			Subject:   sub.Subject,
			Status:    status,
			CreatedAt: now,
		})
	}

	replaced, err := l.store.ReplaceSession(ctx, key, records)
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			return fail(model.ErrConflict, "", err)
		}
		return fail(model.ErrStorage, "", err)
	}

	return Receipt{
		Key:      key,
		Section:  sub.Section,
		Recorded: len(records),
		Present:  present,
		Absent:   len(records) - present,
		Replaced: replaced,
	}, nil
}

// SessionRecords returns the records the identity currently owns for
// (section, date, subject). An identity that never submitted gets none.
func (l *Ledger) SessionRecords(ctx context.Context, identity model.Identity, section string, date model.Date, subject string) ([]model.Record, error) {
	const op = "session records"
	section = model.NormalizeSection(section)
	subject = strings.TrimSpace(subject)
	if section == "" || subject == "" || date.IsZero() || strings.TrimSpace(identity.Ref) == "" {
		return nil, &model.Error{Op: op, Kind: model.ErrValidation, Section: section, Date: date, Subject: subject}
	}

	faculty, err := l.store.FacultyByIdentity(ctx, strings.TrimSpace(identity.Ref))
	if errors.Is(err, model.ErrNotFound) {
		return []model.Record{}, nil
	}
	if err != nil {
		return nil, &model.Error{Op: op, Kind: model.ErrStorage, Section: section, Date: date, Subject: subject, Err: err}
	}

	all, err := l.store.SessionRecords(ctx, model.SessionKey{FacultyID: faculty.ID, Date: date, Subject: subject})
	if err != nil {
		return nil, &model.Error{Op: op, Kind: model.ErrStorage, Section: section, Date: date, Subject: subject, Err: err}
	}
	out := make([]model.Record, 0, len(all))
	for _, r := range all {
		if r.Section == section {
			out = append(out, r)
		}
	}
	return out, nil
}

// provisional builds the faculty row inserted on first submission.
func provisional(id model.Identity, newID string, now time.Time) model.Faculty {
	f := model.Faculty{
		ID:          newID,
		IdentityRef: id.Ref,
		DisplayName: strings.TrimSpace(id.DisplayName),
		EmployeeID:  strings.TrimSpace(id.EmployeeID),
		CreatedAt:   now.UTC(),
	}
	if f.DisplayName == "" {
		f.DisplayName = DefaultDisplayName
	}
	if f.EmployeeID == "" {
		f.EmployeeID = FallbackEmployeeID(id.Ref)
	}
	return f
}

// FallbackEmployeeID derives "EMP_" plus the first eight characters of ref.
func FallbackEmployeeID(ref string) string {
	r := []rune(ref)
	if len(r) > employeeIDRefChars {
		r = r[:employeeIDRefChars]
	}
	return employeeIDPrefix + string(r)
}

func sortedKeys(m map[string]model.Status) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
