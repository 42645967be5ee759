package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/domain/ledger"
	"github.com/okian/rollcall/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeRoster struct {
	students map[string][]model.Student
	err      error
}

func (f *fakeRoster) StudentsBySection(_ context.Context, section string) ([]model.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.students[section], nil
}

// fakeStore keeps records keyed by (student, date, subject) like the real stores.
type fakeStore struct {
	mu         sync.Mutex
	faculty    map[string]model.Faculty
	records    map[string]model.Record
	upserts    int
	replaces   int
	replaceErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{faculty: map[string]model.Faculty{}, records: map[string]model.Record{}}
}

func (f *fakeStore) UpsertFaculty(_ context.Context, in model.Faculty) (model.Faculty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if got, ok := f.faculty[in.IdentityRef]; ok {
		return got, nil
	}
	f.faculty[in.IdentityRef] = in
	return in, nil
}

func (f *fakeStore) FacultyByIdentity(_ context.Context, ref string) (model.Faculty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	got, ok := f.faculty[ref]
	if !ok {
		return model.Faculty{}, model.ErrNotFound
	}
	return got, nil
}

func (f *fakeStore) ReplaceSession(_ context.Context, key model.SessionKey, recs []model.Record) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces++
	if f.replaceErr != nil {
		return 0, f.replaceErr
	}
	deleted := 0
	for k, r := range f.records {
		if r.FacultyID == key.FacultyID && r.Date == key.Date && r.Subject == key.Subject {
			delete(f.records, k)
			deleted++
		}
	}
	for _, r := range recs {
		f.records[r.StudentID+"|"+r.Date.String()+"|"+r.Subject] = r
	}
	return deleted, nil
}

func (f *fakeStore) SessionRecords(_ context.Context, key model.SessionKey) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Record
	for _, r := range f.records {
		if r.FacultyID == key.FacultyID && r.Date == key.Date && r.Subject == key.Subject {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (f *fakeStore) statuses() map[string]model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]model.Status{}
	for _, r := range f.records {
		out[r.StudentID] = r.Status
	}
	return out
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func TestSubmitRoster(t *testing.T) {
	Convey("Given a section roster of three students", t, func() {
		ctx := context.Background()
		roster := &fakeRoster{students: map[string][]model.Student{
			"CSE-A": {
				{ID: "S1", RollNumber: "21CSE001", Section: "CSE-A"},
				{ID: "S2", RollNumber: "21CSE002", Section: "CSE-A"},
				{ID: "S3", RollNumber: "21CSE003", Section: "CSE-A"},
			},
		}}
		store := newFakeStore()
		fixed := time.Date(2025, 1, 10, 9, 5, 0, 0, time.UTC)
		l := ledger.New(roster, store,
			ledger.WithClock(func() time.Time { return fixed }),
			ledger.WithIDGenerator(sequentialIDs()),
		)
		date := model.NewDate(2025, time.January, 10)
		faculty := model.Identity{Ref: "a1b2c3d4e5f6", Authorized: true}

		Convey("When only S1 is marked present", func() {
			rec, err := l.SubmitRoster(ctx, ledger.Submission{
				Section: "CSE-A", Date: date, Subject: "DLC", Identity: faculty,
				Outcomes: map[string]model.Status{"S1": model.StatusPresent},
			})

			Convey("Then the unmarked students are recorded absent", func() {
				So(err, ShouldBeNil)
				So(rec.Recorded, ShouldEqual, 3)
				So(rec.Present, ShouldEqual, 1)
				So(rec.Absent, ShouldEqual, 2)
				So(rec.Replaced, ShouldEqual, 0)
				So(store.statuses(), ShouldResemble, map[string]model.Status{
					"S1": model.StatusPresent, "S2": model.StatusAbsent, "S3": model.StatusAbsent,
				})

				got, err := l.SessionRecords(ctx, faculty, "cse-a", date, "DLC")
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 3)
				for _, r := range got {
					So(r.Date, ShouldResemble, date)
					So(r.Subject, ShouldEqual, "DLC")
					So(r.Section, ShouldEqual, "CSE-A")
					So(r.CreatedAt, ShouldEqual, fixed)
				}
			})

			Convey("Then the faculty is provisioned with fallbacks", func() {
				f, err := store.FacultyByIdentity(ctx, "a1b2c3d4e5f6")
				So(err, ShouldBeNil)
				So(f.EmployeeID, ShouldEqual, "EMP_a1b2c3d4")
				So(f.DisplayName, ShouldEqual, ledger.DefaultDisplayName)
				So(rec.Key.FacultyID, ShouldEqual, f.ID)
			})

			Convey("And the same key is resubmitted with different marks", func() {
				rec2, err := l.SubmitRoster(ctx, ledger.Submission{
					Section: "CSE-A", Date: date, Subject: "DLC", Identity: faculty,
					Outcomes: map[string]model.Status{"S2": model.StatusPresent, "S3": model.StatusPresent},
				})

				Convey("Then exactly the second roster remains", func() {
					So(err, ShouldBeNil)
					So(rec2.Replaced, ShouldEqual, 3)
					So(rec2.Key, ShouldResemble, rec.Key)
					So(store.statuses(), ShouldResemble, map[string]model.Status{
						"S1": model.StatusAbsent, "S2": model.StatusPresent, "S3": model.StatusPresent,
					})
					So(store.upserts, ShouldEqual, 2)
				})
			})

			Convey("And the identical roster is resubmitted", func() {
				before := store.statuses()
				_, err := l.SubmitRoster(ctx, ledger.Submission{
					Section: "CSE-A", Date: date, Subject: "DLC", Identity: faculty,
					Outcomes: map[string]model.Status{"S1": model.StatusPresent},
				})

				Convey("Then the ledger state is unchanged", func() {
					So(err, ShouldBeNil)
					So(store.statuses(), ShouldResemble, before)
					So(len(store.records), ShouldEqual, 3)
				})
			})
		})

		Convey("When profile hints are supplied", func() {
			id := model.Identity{Ref: "ref-1", DisplayName: "Dr. Rao", EmployeeID: "E-77", Authorized: true}
			_, err := l.SubmitRoster(ctx, ledger.Submission{Section: "CSE-A", Date: date, Subject: "OS", Identity: id})
			So(err, ShouldBeNil)
			f, _ := store.FacultyByIdentity(ctx, "ref-1")
			So(f.DisplayName, ShouldEqual, "Dr. Rao")
			So(f.EmployeeID, ShouldEqual, "E-77")
		})

		Convey("When an outcome names a student outside the roster", func() {
			_, err := l.SubmitRoster(ctx, ledger.Submission{
				Section: "CSE-A", Date: date, Subject: "DLC", Identity: faculty,
				Outcomes: map[string]model.Status{"S1": model.StatusPresent, "S9": model.StatusPresent},
			})

			Convey("Then nothing is written", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				So(errors.Is(err, ledger.ErrUnknownStudent), ShouldBeTrue)
				var me *model.Error
				So(errors.As(err, &me), ShouldBeTrue)
				So(me.StudentID, ShouldEqual, "S9")
				So(store.upserts, ShouldEqual, 0)
				So(store.replaces, ShouldEqual, 0)
			})
		})

		Convey("When an outcome has an unknown status", func() {
			_, err := l.SubmitRoster(ctx, ledger.Submission{
				Section: "CSE-A", Date: date, Subject: "DLC", Identity: faculty,
				Outcomes: map[string]model.Status{"S1": "late"},
			})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			So(store.upserts, ShouldEqual, 0)
		})

		Convey("When required fields are blank", func() {
			for _, sub := range []ledger.Submission{
				{Section: "  ", Date: date, Subject: "DLC", Identity: faculty},
				{Section: "CSE-A", Date: date, Subject: " ", Identity: faculty},
				{Section: "CSE-A", Subject: "DLC", Identity: faculty},
				{Section: "CSE-A", Date: date, Subject: "DLC", Identity: model.Identity{Authorized: true}},
			} {
				_, err := l.SubmitRoster(ctx, sub)
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			}
			So(store.replaces, ShouldEqual, 0)
		})

		Convey("When the identity is not authorized", func() {
			_, err := l.SubmitRoster(ctx, ledger.Submission{
				Section: "CSE-A", Date: date, Subject: "DLC",
				Identity: model.Identity{Ref: "student-1"},
			})
			So(errors.Is(err, model.ErrUnauthorized), ShouldBeTrue)
			So(store.upserts, ShouldEqual, 0)
		})

		Convey("When the section has no students", func() {
			_, err := l.SubmitRoster(ctx, ledger.Submission{Section: "MECH", Date: date, Subject: "DLC", Identity: faculty})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the replace fails", func() {
			cause := errors.New("connection reset")
			store.replaceErr = cause
			_, err := l.SubmitRoster(ctx, ledger.Submission{Section: "CSE-A", Date: date, Subject: "DLC", Identity: faculty})

			Convey("Then a retryable storage failure carries the session coordinates", func() {
				So(errors.Is(err, model.ErrStorage), ShouldBeTrue)
				So(errors.Is(err, cause), ShouldBeTrue)
				So(model.Retryable(err), ShouldBeTrue)
				var me *model.Error
				So(errors.As(err, &me), ShouldBeTrue)
				So(me.Section, ShouldEqual, "CSE-A")
				So(me.Subject, ShouldEqual, "DLC")
				So(me.Date, ShouldResemble, date)
			})
		})

		Convey("When the replace hits another faculty's records", func() {
			store.replaceErr = fmt.Errorf("duplicate record: %w", model.ErrConflict)
			_, err := l.SubmitRoster(ctx, ledger.Submission{Section: "CSE-A", Date: date, Subject: "DLC", Identity: faculty})
			So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
			So(model.Retryable(err), ShouldBeFalse)
		})

		Convey("When the roster lookup fails", func() {
			roster.err = errors.New("db down")
			_, err := l.SubmitRoster(ctx, ledger.Submission{Section: "CSE-A", Date: date, Subject: "DLC", Identity: faculty})
			So(errors.Is(err, model.ErrStorage), ShouldBeTrue)
		})
	})
}

func TestSessionRecordsForNewIdentity(t *testing.T) {
	Convey("Given an identity that never submitted", t, func() {
		l := ledger.New(&fakeRoster{}, newFakeStore())
		got, err := l.SessionRecords(context.Background(), model.Identity{Ref: "nobody"}, "CSE-A", model.NewDate(2025, 1, 10), "DLC")
		So(err, ShouldBeNil)
		So(got, ShouldBeEmpty)
	})
}

func TestFallbackEmployeeID(t *testing.T) {
	Convey("Given identity references of different lengths", t, func() {
		So(ledger.FallbackEmployeeID("0123456789abcdef"), ShouldEqual, "EMP_01234567")
		So(ledger.FallbackEmployeeID("abc"), ShouldEqual, "EMP_abc")
	})
}
