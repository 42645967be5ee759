package schedule_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/schedule"
	. "github.com/smartystreets/goconvey/convey"
)

func entry(id, section string, day time.Weekday, start, end, subject string) model.TimetableEntry {
	s, err := model.ParseClock(start)
	if err != nil {
		panic(err)
	}
	e, err := model.ParseClock(end)
	if err != nil {
		panic(err)
	}
	return model.TimetableEntry{ID: id, Section: section, DayOfWeek: day, Start: s, End: e, Subject: subject}
}

// 2025-01-10 is a Friday.
var friday = model.NewDate(2025, time.January, 10)

func at(hour, minute int) time.Time {
	return time.Date(2025, time.January, 10, hour, minute, 30, 0, time.UTC)
}

func TestSessionsFor(t *testing.T) {
	Convey("Given a timetable configured out of order", t, func() {
		r := schedule.NewResolver([]model.TimetableEntry{
			entry("f3", "CSE-A", time.Friday, "11:00", "11:50", "DBMS"),
			entry("f1", "CSE-A", time.Friday, "09:00", "09:50", "DLC"),
			entry("t1", "CSE-A", time.Thursday, "09:00", "09:50", "OS"),
			entry("b1", "CSE-B", time.Friday, "09:00", "09:50", "CN"),
			entry("f2", "cse-a", time.Friday, "10:00", "10:50", "MATHS"),
		})

		Convey("When listing Friday for CSE-A", func() {
			got := r.SessionsFor("CSE-A", friday)

			Convey("Then only that section and weekday come back sorted by start", func() {
				So(len(got), ShouldEqual, 3)
				So(got[0].ID, ShouldEqual, "f1")
				So(got[1].ID, ShouldEqual, "f2")
				So(got[2].ID, ShouldEqual, "f3")
			})
		})

		Convey("When the section label differs only in case", func() {
			So(len(r.SessionsFor(" cse-a", friday)), ShouldEqual, 3)
		})

		Convey("When the section has no classes that day", func() {
			So(r.SessionsFor("CSE-B", friday.AddDays(1)), ShouldBeEmpty)
			So(r.SessionsFor("MECH", friday), ShouldBeEmpty)
		})

		Convey("When looking up a picked entry", func() {
			e, ok := r.Session("CSE-A", friday, "f2")
			So(ok, ShouldBeTrue)
			So(e.Subject, ShouldEqual, "MATHS")

			_, ok = r.Session("CSE-A", friday, "t1")
			So(ok, ShouldBeFalse)
		})

		Convey("Then sections and size are reported", func() {
			So(r.Sections(), ShouldResemble, []string{"CSE-A", "CSE-B"})
			So(r.Len(), ShouldEqual, 5)
		})
	})

	Convey("Given equal start times", t, func() {
		r := schedule.NewResolver([]model.TimetableEntry{
			entry("second", "CSE-A", time.Friday, "09:00", "09:30", "LAB-2"),
			entry("first", "CSE-A", time.Friday, "09:00", "09:50", "LAB-1"),
		})

		Convey("Then configuration order is kept", func() {
			got := r.SessionsFor("CSE-A", friday)
			So(got[0].ID, ShouldEqual, "second")
			So(got[1].ID, ShouldEqual, "first")
		})
	})
}

func TestCurrentSession(t *testing.T) {
	Convey("Given non-overlapping classes", t, func() {
		r := schedule.NewResolver([]model.TimetableEntry{
			entry("f1", "CSE-A", time.Friday, "09:00", "09:50", "DLC"),
			entry("f2", "CSE-A", time.Friday, "10:00", "10:50", "MATHS"),
			entry("f3", "CSE-A", time.Friday, "13:30", "14:20", "DBMS"),
		})

		Convey("When the instant is inside a slot", func() {
			e, ok := r.CurrentSession("CSE-A", at(10, 15))
			So(ok, ShouldBeTrue)
			So(e.ID, ShouldEqual, "f2")
		})

		Convey("When the instant is on either boundary minute", func() {
			e, ok := r.CurrentSession("CSE-A", at(9, 0))
			So(ok, ShouldBeTrue)
			So(e.ID, ShouldEqual, "f1")

			e, ok = r.CurrentSession("CSE-A", at(9, 50))
			So(ok, ShouldBeTrue)
			So(e.ID, ShouldEqual, "f1")
		})

		Convey("When the instant is in a gap", func() {
			_, ok := r.CurrentSession("CSE-A", at(9, 55))
			So(ok, ShouldBeFalse)
			_, ok = r.CurrentSession("CSE-A", at(12, 0))
			So(ok, ShouldBeFalse)
		})

		Convey("When it is another day", func() {
			_, ok := r.CurrentSession("CSE-A", at(10, 15).AddDate(0, 0, 1))
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given overlapping classes", t, func() {
		var seen []schedule.Anomaly
		r := schedule.NewResolver([]model.TimetableEntry{
			entry("late", "CSE-A", time.Friday, "09:30", "10:20", "OS"),
			entry("early", "CSE-A", time.Friday, "09:00", "09:50", "DLC"),
			entry("next", "CSE-A", time.Friday, "10:20", "11:10", "CN"),
		}, schedule.WithAnomalyHook(func(a schedule.Anomaly) { seen = append(seen, a) }))

		Convey("When two slots hold the instant", func() {
			e, ok := r.CurrentSession("CSE-A", at(9, 40))

			Convey("Then the earliest start wins and the anomaly is reported", func() {
				So(ok, ShouldBeTrue)
				So(e.ID, ShouldEqual, "early")
				So(len(seen), ShouldEqual, 1)
				So(seen[0].Section, ShouldEqual, "CSE-A")
				So(seen[0].Date, ShouldResemble, friday)
				So(len(seen[0].Entries), ShouldEqual, 2)
			})
		})

		Convey("When slots only share a boundary minute", func() {
			e, ok := r.CurrentSession("CSE-A", at(10, 20))

			Convey("Then the earlier class wins and no anomaly is reported", func() {
				So(ok, ShouldBeTrue)
				So(e.ID, ShouldEqual, "late")
				So(seen, ShouldBeEmpty)
			})
		})

		Convey("When a single slot holds the instant", func() {
			_, ok := r.CurrentSession("CSE-A", at(11, 0))
			So(ok, ShouldBeTrue)
			So(seen, ShouldBeEmpty)
		})

		Convey("When two identical slots both end at the instant", func() {
			twin := schedule.NewResolver([]model.TimetableEntry{
				entry("a", "CSE-B", time.Friday, "09:00", "09:50", "DLC"),
				entry("b", "CSE-B", time.Friday, "09:00", "09:50", "OS"),
			}, schedule.WithAnomalyHook(func(a schedule.Anomaly) { seen = append(seen, a) }))
			e, ok := twin.CurrentSession("CSE-B", at(9, 50))

			Convey("Then the duplicate is still reported", func() {
				So(ok, ShouldBeTrue)
				So(e.ID, ShouldEqual, "a")
				So(len(seen), ShouldEqual, 1)
			})
		})

		Convey("Then Overlaps lists both intersecting pairs", func() {
			So(len(r.Overlaps()), ShouldEqual, 2)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given timetable entries", t, func() {
		Convey("When they are well formed", func() {
			err := schedule.Validate([]model.TimetableEntry{
				entry("a", "CSE-A", time.Monday, "09:00", "09:50", "DLC"),
			})
			So(err, ShouldBeNil)
		})

		Convey("When they are malformed", func() {
			bad := entry("a", "CSE-A", time.Monday, "10:00", "09:00", "DLC")
			noSubject := entry("b", "CSE-A", time.Monday, "09:00", "09:50", "")
			dup := entry("a", "CSE-A", time.Tuesday, "09:00", "09:50", "OS")
			badDay := entry("c", "CSE-A", time.Weekday(7), "09:00", "09:50", "OS")

			err := schedule.Validate([]model.TimetableEntry{bad, noSubject, dup, badDay})

			Convey("Then every problem is reported as a validation error", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, schedule.ErrInvalidEntry), ShouldBeTrue)
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "bad interval")
				So(err.Error(), ShouldContainSubstring, "missing subject")
				So(err.Error(), ShouldContainSubstring, "duplicate id")
				So(err.Error(), ShouldContainSubstring, "out of range")
			})
		})
	})
}
