package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/rollcall/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDate(t *testing.T) {
	Convey("Given calendar dates", t, func() {
		Convey("When parsing an ISO day", func() {
			d, err := model.ParseDate("2025-01-10")
			So(err, ShouldBeNil)
			So(d, ShouldResemble, model.Date{Year: 2025, Month: time.January, Day: 10})
			So(d.String(), ShouldEqual, "2025-01-10")
			So(d.Weekday(), ShouldEqual, time.Friday)
		})

		Convey("When parsing garbage", func() {
			_, err := model.ParseDate("10/01/2025")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When shifting across a month boundary", func() {
			d := model.NewDate(2025, time.March, 1).AddDays(-1)
			So(d.String(), ShouldEqual, "2025-02-28")
			So(model.NewDate(2025, time.January, 32).String(), ShouldEqual, "2025-02-01")
		})

		Convey("When comparing", func() {
			a := model.NewDate(2024, time.December, 31)
			b := model.NewDate(2025, time.January, 1)
			So(a.Before(b), ShouldBeTrue)
			So(b.After(a), ShouldBeTrue)
			So(a.Compare(a), ShouldEqual, 0)
		})

		Convey("When scanning database values", func() {
			var d model.Date
			So(d.Scan(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)), ShouldBeNil)
			So(d.String(), ShouldEqual, "2025-01-10")
			So(d.Scan([]byte("2024-02-29")), ShouldBeNil)
			So(d.String(), ShouldEqual, "2024-02-29")
			So(d.Scan(42), ShouldNotBeNil)

			v, err := d.Value()
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "2024-02-29")
		})

		Convey("When the date is zero", func() {
			var d model.Date
			So(d.IsZero(), ShouldBeTrue)
			So(d.String(), ShouldEqual, "")
		})
	})
}

func TestClock(t *testing.T) {
	Convey("Given wall clock values", t, func() {
		Convey("When parsing HH:MM and HH:MM:SS", func() {
			c, err := model.ParseClock("13:30")
			So(err, ShouldBeNil)
			So(c, ShouldEqual, model.NewClock(13, 30))
			So(c.String(), ShouldEqual, "13:30")

			c, err = model.ParseClock("15:30:00")
			So(err, ShouldBeNil)
			So(c.String(), ShouldEqual, "15:30")
		})

		Convey("When the value is out of range", func() {
			for _, in := range []string{"24:00", "12:60", "noon", "1", "10:00:61"} {
				_, err := model.ParseClock(in)
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			}
		})

		Convey("When truncating an instant", func() {
			at := time.Date(2025, 1, 10, 9, 59, 59, 0, time.UTC)
			So(model.ClockOf(at), ShouldEqual, model.NewClock(9, 59))
		})
	})
}

func TestTimetableEntryContains(t *testing.T) {
	Convey("Given a 09:00-09:50 slot", t, func() {
		e := model.TimetableEntry{Start: model.NewClock(9, 0), End: model.NewClock(9, 50)}

		Convey("Then both ends are inside", func() {
			So(e.Contains(model.NewClock(9, 0)), ShouldBeTrue)
			So(e.Contains(model.NewClock(9, 50)), ShouldBeTrue)
			So(e.Contains(model.NewClock(9, 51)), ShouldBeFalse)
			So(e.Contains(model.NewClock(8, 59)), ShouldBeFalse)
		})
	})
}

func TestStatusAndQuery(t *testing.T) {
	Convey("Given outcomes and queries", t, func() {
		st, err := model.ParseStatus(" Present ")
		So(err, ShouldBeNil)
		So(st, ShouldEqual, model.StatusPresent)

		_, err = model.ParseStatus("late")
		So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

		q := model.RecordQuery{From: model.NewDate(2025, 1, 1), To: model.NewDate(2025, 1, 7)}
		So(q.Includes(model.NewDate(2025, 1, 1)), ShouldBeTrue)
		So(q.Includes(model.NewDate(2025, 1, 7)), ShouldBeTrue)
		So(q.Includes(model.NewDate(2025, 1, 8)), ShouldBeFalse)
		So(model.RecordQuery{}.Includes(model.NewDate(1999, 1, 1)), ShouldBeTrue)

		So(model.NormalizeSection(" cse-a "), ShouldEqual, "CSE-A")
		So(model.Tally{Total: 4, Present: 3}.Absent(), ShouldEqual, 1)
	})
}

func TestError(t *testing.T) {
	Convey("Given a wrapped storage failure", t, func() {
		cause := errors.New("connection reset")
		err := &model.Error{
			Op:      "submit roster",
			Kind:    model.ErrStorage,
			Section: "CSE-A",
			Date:    model.NewDate(2025, 1, 10),
			Subject: "DLC",
			Err:     cause,
		}

		Convey("Then it matches its kind and cause", func() {
			So(errors.Is(err, model.ErrStorage), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(model.Retryable(err), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "date=2025-01-10")
			So(err.Error(), ShouldContainSubstring, "subject=DLC")
		})

		Convey("Then conflicts are not retryable", func() {
			conflict := &model.Error{Op: "submit roster", Kind: model.ErrConflict}
			So(model.Retryable(conflict), ShouldBeFalse)
		})
	})
}

func TestDescribeValidation(t *testing.T) {
	type form struct {
		Subject  string            `validate:"required"`
		Outcomes map[string]string `validate:"dive,oneof=present absent"`
	}

	Convey("Given a struct validator", t, func() {
		v := validator.New()

		Convey("When fields fail", func() {
			err := model.DescribeValidation(v.Struct(form{Outcomes: map[string]string{"s1": "late"}}))

			Convey("Then each failure is named below the struct", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "Subject failed required")
				So(err.Error(), ShouldContainSubstring, "Outcomes[s1] failed oneof")
				So(err.Error(), ShouldNotContainSubstring, "form.")
			})
		})

		Convey("When the error is not from the validator", func() {
			cause := errors.New("boom")
			So(model.DescribeValidation(cause), ShouldEqual, cause)
		})

		Convey("When the struct is valid", func() {
			So(model.DescribeValidation(v.Struct(form{Subject: "DLC"})), ShouldBeNil)
		})
	})
}
