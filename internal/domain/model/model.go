// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome recorded for one student in one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// Valid reports whether s is a known outcome.
func (s Status) Valid() bool { return s == StatusPresent || s == StatusAbsent }

// ParseStatus accepts the two outcomes case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("status %q: %w", s, ErrValidation)
	}
	return st, nil
}

// Student is read-only reference data owned by the roster.
type Student struct {
	ID         string `json:"id" db:"id"`
	RollNumber string `json:"roll_number" db:"roll_number"`
	Name       string `json:"name" db:"name"`
	Section    string `json:"section" db:"section"`
}

// Faculty is provisioned lazily the first time an identity submits.
type Faculty struct {
	ID          string    `json:"id" db:"id"`
	IdentityRef string    `json:"identity_ref" db:"identity_ref"`
	DisplayName string    `json:"display_name" db:"display_name"`
	EmployeeID  string    `json:"employee_id" db:"employee_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Record is one attendance outcome. Records are never edited in place:
// a resubmission deletes the session's rows and inserts a fresh set.
type Record struct {
	ID        string    `json:"id" db:"id"`
	Seq       int64     `json:"-" db:"seq"`
	StudentID string    `json:"student_id" db:"student_id"`
	FacultyID string    `json:"faculty_id" db:"faculty_id"`
	Section   string    `json:"section" db:"section"`
	Date      Date      `json:"date" db:"date"`
	Subject   string    `json:"subject" db:"subject"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TimetableEntry is one weekly slot of the static timetable.
type TimetableEntry struct {
	ID           string       `json:"id"`
	DayOfWeek    time.Weekday `json:"day_of_week"`
	Start        Clock        `json:"start_time"`
	End          Clock        `json:"end_time"`
	Subject      string       `json:"subject"`
	Section      string       `json:"section"`
	FacultyLabel string       `json:"faculty"`
}

// Contains reports whether c lies in the closed interval [Start, End].
func (e TimetableEntry) Contains(c Clock) bool {
	return e.Start <= c && c <= e.End
}

// Identity is what the external identity provider vouches for.
type Identity struct {
	Ref         string
	DisplayName string
	EmployeeID  string
	Authorized  bool
}

// SessionKey scopes a roster replacement.
type SessionKey struct {
	FacultyID string `json:"faculty_id"`
	Date      Date   `json:"date"`
	Subject   string `json:"subject"`
}

func (k SessionKey) String() string {
	return k.FacultyID + "/" + k.Date.String() + "/" + k.Subject
}

// Tally is a present/total count pair.
type Tally struct {
	Total   int
	Present int
}

// Absent returns Total - Present.
func (t Tally) Absent() int { return t.Total - t.Present }

// RecordQuery selects a student's records in [From, To], newest first.
// A zero From or To leaves that side open. Limit 0 asks for counts only.
type RecordQuery struct {
	StudentID string
	From      Date
	To        Date
	Offset    int
	Limit     int
}

// Includes reports whether d satisfies the query's date bounds.
func (q RecordQuery) Includes(d Date) bool {
	if !q.From.IsZero() && d.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && d.After(q.To) {
		return false
	}
	return true
}

// RecordPage is one slice of a RecordQuery plus counts over the whole match.
type RecordPage struct {
	Records []Record
	Total   int
	Present int
}

// NormalizeSection trims and upper-cases a section label.
func NormalizeSection(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// NormalizeRoll trims and upper-cases a roll number.
func NormalizeRoll(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
