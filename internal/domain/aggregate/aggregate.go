// Package aggregate derives read-only attendance projections from the
// record ledger.
package aggregate

import (
	"context"
	"math"
	"strings"

	"github.com/okian/rollcall/internal/domain/model"
)

// DefaultPageSize is the number of history rows per page.
const DefaultPageSize = 7

// Standing thresholds in percent.
const (
	excellentFrom = 85
	goodFrom      = 75
)

// Standing bands a percentage for the student portal.
type Standing string

const (
	StandingExcellent        Standing = "Excellent"
	StandingGood             Standing = "Good"
	StandingNeedsImprovement Standing = "Needs Improvement"
)

// Reader is the read side of the record store.
type Reader interface {
	StudentTally(ctx context.Context, studentID string) (model.Tally, error)
	// StudentRecords returns the query's page ordered by date desc then
	// insertion order desc, with Total and Present counted over every match.
	StudentRecords(ctx context.Context, q model.RecordQuery) (model.RecordPage, error)
}

// Stats is a student's lifetime attendance.
type Stats struct {
	TotalClasses int      `json:"total_classes"`
	PresentCount int      `json:"present_count"`
	AbsentCount  int      `json:"absent_count"`
	Percentage   float64  `json:"percentage"`
	Standing     Standing `json:"standing"`
}

// HistoryPage is one page of a windowed history.
type HistoryPage struct {
	Window       Window         `json:"window"`
	From         model.Date     `json:"from"`
	To           model.Date     `json:"to"`
	Records      []model.Record `json:"records"`
	TotalCount   int            `json:"total_count"`
	PresentCount int            `json:"present_count"`
	AbsentCount  int            `json:"absent_count"`
	Page         int            `json:"page"`
	PageSize     int            `json:"page_size"`
	PageCount    int            `json:"page_count"`
}

// Aggregator holds no state besides its reader.
type Aggregator struct {
	reader   Reader
	pageSize int
}

// New constructs an Aggregator.
func New(reader Reader, opts ...Option) *Aggregator {
	a := &Aggregator{reader: reader, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PageSize reports the configured page size.
func (a *Aggregator) PageSize() int { return a.pageSize }

// OverallStats counts every record of the student. A student without
// records gets all zeros.
func (a *Aggregator) OverallStats(ctx context.Context, studentID string) (Stats, error) {
	const op = "overall stats"
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return Stats{}, &model.Error{Op: op, Kind: model.ErrValidation, Err: ErrMissingStudent}
	}
	t, err := a.reader.StudentTally(ctx, studentID)
	if err != nil {
		return Stats{}, &model.Error{Op: op, Kind: model.ErrStorage, StudentID: studentID, Err: err}
	}
	pct := Percentage(t.Present, t.Total)
	return Stats{
		TotalClasses: t.Total,
		PresentCount: t.Present,
		AbsentCount:  t.Absent(),
		Percentage:   pct,
		Standing:     StandingFor(pct),
	}, nil
}

// History returns page (zero-based) of the student's records inside window
// ending at today. Pages past the end, and negative pages, come back with
// no records but with the window's counts filled in.
func (a *Aggregator) History(ctx context.Context, studentID string, window Window, page int, today model.Date) (HistoryPage, error) {
	const op = "history"
	studentID = strings.TrimSpace(studentID)
	switch {
	case studentID == "":
		return HistoryPage{}, &model.Error{Op: op, Kind: model.ErrValidation, Err: ErrMissingStudent}
	case !window.Valid():
		return HistoryPage{}, &model.Error{Op: op, Kind: model.ErrValidation, StudentID: studentID, Err: ErrUnknownWindow}
	case today.IsZero():
		return HistoryPage{}, &model.Error{Op: op, Kind: model.ErrValidation, StudentID: studentID, Err: ErrMissingToday}
	}

	from, to := window.Range(today)
	q := model.RecordQuery{StudentID: studentID, From: from, To: to}
	if page >= 0 && page <= math.MaxInt/a.pageSize-1 {
		q.Offset = page * a.pageSize
		q.Limit = a.pageSize
	}

	res, err := a.reader.StudentRecords(ctx, q)
	if err != nil {
		return HistoryPage{}, &model.Error{Op: op, Kind: model.ErrStorage, StudentID: studentID, Err: err}
	}
	records := res.Records
	if records == nil || q.Limit == 0 {
		records = []model.Record{}
	}

	return HistoryPage{
		Window:       window,
		From:         from,
		To:           to,
		Records:      records,
		TotalCount:   res.Total,
		PresentCount: res.Present,
		AbsentCount:  res.Total - res.Present,
		Page:         page,
		PageSize:     a.pageSize,
		PageCount:    (res.Total + a.pageSize - 1) / a.pageSize,
	}, nil
}

// Percentage returns present/total*100 rounded half-up to two decimals,
// or 0 when total is 0.
func Percentage(present, total int) float64 {
	if total <= 0 {
		return 0
	}
	basis := int64(present) * 10000
	hundredths := (2*basis + int64(total)) / (2 * int64(total))
	return float64(hundredths) / 100
}

// StandingFor bands a percentage.
func StandingFor(pct float64) Standing {
	switch {
	case pct >= excellentFrom:
		return StandingExcellent
	case pct >= goodFrom:
		return StandingGood
	default:
		return StandingNeedsImprovement
	}
}
