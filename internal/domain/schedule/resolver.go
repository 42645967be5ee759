// Package schedule answers "which classes does a section have today" and
// "which class is running right now" from a static weekly timetable.
package schedule

import (
	"sort"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// Resolver is immutable after construction and safe for concurrent use.
type Resolver struct {
	bySection map[string][]model.TimetableEntry // configuration order
	sections  []string
	total     int
	onOverlap AnomalyHook
}

// NewResolver indexes entries by normalized section. Configuration order is
// kept so equal start times resolve the same way on every call.
func NewResolver(entries []model.TimetableEntry, opts ...Option) *Resolver {
	r := &Resolver{bySection: make(map[string][]model.TimetableEntry)}
	for _, opt := range opts {
		opt(r)
	}

	for _, e := range entries {
		e.Section = model.NormalizeSection(e.Section)
		if _, ok := r.bySection[e.Section]; !ok {
			r.sections = append(r.sections, e.Section)
		}
		r.bySection[e.Section] = append(r.bySection[e.Section], e)
		r.total++
	}
	sort.Strings(r.sections)
	return r
}

// SessionsFor returns the section's entries on date's weekday ordered by
// start time. An unknown section or a free day yields an empty slice.
func (r *Resolver) SessionsFor(section string, date model.Date) []model.TimetableEntry {
	return r.sessionsOn(model.NormalizeSection(section), date.Weekday())
}

func (r *Resolver) sessionsOn(section string, day time.Weekday) []model.TimetableEntry {
	out := make([]model.TimetableEntry, 0, 8)
	for _, e := range r.bySection[section] {
		if e.DayOfWeek == day {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// CurrentSession returns the entry whose closed [Start, End] interval holds
// at's minute of day. at must already be in the institution's zone. When
// several entries match the earliest start wins. The anomaly hook fires only
// for a real overlap, not for one class ending the minute the next begins.
func (r *Resolver) CurrentSession(section string, at time.Time) (model.TimetableEntry, bool) {
	section = model.NormalizeSection(section)
	date := model.DateOf(at)
	clock := model.ClockOf(at)

	var matches []model.TimetableEntry
	for _, e := range r.sessionsOn(section, date.Weekday()) {
		if e.Contains(clock) {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		return model.TimetableEntry{}, false
	}
	if r.onOverlap != nil && overlapping(matches) {
		r.onOverlap(Anomaly{Section: section, Date: date, At: clock, Entries: matches})
	}
	return matches[0], true
}

// overlapping reports whether any two entries share more than a boundary
// minute.
func overlapping(entries []model.TimetableEntry) bool {
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			start, end := a.Start, a.End
			if b.Start > start {
				start = b.Start
			}
			if b.End < end {
				end = b.End
			}
			if start < end {
				return true
			}
		}
	}
	return false
}

// Session looks up one entry of section's timetable on date by ID.
func (r *Resolver) Session(section string, date model.Date, id string) (model.TimetableEntry, bool) {
	for _, e := range r.SessionsFor(section, date) {
		if e.ID == id {
			return e, true
		}
	}
	return model.TimetableEntry{}, false
}

// Sections lists configured sections in lexical order.
func (r *Resolver) Sections() []string {
	out := make([]string, len(r.sections))
	copy(out, r.sections)
	return out
}

// Len is the total number of configured entries.
func (r *Resolver) Len() int { return r.total }

// Overlaps reports every pair of same-day entries in a section whose
// intervals intersect, including pairs that only share a boundary minute.
func (r *Resolver) Overlaps() []Anomaly {
	var out []Anomaly
	for _, section := range r.sections {
		for day := time.Sunday; day <= time.Saturday; day++ {
			entries := r.sessionsOn(section, day)
			for i := 0; i < len(entries); i++ {
				for j := i + 1; j < len(entries); j++ {
					a, b := entries[i], entries[j]
					if b.Start <= a.End && a.Start <= b.End {
						out = append(out, Anomaly{
							Section: section,
							Weekday: day,
							At:      b.Start,
							Entries: []model.TimetableEntry{a, b},
						})
					}
				}
			}
		}
	}
	return out
}
