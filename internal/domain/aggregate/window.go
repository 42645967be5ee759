package aggregate

import (
	"fmt"
	"strings"

	"github.com/okian/rollcall/internal/domain/model"
)

// Window is a named history range ending today.
type Window string

const (
	Today       Window = "today"
	PastWeek    Window = "pastWeek"
	PastMonth   Window = "pastMonth"
	Past3Months Window = "past3Months"
	Past6Months Window = "past6Months"

	// DefaultWindow is used when the caller names none.
	DefaultWindow = PastWeek
)

var windowDays = map[Window]int{
	Today:       0,
	PastWeek:    7,
	PastMonth:   30,
	Past3Months: 90,
	Past6Months: 180,
}

var windowAliases = map[string]Window{
	"today":       Today,
	"week":        PastWeek,
	"pastweek":    PastWeek,
	"month":       PastMonth,
	"pastmonth":   PastMonth,
	"3months":     Past3Months,
	"past3months": Past3Months,
	"6months":     Past6Months,
	"past6months": Past6Months,
}

// ParseWindow accepts canonical names and the short forms "week", "month",
// "3months" and "6months". An empty string yields DefaultWindow.
func ParseWindow(s string) (Window, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return DefaultWindow, nil
	}
	if w, ok := windowAliases[key]; ok {
		return w, nil
	}
	return "", fmt.Errorf("window %q: %w", s, ErrUnknownWindow)
}

// Days is the look-back length; 0 for Today.
func (w Window) Days() int { return windowDays[w] }

// Valid reports whether w is a known window.
func (w Window) Valid() bool {
	_, ok := windowDays[w]
	return ok
}

// Range returns the inclusive [from, to] dates of w relative to today.
// Today is an exact match; the others span today-N through today.
func (w Window) Range(today model.Date) (model.Date, model.Date) {
	return today.AddDays(-w.Days()), today
}
