// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// queryDate parses ?name=YYYY-MM-DD. A missing value yields the zero date.
func queryDate(q url.Values, name string) (model.Date, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return model.Date{}, nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return model.Date{}, fmt.Errorf("%w: %s: %v", ErrBadRequest, name, err)
	}
	return d, nil
}

// queryInstant parses ?name= as RFC3339, or as a local "YYYY-MM-DDTHH:MM"
// wall time in loc. A missing value yields the zero time.
func queryInstant(q url.Values, name string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC3339 or YYYY-MM-DDTHH:MM", ErrBadRequest, name)
	}
	return t, nil
}

// queryInt parses ?name= as a non-negative int, defaulting to def.
func queryInt(q url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrBadRequest, name)
	}
	return n, nil
}
