package tasks

import (
	"fmt"
	"strings"
	"time"
)

// DeadlineLayouts lists the accepted deadline formats, tried in order.
// All but RFC3339 are interpreted on the local clock.
var DeadlineLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04",
	time.RFC3339,
}

// ValidationError reports user input that cannot become a task.
type ValidationError struct {
	Field string
	Value string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return e.Field + ": " + e.Msg
	}
	v := e.Value
	if len(v) > 64 {
		v = v[:61] + "..."
	}
	return fmt.Sprintf("%s %q: %s", e.Field, v, e.Msg)
}

// ParseDeadline parses s with the first matching layout.
func ParseDeadline(s string) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, &ValidationError{Field: "deadline", Msg: "is required"}
	}
	for _, layout := range DeadlineLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, s)
			if err == nil {
				t = t.Local()
			}
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{Field: "deadline", Value: s, Msg: "expected YYYY-MM-DD HH:MM"}
}
