package reminder

import "time"

// KeyTimeLayout renders times inside ledger keys (local clock, second precision).
const KeyTimeLayout = "2006-01-02T15:04:05"

const dayLayout = "2006-01-02"

type Kind string

const (
	KindDeadline Kind = "deadline"
	KindDaily    Kind = "daily"
)

// Event is a logical notification. Key renders the canonical ledger key.
type Event interface {
	Kind() Kind
	Key() string
	isEvent()
}

// DeadlineEvent fires once per (notify time, deadline) pair.
type DeadlineEvent struct {
	NotifyAt time.Time
	Deadline time.Time
}

func (DeadlineEvent) Kind() Kind { return KindDeadline }
func (DeadlineEvent) isEvent()   {}

func (e DeadlineEvent) Key() string {
	return string(KindDeadline) + ":" + e.NotifyAt.In(time.Local).Format(KeyTimeLayout) +
		":" + e.Deadline.In(time.Local).Format(KeyTimeLayout)
}

// DailyEvent fires once per local calendar day.
type DailyEvent struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the DailyEvent for t's local date.
func DayOf(t time.Time) DailyEvent {
	y, m, d := t.In(time.Local).Date()
	return DailyEvent{Year: y, Month: m, Day: d}
}

func (DailyEvent) Kind() Kind { return KindDaily }
func (DailyEvent) isEvent()   {}

func (e DailyEvent) Key() string {
	return string(KindDaily) + ":" + e.Date().Format(dayLayout)
}

// Date is local midnight of the event's day.
func (e DailyEvent) Date() time.Time {
	return time.Date(e.Year, e.Month, e.Day, 0, 0, 0, 0, time.Local)
}

// Contains reports whether t falls on the event's local date.
func (e DailyEvent) Contains(t time.Time) bool {
	return DayOf(t) == e
}
