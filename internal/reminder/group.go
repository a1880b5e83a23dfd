package reminder

import (
	"time"

	"deadlinebot/internal/storage"
)

// Item is the part of a task shown in a reminder.
type Item struct {
	ID      int64
	Subject string
	Title   string
}

// Group is a set of tasks sharing one deadline minute.
type Group struct {
	Deadline time.Time
	Items    []Item
}

// GroupByMinute buckets tasks by local deadline truncated to the minute.
// Groups come out in first-seen order, so deadline-sorted input yields
// deadline-sorted groups.
func GroupByMinute(tasks []storage.Task) []Group {
	idx := make(map[int64]int, len(tasks))
	var out []Group
	for _, t := range tasks {
		dl := t.Deadline.In(time.Local).Truncate(time.Minute)
		k := dl.Unix()
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Group{Deadline: dl})
		}
		out[i].Items = append(out[i].Items, Item{ID: t.ID, Subject: t.Subject, Title: t.Title})
	}
	return out
}

// LeadTime is one hour of warning per task sharing the deadline minute.
func LeadTime(g Group) time.Duration {
	return time.Duration(len(g.Items)) * time.Hour
}

// NotifyAt is when the group's reminder is due.
func NotifyAt(g Group) time.Time {
	return g.Deadline.Add(-LeadTime(g))
}

// Matches reports |now - target| <= window.
func Matches(now, target time.Time, window time.Duration) bool {
	d := now.Sub(target)
	if d < 0 {
		d = -d
	}
	return d <= window
}
