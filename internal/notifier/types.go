package notifier

import "time"

// Config controls delivery.
type Config struct {
	ParseMode      string // "HTML" by default
	RatePerSec     int
	SendTimeout    time.Duration
	HistorySize    int
	DisablePreview bool
}

type HistoryItem struct {
	At     time.Time
	ChatID int64
	Text   string
}

// DeliveryEvent is published on the event bus after each send attempt.
type DeliveryEvent struct {
	ChatID int64         `json:"chat_id"`
	Bytes  int           `json:"bytes"`
	Took   time.Duration `json:"took"`
	At     time.Time     `json:"at"`
	Error  string        `json:"error,omitempty"`
}
