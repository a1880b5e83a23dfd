package reminder

import (
	"html"
	"strconv"
	"strings"
	"time"

	"deadlinebot/internal/storage"
)

// Mention renders an HTML link that pings a Telegram user.
func Mention(owner int64) string {
	return `<a href="tg://user?id=` + strconv.FormatInt(owner, 10) + `">user ` + strconv.FormatInt(owner, 10) + `</a>`
}

// RenderDeadline lists every task of the group with the deadline's time of day.
func RenderDeadline(owner int64, g Group) string {
	dl := g.Deadline.In(time.Local)
	var b strings.Builder
	b.WriteString("⏰ ")
	b.WriteString(Mention(owner))
	b.WriteString(", due at <b>")
	b.WriteString(dl.Format("15:04"))
	b.WriteString("</b> (")
	b.WriteString(dl.Format(dayLayout))
	b.WriteString("):")
	for _, it := range g.Items {
		b.WriteString("\n• ")
		writeItem(&b, it.ID, it.Subject, it.Title)
	}
	return b.String()
}

// RenderDaily lists today's tasks in deadline order.
func RenderDaily(owner int64, day DailyEvent, due []storage.Task) string {
	var b strings.Builder
	b.WriteString("📅 ")
	b.WriteString(Mention(owner))
	b.WriteString(", due today (")
	b.WriteString(day.Date().Format(dayLayout))
	b.WriteString("):")
	for _, t := range due {
		b.WriteString("\n• <b>")
		b.WriteString(t.Deadline.In(time.Local).Format("15:04"))
		b.WriteString("</b> ")
		writeItem(&b, t.ID, t.Subject, t.Title)
	}
	return b.String()
}

func writeItem(b *strings.Builder, id int64, subject, title string) {
	b.WriteString(html.EscapeString(subject))
	b.WriteString(": ")
	b.WriteString(html.EscapeString(title))
	b.WriteString(" <code>#")
	b.WriteString(strconv.FormatInt(id, 10))
	b.WriteString("</code>")
}
