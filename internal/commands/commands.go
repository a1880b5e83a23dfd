// Package commands implements the task and notification chat commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"deadlinebot/internal/reminder"
	"deadlinebot/internal/tasks"
	"deadlinebot/internal/transport/telegram/router"
	logx "deadlinebot/pkg/logx"
)

const listTimeLayout = "2006-01-02 15:04"

type Deps struct {
	Tasks     *tasks.Service
	Sender    reminder.Sender
	ChannelID int64
	Log       logx.Logger
}

// All returns the router commands backed by d.
func All(d Deps) []router.Command {
	h := &handlers{d: d}
	return []router.Command{
		{
			Name:        "task_add",
			Aliases:     []string{"add"},
			Description: "register a task with a deadline",
			Usage:       "/task_add <subject> <title> <YYYY-MM-DD HH:MM>",
			Handle:      h.taskAdd,
		},
		{
			Name:        "task_list",
			Aliases:     []string{"list", "tasks"},
			Description: "list your open tasks",
			Usage:       "/task_list",
			Handle:      h.taskList,
		},
		{
			Name:        "task_done",
			Aliases:     []string{"done", "submit"},
			Description: "mark a task as submitted",
			Usage:       "/task_done <id>",
			Handle:      h.taskDone,
		},
		{
			Name:        "notify_test",
			Description: "send a test message to the reminder channel",
			Usage:       "/notify_test",
			Timeout:     20 * time.Second,
			Handle:      h.notifyTest,
		},
	}
}

type handlers struct{ d Deps }

func (h *handlers) taskAdd(ctx context.Context, req *router.Request) error {
	if len(req.RawArgs) < 3 {
		return req.Reply(ctx, "usage: <code>/task_add &lt;subject&gt; &lt;title&gt; &lt;YYYY-MM-DD HH:MM&gt;</code>\nquote subjects or titles that contain spaces")
	}
	subject, title := req.RawArgs[0], req.RawArgs[1]
	deadline := strings.Join(req.RawArgs[2:], " ")

	id, err := h.d.Tasks.Create(ctx, req.FromID, subject, title, deadline)
	var ve *tasks.ValidationError
	if errors.As(err, &ve) {
		return req.Reply(ctx, "❌ "+html.EscapeString(ve.Error()))
	}
	if err != nil {
		_ = req.Reply(ctx, "❌ could not save the task, try again later")
		return err
	}
	dl, _ := tasks.ParseDeadline(deadline)
	return req.Reply(ctx, fmt.Sprintf("✅ Task registered <code>#%d</code>\nSubject: %s\nTitle: %s\nDeadline: %s",
		id, html.EscapeString(strings.TrimSpace(subject)), html.EscapeString(strings.TrimSpace(title)), dl.Format(listTimeLayout)))
}

func (h *handlers) taskList(ctx context.Context, req *router.Request) error {
	open, err := h.d.Tasks.ListOpen(ctx, req.FromID)
	if err != nil {
		_ = req.Reply(ctx, "❌ could not load tasks, try again later")
		return err
	}
	if len(open) == 0 {
		return req.Reply(ctx, "No open tasks 🎉")
	}
	var b strings.Builder
	b.WriteString("📋 <b>Open tasks</b>")
	for _, t := range open {
		fmt.Fprintf(&b, "\n<code>#%d</code> %s %s: %s",
			t.ID, t.Deadline.In(time.Local).Format(listTimeLayout), html.EscapeString(t.Subject), html.EscapeString(t.Title))
	}
	return req.Reply(ctx, b.String())
}

func (h *handlers) taskDone(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, "usage: <code>/task_done &lt;id&gt;</code>")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(req.Args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return req.Reply(ctx, "❌ task id must be a positive number")
	}
	ok, err := h.d.Tasks.Submit(ctx, req.FromID, id)
	if err != nil {
		_ = req.Reply(ctx, "❌ could not update the task, try again later")
		return err
	}
	if !ok {
		return req.Reply(ctx, fmt.Sprintf("Task <code>#%d</code> not found among your open tasks", id))
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Task <code>#%d</code> submitted", id))
}

func (h *handlers) notifyTest(ctx context.Context, req *router.Request) error {
	if h.d.Sender == nil || h.d.ChannelID == 0 {
		return req.Reply(ctx, "❌ reminder channel is not configured")
	}
	if err := h.d.Sender.Send(ctx, h.d.ChannelID, "🔔 This is a notification test."); err != nil {
		_ = req.Reply(ctx, "❌ test message failed: "+html.EscapeString(err.Error()))
		return err
	}
	h.d.Log.Info("notification test sent", logx.Int64("channel_id", h.d.ChannelID), logx.Int64("from_id", req.FromID))
	return req.Reply(ctx, "Test message sent to the reminder channel.")
}
