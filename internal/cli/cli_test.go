package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func sqliteConfig(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "tasks.db")
	return writeConfig(t, `
telegram:
  token: "123:abc"
storage:
  driver: sqlite
  path: "`+db+`"
scheduler:
  channel_id: -1001
`)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTaskCommands(t *testing.T) {
	cfg := sqliteConfig(t)

	out, err := run(t, "-c", cfg, "task", "add", "--owner", "42", "Math", "Homework 3", "2030-01-02", "23:59")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "task #1 registered") {
		t.Fatalf("add output = %q", out)
	}

	out, err = run(t, "-c", cfg, "--format", "json", "task", "list", "--owner", "42")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var rows []taskRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("list json: %v\n%s", err, out)
	}
	if len(rows) != 1 || rows[0].Title != "Homework 3" || rows[0].Deadline.Format("2006-01-02 15:04") != "2030-01-02 23:59" {
		t.Fatalf("rows = %+v", rows)
	}

	if _, err := run(t, "-c", cfg, "task", "done", "--owner", "7", "1"); err == nil {
		t.Fatal("other owner must not submit the task")
	}
	if out, err := run(t, "-c", cfg, "task", "done", "--owner", "42", "#1"); err != nil || !strings.Contains(out, "submitted") {
		t.Fatalf("done = %q, %v", out, err)
	}
	out, err = run(t, "-c", cfg, "task", "list", "--owner", "42")
	if err != nil || !strings.Contains(out, "no open tasks") {
		t.Fatalf("list after done = %q, %v", out, err)
	}
}

func TestTaskAddRejectsBadDeadline(t *testing.T) {
	cfg := sqliteConfig(t)
	_, err := run(t, "-c", cfg, "task", "add", "--owner", "42", "Math", "HW", "tomorrow")
	if err == nil || !strings.Contains(err.Error(), "invalid input") {
		t.Fatalf("err = %v", err)
	}
}

func TestTaskRequiresOwner(t *testing.T) {
	cfg := sqliteConfig(t)
	if _, err := run(t, "-c", cfg, "task", "list"); err == nil {
		t.Fatal("expected missing --owner error")
	}
}

func TestConfigCheck(t *testing.T) {
	out, err := run(t, "-c", sqliteConfig(t), "config", "check")
	if err != nil || !strings.Contains(out, ": ok") {
		t.Fatalf("check valid = %q, %v", out, err)
	}

	bad := writeConfig(t, "telegram:\n  token: x\nstorage:\n  driver: memory\nscheduler:\n  channel_id: 1\n  daily_at: \"7 am\"\n")
	out, err = run(t, "-c", bad, "--format", "json", "config", "check")
	if err == nil {
		t.Fatal("expected invalid config")
	}
	var res struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if jerr := json.Unmarshal([]byte(out), &res); jerr != nil {
		t.Fatalf("json: %v\n%s", jerr, out)
	}
	if res.Valid || !strings.Contains(res.Error, "daily_at") {
		t.Fatalf("res = %+v", res)
	}
}

func TestRejectsUnknownFormat(t *testing.T) {
	if _, err := run(t, "--format", "xml", "config", "check"); err == nil {
		t.Fatal("expected format error")
	}
}
