package logx

import (
	"strings"
	"testing"
)

func TestRenderChatLine(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"2025-01-01T00:00:00Z","message":"tick failed","owner":42,"comp":"reminder"}` + "\n")
	got := renderChatLine(line)
	want := "[WARN] tick failed\n- comp=reminder\n- owner=42"
	if got != want {
		t.Fatalf("renderChatLine = %q, want %q", got, want)
	}
}

func TestRenderChatLineNotJSON(t *testing.T) {
	t.Parallel()
	got := renderChatLine([]byte("  plain text  \n"))
	if got != "plain text" {
		t.Fatalf("renderChatLine = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("x", 50)
	got := truncate(s, 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q", got)
	}
	if truncate("short", 20) != "short" {
		t.Fatal("short strings must be returned unchanged")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if parseLevel("debug", LevelInfo) != LevelDebug {
		t.Fatal("expected debug")
	}
	if parseLevel("warning", LevelInfo) != LevelWarn {
		t.Fatal("expected warn")
	}
	if parseLevel("nonsense", LevelError) != LevelError {
		t.Fatal("expected default")
	}
}
