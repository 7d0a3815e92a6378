package logs

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSetupJSON(t *testing.T) {
	saved := Log
	defer func() { Log = saved }()

	var buf bytes.Buffer
	if err := Setup("debug", "json", &buf); err != nil {
		t.Fatal(err)
	}
	Rank(3).Debug("hello")

	out := buf.String()
	if !strings.Contains(out, `"rank":3`) || !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("unexpected record: %s", out)
	}
}

func TestSetupRejectsFormat(t *testing.T) {
	saved := Log
	defer func() { Log = saved }()

	if err := Setup("info", "xml", nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestErrorsLogWithoutStack(t *testing.T) {
	saved := Log
	defer func() { Log = saved }()

	for _, format := range []string{"text", "json"} {
		var buf bytes.Buffer
		if err := Setup("info", format, &buf); err != nil {
			t.Fatal(err)
		}
		Log.Error("Result receive failed", "err", errors.Wrap(errors.New("boom"), "await"))

		out := buf.String()
		if !strings.Contains(out, "await: boom") {
			t.Errorf("%s: missing message: %s", format, out)
		}
		if strings.Contains(out, "TestErrorsLogWithoutStack") || strings.Count(out, "\n") > 0 {
			t.Errorf("%s: stack trace logged: %s", format, out)
		}
	}
}
