package log

import (
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")
	NewLogger().SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestErrorWithTraceID(t *testing.T) {
	if got := ErrorWithTraceID(Fields{RequestIDKey: "req-7"}, "boom"); got != "req-7" {
		t.Fatalf("trace id = %q, want request id", got)
	}

	got := ErrorWithTraceID(nil, "boom")
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("trace id %q is not a uuid: %v", got, err)
	}
}

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{value: "", want: "debug"},
		{value: "warn", want: "warning"},
		{value: "nonsense", want: "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.value)
			if got := levelFromEnv().String(); got != tt.want {
				t.Fatalf("level = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWithSession(t *testing.T) {
	e := WithSession("s-1", "g-1")
	if e.Data[SessionIDKey] != "s-1" || e.Data["game_id"] != "g-1" {
		t.Fatalf("fields = %v", e.Data)
	}
}
