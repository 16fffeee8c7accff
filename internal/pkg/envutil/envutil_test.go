package envutil

import (
	"testing"
	"time"
)

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("LF_TEST_WAIT", "")
	if got := GetEnvAsDuration("LF_TEST_WAIT", 10*time.Minute, nil); got != 10*time.Minute {
		t.Fatalf("default: got %s", got)
	}
	t.Setenv("LF_TEST_WAIT", "90s")
	if got := GetEnvAsDuration("LF_TEST_WAIT", time.Minute, nil); got != 90*time.Second {
		t.Fatalf("duration string: got %s", got)
	}
	t.Setenv("LF_TEST_WAIT", "30")
	if got := GetEnvAsDuration("LF_TEST_WAIT", time.Minute, nil); got != 30*time.Second {
		t.Fatalf("bare seconds: got %s", got)
	}
	t.Setenv("LF_TEST_WAIT", "soon")
	if got := GetEnvAsDuration("LF_TEST_WAIT", time.Minute, nil); got != time.Minute {
		t.Fatalf("garbage: got %s", got)
	}
}

func TestGetEnvAsBoolAndInt(t *testing.T) {
	t.Setenv("LF_TEST_FLAG", "on")
	if !GetEnvAsBool("LF_TEST_FLAG", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("LF_TEST_FLAG", "nope")
	if GetEnvAsBool("LF_TEST_FLAG", false) {
		t.Fatalf("expected default false for unparseable value")
	}
	t.Setenv("LF_TEST_INT", "7")
	if got := GetEnvAsInt("LF_TEST_INT", 1, nil); got != 7 {
		t.Fatalf("int: got %d", got)
	}
}

func TestClampBackoff(t *testing.T) {
	if got := ClampBackoff(250*time.Millisecond, 5*time.Second, 1); got != 250*time.Millisecond {
		t.Fatalf("attempt 1: %s", got)
	}
	if got := ClampBackoff(250*time.Millisecond, 5*time.Second, 3); got != time.Second {
		t.Fatalf("attempt 3: %s", got)
	}
	if got := ClampBackoff(250*time.Millisecond, 5*time.Second, 10); got != 5*time.Second {
		t.Fatalf("attempt 10: %s", got)
	}
}
