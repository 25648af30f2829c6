package config

import (
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "8090")
	p, err := Port("TEST_PORT", "8080")
	if err != nil || p != "8090" {
		t.Fatalf("expected 8090, got %q (%v)", p, err)
	}

	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("TEST_INT", "12")
	t.Setenv("TEST_BAD_INT", "x")
	t.Setenv("TEST_DURATION", "750ms")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_LIST", " a, ,b ")

	if got := Int("TEST_INT", 1); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
	if got := Int("TEST_BAD_INT", 3); got != 3 {
		t.Fatalf("expected fallback 3, got %d", got)
	}
	if got := Duration("TEST_DURATION", time.Second); got != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", got)
	}
	if got := Duration("TEST_MISSING_DURATION", time.Second); got != time.Second {
		t.Fatalf("expected fallback 1s, got %s", got)
	}
	if got := Float("TEST_FLOAT", 1); got != 0.25 {
		t.Fatalf("expected 0.25, got %v", got)
	}
	if !Bool("TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	list := List("TEST_LIST")
	if len(list) != 2 || list[0] != "a" || list[1] != "b" {
		t.Fatalf("unexpected list %v", list)
	}
}
