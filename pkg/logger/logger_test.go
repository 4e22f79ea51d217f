package logger

import (
	"context"
	"testing"
)

func TestFromContextReturnsStoredLogger(t *testing.T) {
	l := NewZapLogger("debug")
	ctx := WithLogger(context.Background(), l)

	got := FromContext(ctx)
	if got != Logger(l) {
		t.Fatalf("expected stored logger, got %T", got)
	}
}

func TestFromContextFallsBackToNop(t *testing.T) {
	got := FromContext(context.Background())
	if _, ok := got.(*noOpLogger); !ok {
		t.Fatalf("expected no-op logger, got %T", got)
	}
}

func TestToZapLevelFallsBackToInfo(t *testing.T) {
	if lvl := toZapLevel("not-a-level"); lvl.String() != "info" {
		t.Errorf("expected info level, got %s", lvl)
	}
	if lvl := toZapLevel("warn"); lvl.String() != "warn" {
		t.Errorf("expected warn level, got %s", lvl)
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := Nop()
	if OrNop(l) != l {
		t.Error("OrNop should keep a non-nil logger")
	}
}
