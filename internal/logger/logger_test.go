package logger

import (
	"context"
	"testing"
)

func TestNew(t *testing.T) {
	log := New()
	if log == nil {
		t.Fatal("expected a logger")
	}
}

func TestFromContext_fallsBackToNewLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log == nil {
		t.Fatal("expected a fallback logger")
	}
}
