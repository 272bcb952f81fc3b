package recovery

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRecoverAllRunsStepsInOrder(t *testing.T) {
	m := NewManager()
	var order []string
	m.Register("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.Register("second", func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})

	if err := m.RecoverAll(context.Background()); err != nil {
		t.Fatalf("RecoverAll failed: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("unexpected step order: %v", order)
	}
}

func TestRecoverAllIsolatesFailures(t *testing.T) {
	m := NewManager()
	var ran bool
	m.Register("broken", func(ctx context.Context) error {
		return errors.New("storage offline")
	})
	m.Register("healthy", func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := m.RecoverAll(context.Background())
	if err == nil {
		t.Fatal("expected error summary")
	}
	if !strings.Contains(err.Error(), "1 errors out of 2") {
		t.Errorf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected later step to run despite earlier failure")
	}
}

func TestRecoverAllEmpty(t *testing.T) {
	if err := NewManager().RecoverAll(context.Background()); err != nil {
		t.Fatalf("RecoverAll on empty manager failed: %v", err)
	}
}
