package health

import (
	"context"
	"testing"

	"github.com/audioalchemy/audioalchemy/internal/capability"
	"github.com/audioalchemy/audioalchemy/internal/store"
	"github.com/audioalchemy/audioalchemy/pkg/synth"
)

func TestBackendsChecker(t *testing.T) {
	c := BackendsChecker(capability.Static(false, synth.BackendESpeak))
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("one available backend should be ready, got %v", err)
	}

	c = BackendsChecker(capability.Static(true))
	if err := c.Check(context.Background()); err == nil {
		t.Error("ffmpeg alone must not count as a synthesis backend")
	}
}

func TestUploadsChecker(t *testing.T) {
	c := UploadsChecker(t.TempDir())
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("writable dir should pass, got %v", err)
	}

	c = UploadsChecker("/nonexistent/uploads")
	if err := c.Check(context.Background()); err == nil {
		t.Error("missing dir should fail")
	}
}

func TestStoreChecker(t *testing.T) {
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	c := StoreChecker(st)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("fresh store should pass, got %v", err)
	}
}
