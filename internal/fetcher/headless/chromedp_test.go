package headless

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/JakeFAU/rpa-crawler/internal/traversal"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{WindowWidth: -1}); err == nil {
		t.Fatal("expected error for negative window size")
	}
	b, err := NewChromedp(Config{Headless: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()
	if b.cfg.NavigationTimeout != 45*time.Second {
		t.Fatalf("expected default nav timeout, got %v", b.cfg.NavigationTimeout)
	}
	if b.cfg.ReadTimeout != 5*time.Second {
		t.Fatalf("expected default read timeout, got %v", b.cfg.ReadTimeout)
	}
}

func TestChromeFlags(t *testing.T) {
	t.Parallel()

	flags := chromeFlags(Config{Headless: true})
	if flags["headless"] != "new" {
		t.Fatalf("expected new headless mode, got %v", flags["headless"])
	}
	if flags["disable-blink-features"] != "AutomationControlled" {
		t.Fatalf("expected automation features disabled, got %v", flags["disable-blink-features"])
	}
	if flags["window-size"] != "1920,1080" {
		t.Fatalf("expected default window size, got %v", flags["window-size"])
	}

	flags = chromeFlags(Config{WindowWidth: 800, WindowHeight: 600})
	if flags["headless"] != false {
		t.Fatalf("expected headed mode, got %v", flags["headless"])
	}
	if flags["window-size"] != "800,600" {
		t.Fatalf("expected custom window size, got %v", flags["window-size"])
	}
}

func TestMapStale(t *testing.T) {
	t.Parallel()

	if mapStale(nil) != nil {
		t.Fatal("expected nil passthrough")
	}
	stale := mapStale(errors.New("could not find node with given id (-32000)"))
	if !errors.Is(stale, traversal.ErrStaleElement) {
		t.Fatalf("expected stale mapping, got %v", stale)
	}
	for _, msg := range []string{"Node is detached from document", "No node found for given backend id"} {
		if !errors.Is(mapStale(errors.New(msg)), traversal.ErrStaleElement) {
			t.Fatalf("expected %q to map to stale", msg)
		}
	}
	deadline := fmt.Errorf("read: %w", context.DeadlineExceeded)
	if got := mapStale(deadline); errors.Is(got, traversal.ErrStaleElement) || !errors.Is(got, context.DeadlineExceeded) {
		t.Fatalf("expected read deadline to pass through, got %v", got)
	}
	other := errors.New("websocket closed")
	if mapStale(other) != other {
		t.Fatal("expected unrelated errors to pass through")
	}
}
