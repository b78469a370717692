package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"RoboSupport/backend/go/internal/config"
	"RoboSupport/backend/go/pkg/logger"
)

func TestJitterBounds(t *testing.T) {
	base := 80 * time.Millisecond
	for i := 0; i < 1000; i++ {
		d := jitter(base)
		if d < base/2 || d >= base*3/2 {
			t.Fatalf("jitter(%v) = %v, outside [%v, %v)", base, d, base/2, base*3/2)
		}
	}
	if jitter(0) != 0 {
		t.Error("jitter(0) should be 0")
	}
}

func TestTypingBudgetCountsRunes(t *testing.T) {
	p := NewRodPortal(config.PortalConfig{TypingDelay: "100ms"}, logger.New("test", "", ""))
	if got := p.typingBudget("ロボット"); got != 600*time.Millisecond {
		t.Errorf("typingBudget = %v, want 600ms", got)
	}
}

func TestSleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleep() = %v, want context.Canceled", err)
	}
}

func TestURLJoin(t *testing.T) {
	p := NewRodPortal(config.PortalConfig{BaseURL: "https://portal.example/"}, logger.New("test", "", ""))
	if got := p.url(statusPath); got != "https://portal.example/status" {
		t.Errorf("url() = %q", got)
	}
}
