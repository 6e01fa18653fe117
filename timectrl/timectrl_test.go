package timectrl

import (
	"context"
	"errors"
	"testing"
)

func TestClockSetIsMonotonic(t *testing.T) {
	c := NewClock()
	if !c.Set(42) {
		t.Fatalf("Set(42) rejected")
	}
	if got := c.Now(); got != 42 {
		t.Fatalf("Now() = %d, want 42", got)
	}
	if c.Set(41) {
		t.Fatalf("Set(41) accepted after 42")
	}
	if got := c.Now(); got != 42 {
		t.Fatalf("Now() = %d after backwards Set, want 42", got)
	}
}

func TestTimeControllerRunVisitsEveryTick(t *testing.T) {
	tc := NewTimeController(nil)

	var seen []int
	var order []string
	tc.AddListener(func(tick int) error {
		if tc.Clock().Now() != tick {
			t.Fatalf("clock = %d during tick %d", tc.Clock().Now(), tick)
		}
		seen = append(seen, tick)
		order = append(order, "a")
		return nil
	})
	tc.AddListener(func(tick int) error {
		order = append(order, "b")
		return nil
	})

	if err := tc.Run(context.Background(), 5); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 5 || seen[0] != 0 || seen[4] != 4 {
		t.Fatalf("ticks = %v, want 0..4", seen)
	}
	if order[0] != "a" || order[1] != "b" {
		t.Fatalf("listener order = %v", order)
	}
}

func TestTimeControllerRunStopsOnError(t *testing.T) {
	tc := NewTimeController(nil)
	boom := errors.New("boom")
	calls := 0
	tc.AddListener(func(tick int) error {
		calls++
		if tick == 2 {
			return boom
		}
		return nil
	})
	if err := tc.Run(context.Background(), 10); !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want boom", err)
	}
	if calls != 3 {
		t.Fatalf("listener calls = %d, want 3", calls)
	}
}

func TestTimeControllerRunHonoursCancel(t *testing.T) {
	tc := NewTimeController(nil)
	ctx, cancel := context.WithCancel(context.Background())
	tc.AddListener(func(tick int) error {
		if tick == 1 {
			cancel()
		}
		return nil
	})
	if err := tc.Run(ctx, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	if got := tc.Clock().Now(); got != 1 {
		t.Fatalf("clock stopped at %d, want 1", got)
	}
}
