package outcomes

import (
	"testing"
	"time"
)

// Windows are only selected once they are fully in the past, so the
// fallback quote must fire for thin series regardless of the wall clock,
// anchored at the window end.
func TestAugmentAnchorsQuoteAtWindowEnd(t *testing.T) {
	end := t0.Add(30 * time.Minute)
	got := augment([]PriceSample{{Time: t0, Price: 1.2}}, end, func() (float64, bool) {
		return 1.5, true
	})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[1].Time.Equal(end) {
		t.Errorf("quote time = %v, want window end %v", got[1].Time, end)
	}
	if got[1].Price != 1.5 {
		t.Errorf("quote price = %v, want 1.5", got[1].Price)
	}
}

func TestAugmentSkipsHealthySeries(t *testing.T) {
	samples := []PriceSample{
		{Time: t0, Price: 1},
		{Time: t0.Add(time.Hour), Price: 2},
	}
	called := false
	got := augment(samples, t0.Add(2*time.Hour), func() (float64, bool) {
		called = true
		return 9, true
	})
	if called {
		t.Error("quote fetched for a series that is already evaluable")
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestAugmentToleratesQuoteFailure(t *testing.T) {
	got := augment(nil, t0, func() (float64, bool) { return 0, false })
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
