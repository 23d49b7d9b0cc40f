package monitor

import (
	"testing"
	"time"
)

func TestDegradedBudget_AccumulatesAcrossEpisodes(t *testing.T) {
	b := NewDegradedBudget(10 * time.Second)
	t0 := time.Unix(0, 0)

	b.Enter(t0)
	b.Recover(t0.Add(6 * time.Second))
	if b.Exceeded(t0.Add(6 * time.Second)) {
		t.Fatalf("Exceeded() = true after one 6s episode against a 10s budget")
	}

	b.Enter(t0.Add(20 * time.Second))
	if b.Exceeded(t0.Add(23 * time.Second)) {
		t.Fatalf("Exceeded() = true at 6s + 3s = 9s, still under the 10s budget")
	}
	if !b.Exceeded(t0.Add(25 * time.Second)) {
		t.Fatalf("Exceeded() = false, want true once cumulative degraded time (6s+5s) crosses 10s")
	}
}

func TestDegradedBudget_RecoverResetsEpisodeNotTotal(t *testing.T) {
	b := NewDegradedBudget(5 * time.Second)
	t0 := time.Unix(0, 0)

	b.Enter(t0)
	b.Recover(t0.Add(3 * time.Second))
	if b.Spent(t0.Add(3*time.Second)) != 3*time.Second {
		t.Fatalf("Spent() = %v, want 3s", b.Spent(t0.Add(3*time.Second)))
	}

	// No active episode: Exceeded must not advance the clock further.
	if b.Exceeded(t0.Add(100 * time.Second)) {
		t.Fatalf("Exceeded() = true with no active episode and only 3s ever spent")
	}
}

func TestDegradedBudget_DoubleEnterIsNoop(t *testing.T) {
	b := NewDegradedBudget(10 * time.Second)
	t0 := time.Unix(0, 0)

	b.Enter(t0)
	b.Enter(t0.Add(5 * time.Second)) // should not reset enteredAt
	b.Recover(t0.Add(8 * time.Second))

	if b.Spent(t0.Add(8*time.Second)) != 8*time.Second {
		t.Fatalf("Spent() = %v, want 8s (second Enter must not reset the episode clock)", b.Spent(t0.Add(8*time.Second)))
	}
}
