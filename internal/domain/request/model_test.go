package request

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUrgencyPriority(t *testing.T) {
	cases := map[Urgency]int{
		UrgencyLow:      1,
		UrgencyMedium:   2,
		UrgencyHigh:     3,
		UrgencyCritical: 4,
	}
	for u, want := range cases {
		if got := u.Priority(); got != want {
			t.Errorf("%s: expected priority %d, got %d", u, want, got)
		}
	}
	if got := Urgency("urgent").Priority(); got != 0 {
		t.Errorf("expected 0 for unknown urgency, got %d", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusFulfilled, StatusExpired, StatusCancelled}
	open := []Status{StatusPending, StatusActive, StatusPartiallyFulfilled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("expected %s to be open", s)
		}
	}
}

func TestUrgencyScore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		urgency Urgency
		daysOut int
		want    int
	}{
		{"critical far out", UrgencyCritical, 10, 40},
		{"critical in 2 days", UrgencyCritical, 2, 43},
		{"critical today", UrgencyCritical, 0, 45},
		{"low in 1 day", UrgencyLow, 1, 14},
		{"high far out", UrgencyHigh, 30, 30},
	}
	for _, c := range cases {
		r := &Request{Urgency: c.urgency, RequiredBy: now.AddDate(0, 0, c.daysOut)}
		if got := r.UrgencyScore(now); got != c.want {
			t.Errorf("%s: expected score %d, got %d", c.name, c.want, got)
		}
	}
}

// Same urgency, nearer deadline scores higher.
func TestUrgencyScoreTimePressure(t *testing.T) {
	now := time.Now()
	near := &Request{Urgency: UrgencyHigh, RequiredBy: now.AddDate(0, 0, 1)}
	far := &Request{Urgency: UrgencyHigh, RequiredBy: now.AddDate(0, 0, 8)}
	if near.UrgencyScore(now) <= far.UrgencyScore(now) {
		t.Errorf("expected nearer deadline to outrank: near=%d far=%d",
			near.UrgencyScore(now), far.UrgencyScore(now))
	}
}

func TestUnitsFulfilled(t *testing.T) {
	r := &Request{AcceptedDonors: []*AcceptedDonor{
		{DonorID: uuid.New(), DonationStatus: DonationCompleted},
		{DonorID: uuid.New(), DonationStatus: DonationScheduled},
		{DonorID: uuid.New(), DonationStatus: DonationCompleted},
		{DonorID: uuid.New(), DonationStatus: DonationCancelled},
	}}
	if got := r.UnitsFulfilled(); got != 2 {
		t.Errorf("expected 2 fulfilled units, got %d", got)
	}
}
