package bloodtype

import "testing"

func TestParse(t *testing.T) {
	bt, err := Parse(" o+ ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bt != OPos {
		t.Errorf("expected O+, got %s", bt)
	}
	if _, err := Parse("C+"); err == nil {
		t.Error("expected error for invalid blood type")
	}
}

func TestUniversalDonor(t *testing.T) {
	for _, r := range All {
		if !CanDonate(ONeg, r) {
			t.Errorf("O- should donate to %s", r)
		}
	}
}

func TestUniversalRecipient(t *testing.T) {
	for _, d := range All {
		if !CanDonate(d, ABPos) {
			t.Errorf("AB+ should receive from %s", d)
		}
	}
}

func TestIncompatiblePairs(t *testing.T) {
	cases := []struct{ donor, recipient Type }{
		{APos, ANeg},
		{ABPos, OPos},
		{BPos, APos},
		{OPos, ONeg},
	}
	for _, c := range cases {
		if CanDonate(c.donor, c.recipient) {
			t.Errorf("%s should not donate to %s", c.donor, c.recipient)
		}
	}
}

// The donor table and the recipient table must be exact inverses.
func TestMatrixSymmetry(t *testing.T) {
	for _, d := range All {
		for _, r := range All {
			inRecipients := false
			for _, dd := range DonorsFor(r) {
				if dd == d {
					inRecipients = true
					break
				}
			}
			if CanDonate(d, r) != inRecipients {
				t.Errorf("matrix asymmetry for donor %s recipient %s", d, r)
			}
		}
	}
}

func TestScore(t *testing.T) {
	cases := []struct {
		donor, recipient Type
		want             int
	}{
		{APos, APos, 100},
		{ONeg, ONeg, 100},
		{ONeg, ABPos, 90},
		{ANeg, APos, 80},
		{OPos, ABPos, 70},
		{APos, BPos, 0},
	}
	for _, c := range cases {
		if got := Score(c.donor, c.recipient); got != c.want {
			t.Errorf("Score(%s, %s) = %d, want %d", c.donor, c.recipient, got, c.want)
		}
	}
}

func TestRankDonorsOrderAndFilter(t *testing.T) {
	donors := []Candidate{
		{ID: "d1", Type: OPos},
		{ID: "d2", Type: APos},
		{ID: "d3", Type: BPos},
		{ID: "d4", Type: ONeg},
	}
	ranked := RankDonors(APos, donors)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 compatible donors, got %d", len(ranked))
	}
	if ranked[0].ID != "d2" || ranked[0].Score != 100 {
		t.Errorf("expected exact match first, got %s (%d)", ranked[0].ID, ranked[0].Score)
	}
	if ranked[1].ID != "d4" || ranked[1].Score != 90 {
		t.Errorf("expected O- second, got %s (%d)", ranked[1].ID, ranked[1].Score)
	}
	if ranked[2].ID != "d1" {
		t.Errorf("expected O+ last, got %s", ranked[2].ID)
	}
}

// Equal scores keep the input ordering.
func TestRankDonorsStable(t *testing.T) {
	donors := []Candidate{
		{ID: "first", Type: OPos},
		{ID: "second", Type: OPos},
		{ID: "third", Type: OPos},
	}
	ranked := RankDonors(ABPos, donors)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 donors, got %d", len(ranked))
	}
	for i, want := range []string{"first", "second", "third"} {
		if ranked[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, ranked[i].ID)
		}
	}
}

func TestABOAndRh(t *testing.T) {
	if ABNeg.ABO() != "AB" {
		t.Errorf("expected AB, got %s", ABNeg.ABO())
	}
	if !OPos.RhPositive() {
		t.Error("O+ should be Rh positive")
	}
	if ONeg.RhPositive() {
		t.Error("O- should be Rh negative")
	}
}
