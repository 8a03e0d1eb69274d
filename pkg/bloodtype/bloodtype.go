// Package bloodtype provides the eight ABO/Rh blood types, the donor and
// recipient compatibility matrix, and the compatibility scoring used to
// rank candidate donors. The tables are pure module-level data.
package bloodtype

import (
	"fmt"
	"sort"
	"strings"
)

// Type is one of the eight ABO/Rh blood types.
type Type string

const (
	OPos  Type = "O+"
	ONeg  Type = "O-"
	APos  Type = "A+"
	ANeg  Type = "A-"
	BPos  Type = "B+"
	BNeg  Type = "B-"
	ABPos Type = "AB+"
	ABNeg Type = "AB-"
)

// All lists every blood type in stable display order.
var All = []Type{OPos, ONeg, APos, ANeg, BPos, BNeg, ABPos, ABNeg}

// Parse normalizes and validates a blood type string.
func Parse(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid blood type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the eight ABO/Rh types.
func (t Type) Valid() bool {
	_, ok := donorToRecipients[t]
	return ok
}

// ABO returns the ABO group of the type ("O", "A", "B" or "AB").
func (t Type) ABO() string {
	return strings.TrimRight(string(t), "+-")
}

// RhPositive reports whether the type carries the Rh(D) antigen.
func (t Type) RhPositive() bool {
	return strings.HasSuffix(string(t), "+")
}

// donorToRecipients maps each donor type to the set of recipient types it
// may donate to under ABO/Rh rules. O- is the universal donor; AB+ is the
// universal recipient.
var donorToRecipients = map[Type][]Type{
	ONeg:  {ONeg, OPos, ANeg, APos, BNeg, BPos, ABNeg, ABPos},
	OPos:  {OPos, APos, BPos, ABPos},
	ANeg:  {ANeg, APos, ABNeg, ABPos},
	APos:  {APos, ABPos},
	BNeg:  {BNeg, BPos, ABNeg, ABPos},
	BPos:  {BPos, ABPos},
	ABNeg: {ABNeg, ABPos},
	ABPos: {ABPos},
}

// recipientFromDonors is the exact inverse of donorToRecipients, built at
// init time so the two tables cannot drift apart.
var recipientFromDonors = func() map[Type][]Type {
	inv := make(map[Type][]Type, len(donorToRecipients))
	for _, r := range All {
		inv[r] = nil
	}
	for _, d := range All {
		for _, r := range donorToRecipients[d] {
			inv[r] = append(inv[r], d)
		}
	}
	return inv
}()

// CanDonate reports whether blood of type donor may be given to a patient
// of type recipient.
func CanDonate(donor, recipient Type) bool {
	for _, r := range donorToRecipients[donor] {
		if r == recipient {
			return true
		}
	}
	return false
}

// RecipientsOf returns the types a donor of type d may donate to.
func RecipientsOf(d Type) []Type {
	return append([]Type(nil), donorToRecipients[d]...)
}

// DonorsFor returns the types that may donate to a recipient of type r.
func DonorsFor(r Type) []Type {
	return append([]Type(nil), recipientFromDonors[r]...)
}

// Score rates a donor/recipient pairing on a 0-100 scale. It is a
// tie-break heuristic for donor ranking, not a medical guarantee: 100 for
// an exact match, 90 for O- donating across type, 80 for the same ABO
// group with a different Rh factor, 70 for any other compatible pairing,
// 0 when incompatible.
func Score(donor, recipient Type) int {
	switch {
	case !CanDonate(donor, recipient):
		return 0
	case donor == recipient:
		return 100
	case donor == ONeg:
		return 90
	case donor.ABO() == recipient.ABO():
		return 80
	default:
		return 70
	}
}

// Candidate pairs a donor reference with its blood type for ranking.
type Candidate struct {
	ID   string
	Type Type
}

// Ranked is a compatible candidate with its compatibility score.
type Ranked struct {
	Candidate
	Score int
}

// RankDonors filters candidates that can donate to the recipient type and
// orders them by descending score. Ties preserve input order.
func RankDonors(recipient Type, donors []Candidate) []Ranked {
	var ranked []Ranked
	for _, d := range donors {
		if s := Score(d.Type, recipient); s > 0 {
			ranked = append(ranked, Ranked{Candidate: d, Score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
