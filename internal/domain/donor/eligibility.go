package donor

import (
	"fmt"
	"time"
)

// Donation eligibility rules. Registration deliberately uses looser
// bounds than the donation-eligibility check (two-tier policy): a donor
// may register at 16 and 45 kg, but may only donate at 18 and 50 kg.
const (
	MinDonationAge = 18
	MaxDonationAge = 65

	MinRegistrationAge = 16
	MaxRegistrationAge = 65

	MinDonationWeightKG     = 50.0
	MinRegistrationWeightKG = 45.0

	CooldownDays = 56
)

// daysPerYear is the age approximation used consistently across the
// system; leap days are ignored.
const daysPerYear = 365

// Eligibility is the computed verdict for a donor. Reasons accumulate so
// a caller can display every blocking factor at once.
type Eligibility struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Age returns whole years between dob and at using the 365-day-per-year
// approximation.
func Age(dob, at time.Time) int {
	if at.Before(dob) {
		return 0
	}
	return int(at.Sub(dob).Hours() / 24 / daysPerYear)
}

// CheckEligibility evaluates the four donation-eligibility rules
// independently: age within [18, 65], weight at least 50 kg, at least 56
// days since the last donation (immediately eligible when there is none),
// and a clear medical history.
func CheckEligibility(dob time.Time, weightKG float64, lastDonation *time.Time, medicallyEligible bool, now time.Time) Eligibility {
	var reasons []string

	age := Age(dob, now)
	if age < MinDonationAge || age > MaxDonationAge {
		reasons = append(reasons, fmt.Sprintf("age %d is outside the eligible range of %d-%d years",
			age, MinDonationAge, MaxDonationAge))
	}

	if weightKG < MinDonationWeightKG {
		reasons = append(reasons, fmt.Sprintf("weight %.1f kg is below the %.0f kg minimum",
			weightKG, MinDonationWeightKG))
	}

	if lastDonation != nil {
		days := int(now.Sub(*lastDonation).Hours() / 24)
		if days < CooldownDays {
			reasons = append(reasons, fmt.Sprintf("last donation was %d days ago; %d days are required between donations",
				days, CooldownDays))
		}
	}

	if !medicallyEligible {
		reasons = append(reasons, "medical history prevents donation")
	}

	return Eligibility{Eligible: len(reasons) == 0, Reasons: reasons}
}

// CheckRegistration validates the looser registration-time bounds.
func CheckRegistration(dob time.Time, weightKG float64, now time.Time) Eligibility {
	var reasons []string

	age := Age(dob, now)
	if age < MinRegistrationAge || age > MaxRegistrationAge {
		reasons = append(reasons, fmt.Sprintf("age %d is outside the registration range of %d-%d years",
			age, MinRegistrationAge, MaxRegistrationAge))
	}

	if weightKG < MinRegistrationWeightKG {
		reasons = append(reasons, fmt.Sprintf("weight %.1f kg is below the %.0f kg registration minimum",
			weightKG, MinRegistrationWeightKG))
	}

	return Eligibility{Eligible: len(reasons) == 0, Reasons: reasons}
}

// CheckDonor evaluates donation eligibility from a donor record.
func CheckDonor(d *Donor, now time.Time) Eligibility {
	return CheckEligibility(d.DateOfBirth, d.WeightKG, d.LastDonationDate, d.MedicallyEligible, now)
}
