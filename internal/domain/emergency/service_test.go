package emergency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/notification"
	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

// -- Mock Repository --

type mockRepo struct {
	emergencies map[uuid.UUID]*Emergency
}

func newMockRepo() *mockRepo {
	return &mockRepo{emergencies: make(map[uuid.UUID]*Emergency)}
}

func (m *mockRepo) Create(_ context.Context, e *Emergency) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	e.UpdatedAt = time.Now()
	m.emergencies[e.ID] = e
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Emergency, error) {
	e, ok := m.emergencies[id]
	if !ok {
		return nil, apperr.NotFoundf("emergency %s not found", id)
	}
	return e, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	e, ok := m.emergencies[id]
	if !ok {
		return apperr.NotFoundf("emergency %s not found", id)
	}
	e.Status = status
	return nil
}

func (m *mockRepo) MarkResolved(_ context.Context, id uuid.UUID, resolvedBy uuid.UUID, at time.Time, totalUnits int) error {
	e, ok := m.emergencies[id]
	if !ok {
		return apperr.NotFoundf("emergency %s not found", id)
	}
	e.Status = StatusResolved
	e.ResolvedAt = &at
	e.ResolvedBy = &resolvedBy
	e.TotalUnitsReceived = totalUnits
	return nil
}

func (m *mockRepo) List(_ context.Context, status *Status, limit, offset int) ([]*Emergency, int, error) {
	var result []*Emergency
	for _, e := range m.emergencies {
		if status != nil && e.Status != *status {
			continue
		}
		result = append(result, e)
	}
	return result, len(result), nil
}

func (m *mockRepo) ListOverdue(_ context.Context, before time.Time) ([]*Emergency, error) {
	var result []*Emergency
	for _, e := range m.emergencies {
		if !e.Status.Terminal() && e.Deadline().Before(before) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockRepo) AddResponse(_ context.Context, resp *Response) error {
	resp.ID = uuid.New()
	resp.RespondedAt = time.Now()
	e := m.emergencies[resp.EmergencyID]
	e.Responses = append(e.Responses, resp)
	return nil
}

func (m *mockRepo) MarkResponseConfirmed(_ context.Context, responseID uuid.UUID) error {
	for _, e := range m.emergencies {
		for _, resp := range e.Responses {
			if resp.ID == responseID {
				resp.Confirmed = true
				return nil
			}
		}
	}
	return apperr.NotFoundf("response %s not found", responseID)
}

func (m *mockRepo) AddConfirmedDonor(_ context.Context, cd *ConfirmedDonor) error {
	cd.ID = uuid.New()
	cd.ConfirmedAt = time.Now()
	e := m.emergencies[cd.EmergencyID]
	e.ConfirmedDonors = append(e.ConfirmedDonors, cd)
	return nil
}

func (m *mockRepo) UpdateConfirmedDonorStatus(_ context.Context, emergencyID, donorID uuid.UUID, status DonationStatus) error {
	e, ok := m.emergencies[emergencyID]
	if !ok {
		return apperr.NotFoundf("emergency %s not found", emergencyID)
	}
	for _, cd := range e.ConfirmedDonors {
		if cd.DonorID == donorID {
			cd.DonationStatus = status
			return nil
		}
	}
	return apperr.NotFoundf("donor %s is not confirmed for emergency %s", donorID, emergencyID)
}

func (m *mockRepo) AppendEvent(_ context.Context, ev *Event) error {
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now()
	e, ok := m.emergencies[ev.EmergencyID]
	if !ok {
		return apperr.NotFoundf("emergency %s not found", ev.EmergencyID)
	}
	e.Events = append(e.Events, ev)
	return nil
}

func (m *mockRepo) RecordBroadcast(_ context.Context, id uuid.UUID, donorIDs []uuid.UUID, at time.Time) error {
	e, ok := m.emergencies[id]
	if !ok {
		return apperr.NotFoundf("emergency %s not found", id)
	}
	stamped := at
	e.BroadcastedAt = &stamped
	e.NotifiedCount = len(donorIDs)
	return nil
}

type mockDonorRepo struct {
	donors map[uuid.UUID]*donor.Donor
}

func newMockDonorRepo() *mockDonorRepo {
	return &mockDonorRepo{donors: make(map[uuid.UUID]*donor.Donor)}
}

func (m *mockDonorRepo) Create(_ context.Context, d *donor.Donor) error {
	d.ID = uuid.New()
	m.donors[d.ID] = d
	return nil
}

func (m *mockDonorRepo) GetByID(_ context.Context, id uuid.UUID) (*donor.Donor, error) {
	d, ok := m.donors[id]
	if !ok {
		return nil, apperr.NotFoundf("donor %s not found", id)
	}
	return d, nil
}

func (m *mockDonorRepo) Update(_ context.Context, d *donor.Donor) error { return nil }

func (m *mockDonorRepo) List(_ context.Context, limit, offset int) ([]*donor.Donor, int, error) {
	return nil, 0, nil
}

func (m *mockDonorRepo) ListBroadcastTargets(_ context.Context, types []bloodtype.Type, city string) ([]*donor.Donor, error) {
	var result []*donor.Donor
	for _, d := range m.donors {
		if !d.Active || !d.Available || !d.EmergencyAlerts || d.City != city {
			continue
		}
		for _, t := range types {
			if d.BloodType == t {
				result = append(result, d)
				break
			}
		}
	}
	return result, nil
}

func (m *mockDonorRepo) RecordDonation(_ context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

// mockAlerts records recipients and fails for addresses in failFor.
type mockAlerts struct {
	sent    []string
	failFor map[string]bool
}

func (m *mockAlerts) SendFromTemplate(_ context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error) {
	if m.failFor[recipient] {
		return nil, fmt.Errorf("delivery failed")
	}
	m.sent = append(m.sent, recipient)
	return &notification.Notification{Recipient: recipient, TemplateID: templateID}, nil
}

// -- Fixtures --

func eligibleDonor(bt bloodtype.Type, city string) *donor.Donor {
	email := fmt.Sprintf("%s@example.com", uuid.NewString()[:8])
	return &donor.Donor{
		Name:              "Test Donor",
		Email:             &email,
		BloodType:         bt,
		DateOfBirth:       time.Now().AddDate(-30, 0, 0),
		WeightKG:          72,
		City:              city,
		MedicallyEligible: true,
		Available:         true,
		Active:            true,
		EmergencyAlerts:   true,
	}
}

func validInput(requesterID uuid.UUID) CreateInput {
	return CreateInput{
		RequesterID:         requesterID,
		PatientName:         "John Doe",
		PatientBloodType:    "B+",
		Severity:            "severe",
		UnitsRequired:       3,
		RequiredWithinHours: 6,
		HospitalName:        "City Hospital",
		HospitalCity:        "Pune",
	}
}

func newTestService(t *testing.T) (*Service, *mockRepo, *mockDonorRepo, *mockAlerts) {
	t.Helper()
	repo := newMockRepo()
	donors := newMockDonorRepo()
	alerts := &mockAlerts{failFor: make(map[string]bool)}
	svc := NewService(repo, donors, alerts, "email", zerolog.Nop())
	return svc, repo, donors, alerts
}

// -- Tests --

func TestCreateBroadcasts(t *testing.T) {
	svc, repo, donors, alerts := newTestService(t)
	ctx := context.Background()

	// B+ receives from B+, B-, O+, O-. The AB+ donor and the out-of-town
	// donor must not be alerted.
	compatible := eligibleDonor(bloodtype.ONeg, "Pune")
	_ = donors.Create(ctx, compatible)
	incompatible := eligibleDonor(bloodtype.ABPos, "Pune")
	_ = donors.Create(ctx, incompatible)
	elsewhere := eligibleDonor(bloodtype.BPos, "Mumbai")
	_ = donors.Create(ctx, elsewhere)
	optedOut := eligibleDonor(bloodtype.BPos, "Pune")
	optedOut.EmergencyAlerts = false
	_ = donors.Create(ctx, optedOut)

	e, err := svc.Create(ctx, validInput(uuid.New()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != StatusActive {
		t.Errorf("expected active status, got %s", e.Status)
	}
	if e.Priority != 5 {
		t.Errorf("expected priority 5, got %d", e.Priority)
	}
	if len(alerts.sent) != 1 || alerts.sent[0] != *compatible.Email {
		t.Errorf("expected exactly the compatible local donor alerted, got %v", alerts.sent)
	}
	if repo.emergencies[e.ID].NotifiedCount != 1 {
		t.Errorf("expected notified count 1, got %d", repo.emergencies[e.ID].NotifiedCount)
	}
}

// One failing delivery must not abort the rest of the broadcast.
func TestBroadcastPartialFailure(t *testing.T) {
	svc, repo, donors, alerts := newTestService(t)
	ctx := context.Background()

	d1 := eligibleDonor(bloodtype.BPos, "Pune")
	d2 := eligibleDonor(bloodtype.ONeg, "Pune")
	_ = donors.Create(ctx, d1)
	_ = donors.Create(ctx, d2)
	alerts.failFor[*d1.Email] = true

	e, err := svc.Create(ctx, validInput(uuid.New()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts.sent) != 1 {
		t.Errorf("expected 1 successful alert, got %d", len(alerts.sent))
	}
	if repo.emergencies[e.ID].NotifiedCount != 1 {
		t.Errorf("expected notified count to exclude the failure, got %d",
			repo.emergencies[e.ID].NotifiedCount)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	requester := uuid.New()

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"bad blood type", func(in *CreateInput) { in.PatientBloodType = "X+" }},
		{"bad severity", func(in *CreateInput) { in.Severity = "mild" }},
		{"zero units", func(in *CreateInput) { in.UnitsRequired = 0 }},
		{"too many units", func(in *CreateInput) { in.UnitsRequired = 21 }},
		{"zero hours", func(in *CreateInput) { in.RequiredWithinHours = 0 }},
	}
	for _, c := range cases {
		in := validInput(requester)
		c.mutate(&in)
		_, err := svc.Create(context.Background(), in)
		if !apperr.IsKind(err, apperr.Validation) {
			t.Errorf("%s: expected validation error, got %v", c.name, err)
		}
	}
}

func TestRespondRejectsDuplicate(t *testing.T) {
	svc, _, donors, _ := newTestService(t)
	ctx := context.Background()

	e, _ := svc.Create(ctx, validInput(uuid.New()))
	d := eligibleDonor(bloodtype.BPos, "Pune")
	_ = donors.Create(ctx, d)

	if _, err := svc.Respond(ctx, e.ID, RespondInput{DonorID: d.ID}); err != nil {
		t.Fatalf("first response failed: %v", err)
	}
	_, err := svc.Respond(ctx, e.ID, RespondInput{DonorID: d.ID})
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Errorf("expected conflict on duplicate response, got %v", err)
	}
}

func TestRespondRejectsIncompatible(t *testing.T) {
	svc, _, donors, _ := newTestService(t)
	ctx := context.Background()

	e, _ := svc.Create(ctx, validInput(uuid.New()))
	d := eligibleDonor(bloodtype.ABPos, "Pune")
	_ = donors.Create(ctx, d)

	_, err := svc.Respond(ctx, e.ID, RespondInput{DonorID: d.ID})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected validation error for incompatible donor, got %v", err)
	}
}

func TestConfirmDonorRequiresRequester(t *testing.T) {
	svc, _, donors, _ := newTestService(t)
	ctx := context.Background()

	e, _ := svc.Create(ctx, validInput(uuid.New()))
	d := eligibleDonor(bloodtype.BPos, "Pune")
	_ = donors.Create(ctx, d)
	_, _ = svc.Respond(ctx, e.ID, RespondInput{DonorID: d.ID})

	_, err := svc.ConfirmDonor(ctx, e.ID, uuid.New(), ConfirmInput{DonorID: d.ID, UnitsContributed: 1})
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Errorf("expected conflict for non-requester, got %v", err)
	}
}

func TestConfirmDonorWithoutResponse(t *testing.T) {
	svc, _, donors, _ := newTestService(t)
	ctx := context.Background()
	requester := uuid.New()

	e, _ := svc.Create(ctx, validInput(requester))
	d := eligibleDonor(bloodtype.BPos, "Pune")
	_ = donors.Create(ctx, d)

	_, err := svc.ConfirmDonor(ctx, e.ID, requester, ConfirmInput{DonorID: d.ID, UnitsContributed: 1})
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("expected not-found for donor without a response, got %v", err)
	}
}

// Three units required: donors contributing 2 and 1 units both complete,
// so the emergency resolves with a received total of 3.
func TestResolutionAccounting(t *testing.T) {
	svc, repo, donors, _ := newTestService(t)
	ctx := context.Background()
	requester := uuid.New()

	e, _ := svc.Create(ctx, validInput(requester))
	d1 := eligibleDonor(bloodtype.BPos, "Pune")
	d2 := eligibleDonor(bloodtype.ONeg, "Pune")
	_ = donors.Create(ctx, d1)
	_ = donors.Create(ctx, d2)

	for d, units := range map[uuid.UUID]int{d1.ID: 2, d2.ID: 1} {
		if _, err := svc.Respond(ctx, e.ID, RespondInput{DonorID: d}); err != nil {
			t.Fatalf("respond failed: %v", err)
		}
		if _, err := svc.ConfirmDonor(ctx, e.ID, requester, ConfirmInput{DonorID: d, UnitsContributed: units}); err != nil {
			t.Fatalf("confirm failed: %v", err)
		}
	}

	got, err := svc.UpdateDonationStatus(ctx, e.ID, requester, d1.ID, DonationCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusPartiallyResolved {
		t.Errorf("expected partially-resolved after 2 of 3 units, got %s", got.Status)
	}

	got, err = svc.UpdateDonationStatus(ctx, e.ID, requester, d2.ID, DonationCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusResolved {
		t.Errorf("expected resolved after 3 of 3 units, got %s", got.Status)
	}
	if got.TotalUnitsReceived != 3 {
		t.Errorf("expected 3 total units received, got %d", got.TotalUnitsReceived)
	}
	if got.ResolvedAt == nil {
		t.Error("expected resolved-at to be stamped")
	}

	var sawResolved bool
	for _, ev := range repo.emergencies[e.ID].Events {
		if ev.EventType == EventResolved {
			sawResolved = true
		}
	}
	if !sawResolved {
		t.Error("expected a resolved timeline event")
	}
}

// Donation-status updates are requester-only; an arbitrary caller cannot
// force an emergency to resolved. The system actor used by the donation
// workflow is allowed through.
func TestUpdateDonationStatusRequiresRequester(t *testing.T) {
	svc, _, donors, _ := newTestService(t)
	ctx := context.Background()
	requester := uuid.New()

	e, _ := svc.Create(ctx, validInput(requester))
	d := eligibleDonor(bloodtype.BPos, "Pune")
	_ = donors.Create(ctx, d)
	_, _ = svc.Respond(ctx, e.ID, RespondInput{DonorID: d.ID})
	_, _ = svc.ConfirmDonor(ctx, e.ID, requester, ConfirmInput{DonorID: d.ID, UnitsContributed: 1})

	_, err := svc.UpdateDonationStatus(ctx, e.ID, uuid.New(), d.ID, DonationCompleted)
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Errorf("expected conflict for non-requester, got %v", err)
	}

	got, err := svc.UpdateDonationStatus(ctx, e.ID, SystemActor, d.ID, DonationCompleted)
	if err != nil {
		t.Fatalf("unexpected error for system actor: %v", err)
	}
	if got.Status != StatusPartiallyResolved {
		t.Errorf("expected partially-resolved after system update, got %s", got.Status)
	}
}

func TestManualResolve(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	requester := uuid.New()

	e, _ := svc.Create(ctx, validInput(requester))
	got, err := svc.Resolve(ctx, e.ID, requester)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusResolved {
		t.Errorf("expected resolved, got %s", got.Status)
	}
	if got.TotalUnitsReceived != 0 {
		t.Errorf("expected 0 units received on manual resolve, got %d", got.TotalUnitsReceived)
	}
	if _, err := svc.Resolve(ctx, e.ID, requester); !apperr.IsKind(err, apperr.State) {
		t.Errorf("expected state error on second resolve, got %v", err)
	}
}

func TestCancelAppendsTimelineEvent(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	requester := uuid.New()

	e, _ := svc.Create(ctx, validInput(requester))
	if err := svc.Cancel(ctx, e.ID, uuid.New()); !apperr.IsKind(err, apperr.Conflict) {
		t.Errorf("expected conflict for non-requester cancel, got %v", err)
	}
	if err := svc.Cancel(ctx, e.ID, requester); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.emergencies[e.ID].Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", repo.emergencies[e.ID].Status)
	}
	events := repo.emergencies[e.ID].Events
	if len(events) == 0 || events[len(events)-1].EventType != EventCancelled {
		t.Error("expected a cancelled timeline event")
	}
}

func TestExpireOverdue(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	stale, _ := svc.Create(ctx, validInput(uuid.New()))
	repo.emergencies[stale.ID].CreatedAt = time.Now().Add(-12 * time.Hour)
	fresh, _ := svc.Create(ctx, validInput(uuid.New()))

	n, err := svc.ExpireOverdue(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired emergency, got %d", n)
	}
	if repo.emergencies[stale.ID].Status != StatusExpired {
		t.Errorf("expected stale emergency expired, got %s", repo.emergencies[stale.ID].Status)
	}
	if repo.emergencies[fresh.ID].Status != StatusActive {
		t.Errorf("expected fresh emergency untouched, got %s", repo.emergencies[fresh.ID].Status)
	}
}
