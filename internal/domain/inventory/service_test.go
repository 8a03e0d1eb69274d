package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/notification"
	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

// -- Mock Repository --

type mockRepo struct {
	thresholds map[bloodtype.Type]Thresholds
	batches    []*Batch
	failBatch  string // batch_id whose update fails, for sweep partial-failure tests
}

func newMockRepo() *mockRepo {
	return &mockRepo{thresholds: make(map[bloodtype.Type]Thresholds)}
}

func (m *mockRepo) GetByType(_ context.Context, bt bloodtype.Type) (*Inventory, error) {
	th, ok := m.thresholds[bt]
	if !ok {
		th = Thresholds{Critical: 5, Low: 15, Good: 30}
		m.thresholds[bt] = th
	}
	inv := &Inventory{BloodType: bt, Thresholds: th}
	for _, b := range m.batches {
		if b.BloodType == bt {
			inv.Batches = append(inv.Batches, b)
		}
	}
	return inv, nil
}

func (m *mockRepo) ListAll(ctx context.Context) ([]*Inventory, error) {
	var out []*Inventory
	for _, bt := range bloodtype.All {
		inv, err := m.GetByType(ctx, bt)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (m *mockRepo) CreateBatch(_ context.Context, b *Batch) error {
	copied := *b
	m.batches = append(m.batches, &copied)
	return nil
}

func (m *mockRepo) UpdateBatch(_ context.Context, b *Batch) error {
	if b.BatchID == m.failBatch {
		return fmt.Errorf("update failed")
	}
	for i, existing := range m.batches {
		if existing.BatchID == b.BatchID {
			copied := *b
			m.batches[i] = &copied
			return nil
		}
	}
	return fmt.Errorf("batch not found")
}

func (m *mockRepo) UpdateThresholds(_ context.Context, bt bloodtype.Type, t Thresholds) error {
	m.thresholds[bt] = t
	return nil
}

func (m *mockRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *mockRepo) LockType(_ context.Context, _ bloodtype.Type) error { return nil }

func (m *mockRepo) find(batchID string) *Batch {
	for _, b := range m.batches {
		if b.BatchID == batchID {
			return b
		}
	}
	return nil
}

type mockAlerts struct {
	sent []string
}

func (m *mockAlerts) SendFromTemplate(_ context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error) {
	m.sent = append(m.sent, templateID+" "+data["blood_type"]+" "+data["status"])
	return &notification.Notification{Recipient: recipient, TemplateID: templateID}, nil
}

// -- Tests --

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, nil, "", zerolog.Nop()), repo
}

func TestAddStock(t *testing.T) {
	svc, repo := newTestService()
	b, available, err := svc.AddStock(context.Background(), bloodtype.APos, 12, time.Now().AddDate(0, 0, 42), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.BatchID == "" {
		t.Error("expected batch id to be generated")
	}
	if b.Status != BatchAvailable {
		t.Errorf("expected available status, got %s", b.Status)
	}
	if available != 12 {
		t.Errorf("expected 12 available units, got %d", available)
	}
	if len(repo.batches) != 1 {
		t.Errorf("expected 1 persisted batch, got %d", len(repo.batches))
	}
}

func TestAddStock_Validation(t *testing.T) {
	svc, _ := newTestService()
	if _, _, err := svc.AddStock(context.Background(), "Z+", 5, time.Now().AddDate(0, 0, 1), nil, nil); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected validation error for bad type, got %v", err)
	}
	if _, _, err := svc.AddStock(context.Background(), bloodtype.APos, 0, time.Now().AddDate(0, 0, 1), nil, nil); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected validation error for zero units, got %v", err)
	}
	if _, _, err := svc.AddStock(context.Background(), bloodtype.APos, 5, time.Now().AddDate(0, 0, -1), nil, nil); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected validation error for past expiry, got %v", err)
	}
}

func TestBatchIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newBatchID(bloodtype.OPos)
		if seen[id] {
			t.Fatalf("duplicate batch id %s", id)
		}
		seen[id] = true
	}
}

// Add (O+, 25 units, +60d) and (O+, 20 units, +65d); remove 30 -> the
// soonest-to-expire batch is fully used, the later one reduced to 15.
func TestRemoveStock_FIFOByExpiry(t *testing.T) {
	svc, repo := newTestService()
	first, _, err := svc.AddStock(context.Background(), bloodtype.OPos, 25, time.Now().AddDate(0, 0, 60), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := svc.AddStock(context.Background(), bloodtype.OPos, 20, time.Now().AddDate(0, 0, 65), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	available, err := svc.RemoveStock(context.Background(), bloodtype.OPos, 30, "surgery")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if available != 15 {
		t.Errorf("expected 15 available units, got %d", available)
	}

	if got := repo.find(first.BatchID); got.Status != BatchUsed {
		t.Errorf("expected first batch used, got %s", got.Status)
	}
	if got := repo.find(second.BatchID); got.Status != BatchAvailable || got.Units != 15 {
		t.Errorf("expected second batch available with 15 units, got %s/%d", got.Status, got.Units)
	}
}

// Insertion order must not matter: only expiry order drives depletion.
func TestRemoveStock_ExpiryOrderNotInsertOrder(t *testing.T) {
	svc, repo := newTestService()
	later, _, _ := svc.AddStock(context.Background(), bloodtype.BNeg, 10, time.Now().AddDate(0, 0, 90), nil, nil)
	sooner, _, _ := svc.AddStock(context.Background(), bloodtype.BNeg, 10, time.Now().AddDate(0, 0, 10), nil, nil)

	if _, err := svc.RemoveStock(context.Background(), bloodtype.BNeg, 5, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.find(sooner.BatchID); got.Units != 5 {
		t.Errorf("expected soonest-expiry batch drained to 5, got %d", got.Units)
	}
	if got := repo.find(later.BatchID); got.Units != 10 {
		t.Errorf("expected later-expiry batch untouched, got %d", got.Units)
	}
}

// Inventory has 8 available O- units; removing 10 is rejected atomically.
func TestRemoveStock_Insufficient(t *testing.T) {
	svc, repo := newTestService()
	b, _, _ := svc.AddStock(context.Background(), bloodtype.ONeg, 8, time.Now().AddDate(0, 0, 30), nil, nil)

	_, err := svc.RemoveStock(context.Background(), bloodtype.ONeg, 10, "")
	var se *apperr.StockError
	if !errors.As(err, &se) {
		t.Fatalf("expected StockError, got %v", err)
	}
	if se.Requested != 10 || se.Available != 8 {
		t.Errorf("expected requested 10/available 8, got %d/%d", se.Requested, se.Available)
	}
	if got := repo.find(b.BatchID); got.Units != 8 || got.Status != BatchAvailable {
		t.Errorf("expected batch untouched after rejection, got %d units/%s", got.Units, got.Status)
	}
}

// Expired batches cannot satisfy a removal even before a sweep runs.
func TestRemoveStock_IgnoresPastExpiry(t *testing.T) {
	svc, repo := newTestService()
	repo.batches = append(repo.batches, &Batch{
		BatchID:    "stale",
		BloodType:  bloodtype.ABNeg,
		Units:      20,
		ExpiryDate: time.Now().AddDate(0, 0, -1),
		Status:     BatchAvailable,
	})
	if _, err := svc.RemoveStock(context.Background(), bloodtype.ABNeg, 5, ""); err == nil {
		t.Error("expected insufficient stock with only expired batches")
	}
}

func TestRemoveStock_ConservesTotal(t *testing.T) {
	svc, repo := newTestService()
	for i := 0; i < 4; i++ {
		if _, _, err := svc.AddStock(context.Background(), bloodtype.APos, 10, time.Now().AddDate(0, 0, 30+i), nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	available, err := svc.RemoveStock(context.Background(), bloodtype.APos, 23, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if available != 17 {
		t.Errorf("expected 40-23=17 available, got %d", available)
	}
	inv, _ := repo.GetByType(context.Background(), bloodtype.APos)
	if got := inv.AvailableUnits(time.Now()); got != 17 {
		t.Errorf("expected recomputed 17, got %d", got)
	}
	for _, b := range repo.batches {
		if b.Units < 0 {
			t.Errorf("batch %s has negative units %d", b.BatchID, b.Units)
		}
	}
}

// Default thresholds are critical=5/low=15. Dropping from 20 to 10 lands
// in the low band and warns the operations contact; a removal that stays
// above the low threshold stays quiet.
func TestRemoveStock_LowStockAlert(t *testing.T) {
	repo := newMockRepo()
	alerts := &mockAlerts{}
	svc := NewService(repo, alerts, "ops@example.com", zerolog.Nop())
	ctx := context.Background()

	if _, _, err := svc.AddStock(ctx, bloodtype.OPos, 20, time.Now().AddDate(0, 0, 30), nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RemoveStock(ctx, bloodtype.OPos, 2, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts.sent) != 0 {
		t.Fatalf("expected no alert above the low threshold, got %v", alerts.sent)
	}

	if _, err := svc.RemoveStock(ctx, bloodtype.OPos, 8, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts.sent) != 1 || alerts.sent[0] != "stock-alert O+ low" {
		t.Errorf("expected one low-stock alert, got %v", alerts.sent)
	}
}

func TestSweepExpired(t *testing.T) {
	svc, repo := newTestService()
	repo.batches = append(repo.batches,
		&Batch{BatchID: "old-a", BloodType: bloodtype.APos, Units: 5, ExpiryDate: time.Now().AddDate(0, 0, -2), Status: BatchAvailable},
		&Batch{BatchID: "old-o", BloodType: bloodtype.OPos, Units: 3, ExpiryDate: time.Now().AddDate(0, 0, -1), Status: BatchAvailable},
		&Batch{BatchID: "fresh", BloodType: bloodtype.OPos, Units: 9, ExpiryDate: time.Now().AddDate(0, 0, 30), Status: BatchAvailable},
		&Batch{BatchID: "used", BloodType: bloodtype.OPos, Units: 4, ExpiryDate: time.Now().AddDate(0, 0, -5), Status: BatchUsed},
	)

	report, err := svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalUnits != 8 {
		t.Errorf("expected 8 newly expired units, got %d", report.TotalUnits)
	}
	if report.ByType[bloodtype.APos] != 5 || report.ByType[bloodtype.OPos] != 3 {
		t.Errorf("unexpected per-type breakdown: %v", report.ByType)
	}
	if repo.find("fresh").Status != BatchAvailable {
		t.Error("sweep must not touch unexpired batches")
	}
	if repo.find("used").Status != BatchUsed {
		t.Error("sweep must not touch used batches")
	}

	// Idempotent: a second run finds nothing new.
	report, err = svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalUnits != 0 {
		t.Errorf("expected idempotent second sweep, got %d units", report.TotalUnits)
	}
}

// A failure on one batch must not abort the rest of the sweep.
func TestSweepExpired_PartialFailure(t *testing.T) {
	svc, repo := newTestService()
	repo.batches = append(repo.batches,
		&Batch{BatchID: "bad", BloodType: bloodtype.APos, Units: 5, ExpiryDate: time.Now().AddDate(0, 0, -2), Status: BatchAvailable},
		&Batch{BatchID: "good", BloodType: bloodtype.OPos, Units: 3, ExpiryDate: time.Now().AddDate(0, 0, -1), Status: BatchAvailable},
	)
	repo.failBatch = "bad"

	report, err := svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalUnits != 3 {
		t.Errorf("expected 3 units swept despite failure, got %d", report.TotalUnits)
	}
	if repo.find("good").Status != BatchExpired {
		t.Error("expected unaffected batch swept")
	}
}

func TestUpdateThresholds(t *testing.T) {
	svc, _ := newTestService()
	inv, err := svc.UpdateThresholds(context.Background(), bloodtype.APos, Thresholds{Critical: 3, Low: 10, Good: 25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Thresholds.Low != 10 {
		t.Errorf("expected low threshold 10, got %d", inv.Thresholds.Low)
	}

	_, err = svc.UpdateThresholds(context.Background(), bloodtype.APos, Thresholds{Critical: 10, Low: 10, Good: 25})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestReport(t *testing.T) {
	svc, _ := newTestService()
	if _, _, err := svc.AddStock(context.Background(), bloodtype.OPos, 40, time.Now().AddDate(0, 0, 30), nil, nil); err != nil {
		t.Fatal(err)
	}
	reports, err := svc.Report(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != len(bloodtype.All) {
		t.Fatalf("expected %d rows, got %d", len(bloodtype.All), len(reports))
	}
	for _, r := range reports {
		switch r.BloodType {
		case bloodtype.OPos:
			if r.Status != StockGood || r.AvailableUnits != 40 {
				t.Errorf("expected O+ good/40, got %s/%d", r.Status, r.AvailableUnits)
			}
		default:
			if r.Status != StockEmpty {
				t.Errorf("expected %s empty, got %s", r.BloodType, r.Status)
			}
		}
	}
}
