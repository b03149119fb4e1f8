package budget

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/inkmill/inkmill/internal/config"
	"github.com/inkmill/inkmill/internal/database"
)

// fakeLedger returns a fixed window total and records appended events.
type fakeLedger struct {
	total    float64
	appended []*database.CostEvent
}

func (f *fakeLedger) AppendCostEvent(e *database.CostEvent) (int64, error) {
	f.appended = append(f.appended, e)
	f.total += e.Cost
	return int64(len(f.appended)), nil
}

func (f *fakeLedger) SumCostSince(since string) (float64, error) {
	return f.total, nil
}

func TestCheckAdmissionDeterminism(t *testing.T) {
	g := NewGovernor(&fakeLedger{total: 950}, 1000, 0)

	d, err := g.CheckAdmission(40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != Admit {
		t.Errorf("expected Admit for 990 < 1000, got %v", d)
	}

	d, _ = g.CheckAdmission(60)
	if d != RejectDailyLimit {
		t.Errorf("expected RejectDailyLimit for 1010 >= 1000, got %v", d)
	}
}

func TestCheckAdmissionExactCeiling(t *testing.T) {
	g := NewGovernor(&fakeLedger{total: 950}, 1000, 0)

	// Projected spend meeting the ceiling is refused.
	d, _ := g.CheckAdmission(50)
	if d != RejectDailyLimit {
		t.Errorf("expected rejection at exactly 1000, got %v", d)
	}
}

func TestCheckAdmissionMonthly(t *testing.T) {
	g := NewGovernor(&fakeLedger{total: 99}, 0, 100)

	d, _ := g.CheckAdmission(2)
	if d != RejectMonthlyLimit {
		t.Errorf("expected RejectMonthlyLimit, got %v", d)
	}

	d, _ = g.CheckAdmission(0.5)
	if d != Admit {
		t.Errorf("expected Admit, got %v", d)
	}
}

func TestCheckAdmissionUnlimited(t *testing.T) {
	g := NewGovernor(&fakeLedger{total: 1e9}, 0, 0)

	d, _ := g.CheckAdmission(1e6)
	if d != Admit {
		t.Errorf("expected Admit with ceilings disabled, got %v", d)
	}
}

func TestUsagePercent(t *testing.T) {
	g := NewGovernor(&fakeLedger{total: 25}, 100, 0)

	pct, err := g.UsagePercent(WindowDaily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pct != 25 {
		t.Errorf("expected 25%%, got %f", pct)
	}

	pct, _ = g.UsagePercent(WindowMonthly)
	if pct != 0 {
		t.Errorf("expected 0%% for disabled ceiling, got %f", pct)
	}
}

func TestUsageWarningThreshold(t *testing.T) {
	ledger := &fakeLedger{total: 79}
	g := NewGovernor(ledger, 100, 1000)

	reports, err := g.Usage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range reports {
		if r.Warning {
			t.Errorf("expected no warning at %f/%f", r.Used, r.Limit)
		}
	}

	ledger.total = 80
	reports, _ = g.Usage()
	if !reports[0].Warning {
		t.Error("expected daily warning at 80%")
	}
	if reports[1].Warning {
		t.Error("expected no monthly warning at 8%")
	}

	// Warnings never block admission.
	d, _ := g.CheckAdmission(1)
	if d != Admit {
		t.Errorf("expected Admit despite warning, got %v", d)
	}
}

func TestRecordCostAppends(t *testing.T) {
	ledger := &fakeLedger{}
	g := NewGovernor(ledger, 100, 0)

	err := g.RecordCost(&database.CostEvent{Kind: "content", Cost: 1.5, OutputUnits: 2000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ledger.appended) != 1 {
		t.Fatalf("expected 1 appended event, got %d", len(ledger.appended))
	}
	if ledger.appended[0].OutputUnits != 2000 {
		t.Error("expected actual units on the event")
	}
}

func TestGovernorAgainstSQLite(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "budget.db"))
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	defer db.Close()

	g := NewGovernor(db, 10, 100)
	if err := g.RecordCost(&database.CostEvent{Kind: "content", Cost: 9.5}); err != nil {
		t.Fatalf("recording cost: %v", err)
	}

	d, err := g.CheckAdmission(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != RejectDailyLimit {
		t.Errorf("expected RejectDailyLimit, got %v", d)
	}

	pct, _ := g.UsagePercent(WindowDaily)
	if pct != 95 {
		t.Errorf("expected 95%%, got %f", pct)
	}
}

func TestWindowBoundaries(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "windows.db"))
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	defer db.Close()

	g := NewGovernor(db, 10, 20)
	g.RecordCost(&database.CostEvent{Kind: "content", Cost: 5})

	// A governor whose clock is tomorrow sees an empty daily window but the
	// same monthly window.
	g.now = func() time.Time { return time.Now().UTC().Add(24 * time.Hour) }
	if time.Now().UTC().Add(24*time.Hour).Month() != time.Now().UTC().Month() {
		t.Skip("month rollover during test window")
	}

	daily, _ := g.UsagePercent(WindowDaily)
	if daily != 0 {
		t.Errorf("expected 0%% daily tomorrow, got %f", daily)
	}
	monthly, _ := g.UsagePercent(WindowMonthly)
	if monthly != 25 {
		t.Errorf("expected 25%% monthly, got %f", monthly)
	}
}

func TestPriceTableCost(t *testing.T) {
	pt := PriceTable{
		"standard": {InputPer1K: 0.1, OutputPer1K: 0.2, SingleCallLimit: 1500},
	}

	cost := pt.Cost("standard", 1000, 2000)
	want := 0.1 + 0.4
	if cost != want {
		t.Errorf("expected %f, got %f", want, cost)
	}

	if pt.Cost("unknown", 1000, 1000) != 0 {
		t.Error("expected 0 for unknown model")
	}
}

func TestPriceTableEstimate(t *testing.T) {
	pt := PriceTable{
		"standard": {InputPer1K: 0.1, OutputPer1K: 0.2, SingleCallLimit: 1500},
	}

	direct := pt.Estimate("standard", 1000, 5000)
	segmented := pt.Estimate("standard", 12000, 5000)
	if direct <= 0 {
		t.Error("expected positive direct estimate")
	}
	if segmented <= direct {
		t.Error("expected segmented estimate to exceed direct estimate")
	}

	// Estimate scales with target length, not actual usage.
	bigger := pt.Estimate("standard", 24000, 5000)
	if bigger <= segmented {
		t.Error("expected estimate to grow with target length")
	}
}

func TestTableFromConfig(t *testing.T) {
	pt := TableFromConfig(map[string]config.Model{
		"standard": {ServiceModel: "gpt-4o-mini", InputPricePer1K: 0.1, OutputPricePer1K: 0.2, SingleCallLimit: 1500},
	})

	p, ok := pt.Lookup("standard")
	if !ok {
		t.Fatal("expected standard model in table")
	}
	if p.ServiceModel != "gpt-4o-mini" {
		t.Errorf("unexpected service model %q", p.ServiceModel)
	}
	if p.SingleCallLimit != 1500 {
		t.Errorf("unexpected single call limit %d", p.SingleCallLimit)
	}
}
