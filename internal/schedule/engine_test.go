package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inkmill/inkmill/internal/budget"
	"github.com/inkmill/inkmill/internal/database"
	"github.com/inkmill/inkmill/internal/generate"
	"github.com/inkmill/inkmill/internal/priority"
	"github.com/inkmill/inkmill/internal/textgen"
)

// stubClient answers every generation call with a fixed-size body, erroring
// for topics listed in failFor.
type stubClient struct {
	failFor string
	calls   int
}

func (c *stubClient) Generate(ctx context.Context, req textgen.Request) (*textgen.Response, error) {
	c.calls++
	if c.failFor != "" && strings.Contains(req.UserPrompt, c.failFor) {
		return nil, errors.New("service rejected request")
	}
	return &textgen.Response{
		Text:  strings.TrimSpace(strings.Repeat("steady prose about the subject at hand ", 115)),
		Usage: textgen.Usage{InputUnits: 100, OutputUnits: 1000},
	}, nil
}

func testPrices() budget.PriceTable {
	return budget.PriceTable{
		"standard": {ServiceModel: "svc-small", InputPer1K: 0.1, OutputPer1K: 0.2, SingleCallLimit: 1500},
	}
}

func newTestEngine(t *testing.T, client textgen.Client, dailyLimit float64) (*Engine, *database.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "schedule.db"))
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	prices := testPrices()
	gov := budget.NewGovernor(db, dailyLimit, 0)
	gen := generate.New(client, prices, generate.Options{SectionSize: 5000})
	return NewEngine(db, priority.NewEngine(db), gov, gen, prices, Options{Workers: 2}), db
}

func dueSchedule(db *database.DB, t *testing.T, name, category, frequency string) int64 {
	t.Helper()
	id, err := db.InsertSchedule(&database.Schedule{
		Name:         name,
		Category:     category,
		Frequency:    frequency,
		NextRunAt:    database.FormatTime(time.Now().UTC().Add(-time.Minute)),
		TopicsPerRun: 1,
		MinLength:    500,
		MaxLength:    1000,
		Model:        "standard",
	})
	if err != nil {
		t.Fatalf("inserting schedule: %v", err)
	}
	return id
}

func TestTickRunsDueSchedule(t *testing.T) {
	client := &stubClient{}
	e, db := newTestEngine(t, client, 0)
	db.InsertTopic("carbon plates", "gear", 5000, 30, 70, 2)
	id := dueSchedule(db, t, "gear daily", "gear", FreqDaily)

	summary, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Ran != 1 || summary.Succeeded != 1 {
		t.Fatalf("expected 1 run 1 success, got %+v", summary)
	}
	if summary.Cost <= 0 {
		t.Error("expected billed cost in summary")
	}

	s, _ := db.GetScheduleByID(id)
	if s.LastRunAt == nil {
		t.Fatal("expected last_run_at stamped")
	}
	if s.RunCount != 1 || s.SuccessCount != 1 {
		t.Errorf("expected run bookkeeping, got run=%d success=%d", s.RunCount, s.SuccessCount)
	}
	next, err := database.ParseTime(s.NextRunAt)
	if err != nil || !next.After(time.Now().UTC()) {
		t.Errorf("expected future next_run_at, got %q (%v)", s.NextRunAt, err)
	}

	artifacts, _ := db.RecentArtifacts(10)
	if len(artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(artifacts))
	}
	if artifacts[0].Cost <= 0 || artifacts[0].Length == 0 {
		t.Errorf("expected artifact with cost and length, got %+v", artifacts[0])
	}

	events, _ := db.RecentCostEvents(10)
	if len(events) == 0 {
		t.Fatal("expected cost events recorded")
	}
	if events[0].ArtifactID == nil || *events[0].ArtifactID != artifacts[0].ID {
		t.Error("expected cost events linked to the artifact")
	}

	reports, _ := db.RecentRunReports(10)
	if len(reports) != 1 || reports[0].Succeeded != 1 {
		t.Errorf("expected run report, got %+v", reports)
	}
}

func TestTickIgnoresFutureSchedules(t *testing.T) {
	client := &stubClient{}
	e, db := newTestEngine(t, client, 0)
	db.InsertTopic("topic", "gear", 5000, 30, 70, 2)
	db.InsertSchedule(&database.Schedule{
		Name: "later", Category: "gear", Frequency: FreqDaily,
		NextRunAt:    database.FormatTime(time.Now().UTC().Add(time.Hour)),
		TopicsPerRun: 1, MinLength: 500, MaxLength: 1000, Model: "standard",
	})

	summary, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Ran != 0 || client.calls != 0 {
		t.Errorf("expected no work, got %+v with %d calls", summary, client.calls)
	}
}

func TestOnceScheduleRetires(t *testing.T) {
	// The generation call fails, but a once schedule still leaves the active
	// pool after its single run.
	client := &stubClient{failFor: "ultralight tents"}
	e, db := newTestEngine(t, client, 0)
	db.InsertTopic("ultralight tents", "gear", 5000, 30, 70, 2)
	id := dueSchedule(db, t, "one shot", "gear", FreqOnce)

	summary, _ := e.Tick(context.Background())
	if summary.Failed != 1 {
		t.Errorf("expected 1 failure, got %+v", summary)
	}

	s, _ := db.GetScheduleByID(id)
	if s.Status != database.ScheduleCompleted {
		t.Errorf("expected completed status, got %q", s.Status)
	}

	summary, _ = e.Tick(context.Background())
	if summary.Ran != 0 {
		t.Error("completed schedule must not run again")
	}
}

func TestBudgetRejectionSkipsJobs(t *testing.T) {
	client := &stubClient{}
	e, db := newTestEngine(t, client, 0.0000001)
	db.InsertTopic("blocked topic", "gear", 5000, 30, 70, 2)
	dueSchedule(db, t, "starved", "gear", FreqDaily)

	summary, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Skipped != 1 || summary.Succeeded != 0 {
		t.Errorf("expected 1 skipped job, got %+v", summary)
	}
	if client.calls != 0 {
		t.Errorf("rejected jobs must not reach the service, got %d calls", client.calls)
	}

	topic, _ := db.GetTopicByID(1)
	if topic.UseCount != 0 {
		t.Error("rejected jobs must not consume the topic")
	}
	artifacts, _ := db.RecentArtifacts(10)
	if len(artifacts) != 0 {
		t.Error("expected no artifacts")
	}
}

func TestNoTopicsSkipsRun(t *testing.T) {
	client := &stubClient{}
	e, db := newTestEngine(t, client, 0)
	id := dueSchedule(db, t, "barren", "empty-category", FreqDaily)

	summary, _ := e.Tick(context.Background())
	if summary.Ran != 1 || summary.Skipped != 1 {
		t.Errorf("expected skipped run, got %+v", summary)
	}

	// The schedule still advances so it retries next slot instead of spinning.
	s, _ := db.GetScheduleByID(id)
	next, _ := database.ParseTime(s.NextRunAt)
	if !next.After(time.Now().UTC()) {
		t.Error("expected next_run_at advanced past now")
	}
}

func TestFailureIsolation(t *testing.T) {
	client := &stubClient{failFor: "doomed topic"}
	e, db := newTestEngine(t, client, 0)
	db.InsertTopic("doomed topic", "broken", 5000, 30, 70, 2)
	db.InsertTopic("fine topic", "gear", 5000, 30, 70, 2)
	dueSchedule(db, t, "broken schedule", "broken", FreqDaily)
	dueSchedule(db, t, "healthy schedule", "gear", FreqDaily)

	summary, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Ran != 2 {
		t.Fatalf("expected both schedules to run, got %+v", summary)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Errorf("expected one success and one failure, got %+v", summary)
	}
}

func TestTopicClaimedOnRun(t *testing.T) {
	client := &stubClient{}
	e, db := newTestEngine(t, client, 0)
	id, _ := db.InsertTopic("claimed topic", "gear", 5000, 30, 70, 2)
	dueSchedule(db, t, "claimer", "gear", FreqDaily)

	e.Tick(context.Background())

	topic, _ := db.GetTopicByID(id)
	if topic.UseCount != 1 {
		t.Errorf("expected topic claimed once, got use_count %d", topic.UseCount)
	}
	if topic.LastUsedAt == nil {
		t.Error("expected last_used_at stamped")
	}
}

func TestSingleFlight(t *testing.T) {
	e, _ := newTestEngine(t, &stubClient{}, 0)

	if !e.acquire(7) {
		t.Fatal("first acquire should succeed")
	}
	if e.acquire(7) {
		t.Error("second acquire of same schedule must fail")
	}
	e.release(7)
	if !e.acquire(7) {
		t.Error("acquire after release should succeed")
	}
}

func TestStaleScheduleAnchorsFromNow(t *testing.T) {
	client := &stubClient{}
	e, db := newTestEngine(t, client, 0)
	db.InsertTopic("stale topic", "gear", 5000, 30, 70, 2)
	id, _ := db.InsertSchedule(&database.Schedule{
		Name: "stale", Category: "gear", Frequency: FreqDaily,
		NextRunAt:    database.FormatTime(time.Now().UTC().Add(-72 * time.Hour)),
		TopicsPerRun: 1, MinLength: 500, MaxLength: 1000, Model: "standard",
	})

	summary, _ := e.Tick(context.Background())
	if summary.Ran != 1 {
		t.Fatalf("overdue schedule should run once, got %+v", summary)
	}

	// Anchor resets to now: next run lands about a day out, not two days ago.
	s, _ := db.GetScheduleByID(id)
	next, _ := database.ParseTime(s.NextRunAt)
	if next.Before(time.Now().UTC().Add(23 * time.Hour)) {
		t.Errorf("expected next run about a day from now, got %v", next)
	}
}
