package priority

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/inkmill/inkmill/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "priority.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testTopic() *database.Topic {
	return &database.Topic{
		DemandVolume: 1000,
		Competition:  50,
		TrendScore:   50,
		UnitValue:    1.0,
	}
}

func TestScoreInRange(t *testing.T) {
	e := NewEngine(nil)

	cases := []*database.Topic{
		{},
		{DemandVolume: 1 << 30, Competition: 0, TrendScore: 100, UnitValue: 1000},
		{DemandVolume: 0, Competition: 100, TrendScore: 0, UnitValue: 0, UseCount: 50},
	}
	for _, c := range cases {
		score := e.Score(c)
		if score < 0 || score > 100 {
			t.Errorf("score %f out of [0,100] for %+v", score, c)
		}
	}
}

func TestScoreDemandMonotonicity(t *testing.T) {
	e := NewEngine(nil)

	low := testTopic()
	low.DemandVolume = 100
	high := testTopic()
	high.DemandVolume = 10000

	if e.Score(high) < e.Score(low) {
		t.Errorf("higher demand scored lower: %f < %f", e.Score(high), e.Score(low))
	}
}

func TestScoreCompetitionPenalizes(t *testing.T) {
	e := NewEngine(nil)

	easy := testTopic()
	easy.Competition = 10
	crowded := testTopic()
	crowded.Competition = 90

	if e.Score(crowded) >= e.Score(easy) {
		t.Errorf("crowded topic should score lower: %f >= %f", e.Score(crowded), e.Score(easy))
	}
}

func TestFrequencyPenaltyCapped(t *testing.T) {
	e := NewEngine(nil)

	six := testTopic()
	six.UseCount = 6
	sixty := testTopic()
	sixty.UseCount = 60

	if e.Score(six) != e.Score(sixty) {
		t.Errorf("frequency penalty should cap at 30: %f != %f", e.Score(six), e.Score(sixty))
	}
}

func TestRecencyPenaltyDecay(t *testing.T) {
	e := NewEngine(nil)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	usedAt := func(daysAgo int) *string {
		s := database.FormatTime(now.AddDate(0, 0, -daysAgo))
		return &s
	}

	today := testTopic()
	today.LastUsedAt = usedAt(0)
	sixDays := testTopic()
	sixDays.LastUsedAt = usedAt(6)
	eightDays := testTopic()
	eightDays.LastUsedAt = usedAt(8)
	never := testTopic()

	if e.Score(today) > e.Score(sixDays) {
		t.Errorf("topic used today should score no higher than one used 6 days ago: %f > %f",
			e.Score(today), e.Score(sixDays))
	}
	if e.Score(eightDays) != e.Score(never) {
		t.Errorf("8+ day old use should carry zero penalty: %f != %f",
			e.Score(eightDays), e.Score(never))
	}
}

func TestSelectBestRanksByScore(t *testing.T) {
	db := openTestDB(t)
	db.InsertTopic("weak", "gear", 10, 90, 10, 0)
	db.InsertTopic("strong", "gear", 100000, 10, 90, 3)
	db.InsertTopic("middling", "gear", 1000, 50, 50, 1)

	e := NewEngine(db)
	topics, err := e.SelectBest("gear", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}
	if topics[0].Text != "strong" {
		t.Errorf("expected 'strong' first, got %q", topics[0].Text)
	}
	if topics[1].Text != "middling" {
		t.Errorf("expected 'middling' second, got %q", topics[1].Text)
	}
}

func TestSelectBestTieBreaksByUseCount(t *testing.T) {
	db := openTestDB(t)
	heavyID, _ := db.InsertTopic("heavy twin", "gear", 1000, 50, 50, 1)
	lightID, _ := db.InsertTopic("light twin", "gear", 1000, 50, 50, 1)

	// Identical attributes with use counts past the frequency-penalty cap
	// and last use outside the recency window: equal scores, so the tie
	// breaks by lower use count.
	longAgo := database.FormatTime(time.Now().AddDate(0, 0, -30))
	for i := 0; i < 60; i++ {
		db.MarkTopicUsed(heavyID, longAgo, 0)
	}
	for i := 0; i < 6; i++ {
		db.MarkTopicUsed(lightID, longAgo, 0)
	}

	e := NewEngine(db)
	topics, err := e.SelectBest("gear", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if topics[0].Text != "light twin" {
		t.Errorf("expected lighter-used topic first, got %q", topics[0].Text)
	}
}

func TestSelectBestEmptySelection(t *testing.T) {
	db := openTestDB(t)
	db.InsertTopic("other category", "food", 1000, 50, 50, 1)

	e := NewEngine(db)
	topics, err := e.SelectBest("gear", 3)
	if err != nil {
		t.Fatalf("empty selection must not be an error: %v", err)
	}
	if len(topics) != 0 {
		t.Errorf("expected empty selection, got %d topics", len(topics))
	}
}

func TestMarkUsedUpdatesTopic(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertTopic("mark me", "gear", 1000, 50, 50, 1)

	e := NewEngine(db)
	before, _ := db.GetTopicByID(id)
	scoreBefore := e.Score(before)

	if err := e.MarkUsed(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, _ := db.GetTopicByID(id)
	if after.UseCount != 1 {
		t.Errorf("expected use_count 1, got %d", after.UseCount)
	}
	if after.LastUsedAt == nil {
		t.Fatal("expected last_used_at to be stamped")
	}
	if after.PriorityScore >= scoreBefore {
		t.Errorf("expected score to drop after use: %f >= %f", after.PriorityScore, scoreBefore)
	}
}

func TestMarkUsedUnknownTopic(t *testing.T) {
	db := openTestDB(t)
	e := NewEngine(db)
	if err := e.MarkUsed(9999); err == nil {
		t.Error("expected error for unknown topic")
	}
}

func TestMarkUsedConcurrent(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertTopic("contended", "gear", 1000, 50, 50, 1)

	e := NewEngine(db)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.MarkUsed(id); err != nil {
				t.Errorf("MarkUsed: %v", err)
			}
		}()
	}
	wg.Wait()

	topic, _ := db.GetTopicByID(id)
	if topic.UseCount != 8 {
		t.Errorf("expected use_count 8 after concurrent marks, got %d", topic.UseCount)
	}
}

func TestRescoreAll(t *testing.T) {
	db := openTestDB(t)
	db.InsertTopic("one", "gear", 1000, 50, 50, 1)
	db.InsertTopic("two", "gear", 5000, 20, 80, 2)

	e := NewEngine(db)
	n, err := e.RescoreAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rescored, got %d", n)
	}

	topics, _ := db.AllTopics()
	for _, topic := range topics {
		if topic.PriorityScore == 0 {
			t.Errorf("expected persisted score for %q", topic.Text)
		}
	}
}

func TestNormalizeDemand(t *testing.T) {
	if normalizeDemand(0) != 0 {
		t.Error("expected 0 for zero demand")
	}
	if normalizeDemand(100000) != 100 {
		t.Errorf("expected saturation at 100k, got %f", normalizeDemand(100000))
	}
	if normalizeDemand(100) >= normalizeDemand(10000) {
		t.Error("expected log growth")
	}
}
