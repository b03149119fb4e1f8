package priority

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/inkmill/inkmill/internal/database"
)

// Scoring weights. They sum to 1.0.
const (
	weightDemand      = 0.4
	weightCompetition = 0.3
	weightTrend       = 0.2
	weightValue       = 0.1

	maxFrequencyPenalty = 30.0
	penaltyPerUse       = 5.0
	recencyWindowDays   = 7.0
	penaltyPerRecentDay = 5.0
)

// Store is the persistence surface the engine needs.
type Store interface {
	LoadActiveTopics(category string) ([]database.Topic, error)
	GetTopicByID(topicID int64) (*database.Topic, error)
	MarkTopicUsed(topicID int64, lastUsedAt string, score float64) error
	UpdateTopicScore(topicID int64, score float64) error
}

// Engine scores and ranks candidate topics.
type Engine struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewEngine creates a priority engine.
func NewEngine(store Store) *Engine {
	return &Engine{
		store: store,
		now:   time.Now,
		locks: make(map[int64]*sync.Mutex),
	}
}

// Score computes the priority score for a topic, in [0,100].
func (e *Engine) Score(t *database.Topic) float64 {
	base := weightDemand*normalizeDemand(t.DemandVolume) +
		weightCompetition*float64(100-t.Competition) +
		weightTrend*float64(t.TrendScore) +
		weightValue*normalizeValue(t.UnitValue)

	score := base - frequencyPenalty(t.UseCount) - e.recencyPenalty(t.LastUsedAt)

	return clamp(score, 0, 100)
}

// SelectBest returns the top-N active topics for a category, freshly scored.
// Ties break by lowest use count, then most recent discovery. An empty
// selection is a valid "nothing to do" outcome, not an error.
func (e *Engine) SelectBest(category string, count int) ([]database.Topic, error) {
	topics, err := e.store.LoadActiveTopics(category)
	if err != nil {
		return nil, fmt.Errorf("loading active topics: %w", err)
	}

	for i := range topics {
		topics[i].PriorityScore = e.Score(&topics[i])
	}

	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].PriorityScore != topics[j].PriorityScore {
			return topics[i].PriorityScore > topics[j].PriorityScore
		}
		if topics[i].UseCount != topics[j].UseCount {
			return topics[i].UseCount < topics[j].UseCount
		}
		return discoveredAfter(topics[i].DiscoveredAt, topics[j].DiscoveredAt)
	})

	if count < len(topics) {
		topics = topics[:count]
	}
	return topics, nil
}

// MarkUsed increments the topic's use count, stamps last-used, and persists
// the recomputed score as one update. A per-topic lock serializes concurrent
// claims so two jobs in the same tick cannot both rank a freshly-used topic
// at the top.
func (e *Engine) MarkUsed(topicID int64) error {
	lock := e.topicLock(topicID)
	lock.Lock()
	defer lock.Unlock()

	topic, err := e.store.GetTopicByID(topicID)
	if err != nil {
		return fmt.Errorf("loading topic %d: %w", topicID, err)
	}
	if topic == nil {
		return fmt.Errorf("topic %d not found", topicID)
	}

	now := database.FormatTime(e.now())
	topic.UseCount++
	topic.LastUsedAt = &now
	score := e.Score(topic)

	if err := e.store.MarkTopicUsed(topicID, now, score); err != nil {
		return fmt.Errorf("marking topic %d used: %w", topicID, err)
	}
	return nil
}

// RescoreAll recomputes and persists scores for every active topic. Used
// after discovery imports so stored rankings stay fresh.
func (e *Engine) RescoreAll() (int, error) {
	topics, err := e.store.LoadActiveTopics("")
	if err != nil {
		return 0, fmt.Errorf("loading topics for rescore: %w", err)
	}
	for i := range topics {
		score := e.Score(&topics[i])
		if err := e.store.UpdateTopicScore(topics[i].ID, score); err != nil {
			return i, fmt.Errorf("storing score for topic %d: %w", topics[i].ID, err)
		}
	}
	return len(topics), nil
}

func (e *Engine) topicLock(topicID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[topicID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[topicID] = lock
	}
	return lock
}

// normalizeDemand maps a raw search-volume style count onto [0,100] on a log
// scale, so the difference between 100 and 1,000 matters more than the
// difference between 100,000 and 101,000.
func normalizeDemand(volume int) float64 {
	if volume <= 0 {
		return 0
	}
	return math.Min(100, 20*math.Log10(float64(volume)+1))
}

// normalizeValue maps a per-use monetary value onto [0,100]; $5 per use and
// up saturates the scale.
func normalizeValue(value float64) float64 {
	if value <= 0 {
		return 0
	}
	return math.Min(100, value*20)
}

func frequencyPenalty(useCount int) float64 {
	return math.Min(maxFrequencyPenalty, float64(useCount)*penaltyPerUse)
}

func (e *Engine) recencyPenalty(lastUsedAt *string) float64 {
	if lastUsedAt == nil {
		return 0
	}
	used, err := database.ParseTime(*lastUsedAt)
	if err != nil {
		return 0
	}
	days := e.now().UTC().Sub(used).Hours() / 24
	if days < 0 || days >= recencyWindowDays {
		return 0
	}
	return math.Max(0, (recencyWindowDays-days)*penaltyPerRecentDay)
}

func discoveredAfter(a, b *string) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return *a > *b
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
