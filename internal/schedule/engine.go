package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/inkmill/inkmill/internal/budget"
	"github.com/inkmill/inkmill/internal/database"
	"github.com/inkmill/inkmill/internal/generate"
	"github.com/inkmill/inkmill/internal/priority"
)

// Options tunes the engine loop.
type Options struct {
	Tick        time.Duration // interval between due-schedule sweeps
	Workers     int           // concurrent schedules per tick
	SectionSize int           // forwarded to cost estimation
}

// TickSummary aggregates the outcome of one sweep over due schedules.
type TickSummary struct {
	Ran       int
	Succeeded int
	Failed    int
	Skipped   int
	Cost      float64
}

// Engine sweeps due schedules and turns each into generation jobs: topic
// selection, budget admission, generation, and bookkeeping.
type Engine struct {
	db       *database.DB
	topics   *priority.Engine
	governor *budget.Governor
	gen      *generate.Generator
	prices   budget.PriceTable
	opts     Options

	now func() time.Time

	mu       sync.Mutex
	inflight map[int64]bool
}

// NewEngine wires the schedule engine.
func NewEngine(db *database.DB, topics *priority.Engine, governor *budget.Governor,
	gen *generate.Generator, prices budget.PriceTable, opts Options) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Minute
	}
	if opts.SectionSize <= 0 {
		opts.SectionSize = 5000
	}
	return &Engine{
		db:       db,
		topics:   topics,
		governor: governor,
		gen:      gen,
		prices:   prices,
		opts:     opts,
		now:      time.Now,
		inflight: make(map[int64]bool),
	}
}

// Run sweeps on the configured interval until the context is cancelled. The
// first sweep happens immediately.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.Tick)
	defer ticker.Stop()

	for {
		if _, err := e.Tick(ctx); err != nil {
			log.Printf("schedule sweep failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs every due schedule once. Schedules execute concurrently up to the
// worker limit; one schedule's failure never aborts the others.
func (e *Engine) Tick(ctx context.Context) (TickSummary, error) {
	due, err := e.db.LoadDueSchedules(database.FormatTime(e.now()))
	if err != nil {
		return TickSummary{}, fmt.Errorf("loading due schedules: %w", err)
	}
	if len(due) == 0 {
		return TickSummary{}, nil
	}

	var (
		mu      sync.Mutex
		summary TickSummary
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := range due {
		s := due[i]
		if !e.acquire(s.ID) {
			continue
		}
		g.Go(func() error {
			defer e.release(s.ID)
			outcome := e.runSchedule(ctx, &s)
			mu.Lock()
			summary.Ran++
			summary.Succeeded += outcome.succeeded
			summary.Failed += outcome.failed
			summary.Skipped += outcome.skipped
			summary.Cost += outcome.cost
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return summary, nil
}

type runOutcome struct {
	succeeded int
	failed    int
	skipped   int
	cost      float64
}

// runSchedule executes one due schedule: select topics, admit each job
// against the budget, generate, and record everything.
func (e *Engine) runSchedule(ctx context.Context, s *database.Schedule) runOutcome {
	startedAt := database.FormatTime(e.now())
	log.Printf("running schedule %d %q (%s, %d topics)", s.ID, s.Name, s.Frequency, s.TopicsPerRun)

	var out runOutcome
	topics, err := e.topics.SelectBest(s.Category, s.TopicsPerRun)
	if err != nil {
		log.Printf("schedule %d: topic selection failed: %v", s.ID, err)
		out.failed = s.TopicsPerRun
		e.finishRun(s, startedAt, out)
		return out
	}
	if len(topics) == 0 {
		log.Printf("schedule %d: no eligible topics in category %q", s.ID, s.Category)
		out.skipped = s.TopicsPerRun
		e.finishRun(s, startedAt, out)
		return out
	}

	estimate := e.prices.Estimate(s.Model, s.MaxLength, e.opts.SectionSize)
	for i := range topics {
		if ctx.Err() != nil {
			out.skipped += len(topics) - i
			break
		}

		decision, err := e.governor.CheckAdmission(estimate)
		if err != nil {
			log.Printf("schedule %d: admission check failed: %v", s.ID, err)
			out.failed += len(topics) - i
			break
		}
		if decision != budget.Admit {
			log.Printf("schedule %d: budget %v, skipping %d remaining jobs", s.ID, decision, len(topics)-i)
			out.skipped += len(topics) - i
			break
		}

		if err := e.topics.MarkUsed(topics[i].ID); err != nil {
			log.Printf("schedule %d: claiming topic %d: %v", s.ID, topics[i].ID, err)
			out.failed++
			continue
		}

		cost := e.runJob(ctx, s, &topics[i], &out)
		out.cost += cost
	}

	e.finishRun(s, startedAt, out)
	return out
}

// runJob generates one artifact for one topic. Billed segments are recorded
// against the ledger even when the job fails part-way.
func (e *Engine) runJob(ctx context.Context, s *database.Schedule, topic *database.Topic, out *runOutcome) float64 {
	artifactID := uuid.NewString()
	res, genErr := e.gen.Generate(ctx, []database.Topic{*topic}, s.MinLength, s.MaxLength, s.Model)
	if res == nil {
		log.Printf("schedule %d: generation for topic %q: %v", s.ID, topic.Text, genErr)
		out.failed++
		return 0
	}

	var artifactRef *string
	if genErr == nil {
		artifactRef = &artifactID
	}

	price, _ := e.prices.Lookup(s.Model)
	var cost float64
	for _, seg := range res.Segments {
		if seg.Skipped {
			continue
		}
		cost += seg.Cost
		event := &database.CostEvent{
			Kind:        "content",
			InputUnits:  seg.Usage.InputUnits,
			OutputUnits: seg.Usage.OutputUnits,
			InputPrice:  price.InputPer1K,
			OutputPrice: price.OutputPer1K,
			Cost:        seg.Cost,
			ArtifactID:  artifactRef,
		}
		if err := e.governor.RecordCost(event); err != nil {
			log.Printf("schedule %d: recording cost: %v", s.ID, err)
		}
	}

	if genErr != nil {
		log.Printf("schedule %d: generation for topic %q: %v", s.ID, topic.Text, genErr)
		out.failed++
		return cost
	}

	artifact := &database.Artifact{
		ID:         artifactID,
		ScheduleID: &s.ID,
		Topic:      topic.Text,
		Title:      res.Title,
		Body:       res.Body,
		Length:     res.Length,
		Model:      s.Model,
		Cost:       res.Cost,
	}
	if err := e.db.InsertArtifact(artifact); err != nil {
		log.Printf("schedule %d: storing artifact: %v", s.ID, err)
		out.failed++
		return cost
	}

	log.Printf("schedule %d: generated %q (%d words, $%.4f)", s.ID, res.Title, res.Length, res.Cost)
	out.succeeded++
	return cost
}

// finishRun stamps run bookkeeping and computes the next due time. A `once`
// schedule retires regardless of outcome; an overdue cadence anchor resets to
// now so missed slots are not replayed.
func (e *Engine) finishRun(s *database.Schedule, startedAt string, out runOutcome) {
	now := e.now().UTC()
	status := database.ScheduleActive
	next := now

	if s.Frequency == FreqOnce {
		status = database.ScheduleCompleted
	} else {
		anchor := now
		if due, err := database.ParseTime(s.NextRunAt); err == nil && now.Sub(due) <= staleThreshold {
			anchor = due
		}
		n, err := NextRun(s.Frequency, s.RunAt, anchor)
		if err != nil {
			log.Printf("schedule %d: computing next run: %v", s.ID, err)
			status = database.SchedulePaused
		} else {
			next = n
		}
	}

	if err := e.db.RecordScheduleRun(s.ID, database.FormatTime(now), database.FormatTime(next),
		status, out.succeeded, out.failed); err != nil {
		log.Printf("schedule %d: recording run: %v", s.ID, err)
	}
	if _, err := e.db.InsertRunReport(s.ID, out.succeeded, out.failed, out.skipped, out.cost, startedAt); err != nil {
		log.Printf("schedule %d: recording run report: %v", s.ID, err)
	}
}

func (e *Engine) acquire(scheduleID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[scheduleID] {
		return false
	}
	e.inflight[scheduleID] = true
	return true
}

func (e *Engine) release(scheduleID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, scheduleID)
}
