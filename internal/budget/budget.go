package budget

import (
	"fmt"
	"sync"
	"time"

	"github.com/inkmill/inkmill/internal/database"
)

// Window identifies a rolling spend window.
type Window string

const (
	WindowDaily   Window = "daily"
	WindowMonthly Window = "monthly"
)

// warnThreshold is the usage fraction that raises a soft warning.
const warnThreshold = 0.8

// Decision is the outcome of an admission check.
type Decision int

const (
	Admit Decision = iota
	RejectDailyLimit
	RejectMonthlyLimit
)

func (d Decision) String() string {
	switch d {
	case Admit:
		return "admit"
	case RejectDailyLimit:
		return "reject: daily limit"
	case RejectMonthlyLimit:
		return "reject: monthly limit"
	}
	return "unknown"
}

// Ledger is the persistence surface the governor needs.
type Ledger interface {
	AppendCostEvent(e *database.CostEvent) (int64, error)
	SumCostSince(since string) (float64, error)
}

// UsageReport describes spend against one ceiling.
type UsageReport struct {
	Window  Window
	Used    float64
	Limit   float64
	Percent float64
	Warning bool
}

// Governor tracks cumulative spend and gates new work against the configured
// ceilings. Admission is checked against a fresh ledger snapshot on every
// call; the mutex serializes concurrent checks so two jobs cannot both be
// admitted against the same remaining headroom.
type Governor struct {
	ledger       Ledger
	dailyLimit   float64
	monthlyLimit float64

	mu  sync.Mutex
	now func() time.Time
}

// NewGovernor creates a budget governor. A limit of 0 disables that ceiling.
func NewGovernor(ledger Ledger, dailyLimit, monthlyLimit float64) *Governor {
	return &Governor{
		ledger:       ledger,
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		now:          time.Now,
	}
}

// CheckAdmission decides whether work with the given estimated cost may
// proceed. Projected spend meeting or exceeding a ceiling refuses admission
// before any external call is made.
func (g *Governor) CheckAdmission(estimatedCost float64) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dailyLimit > 0 {
		total, err := g.windowTotal(WindowDaily)
		if err != nil {
			return Admit, fmt.Errorf("reading daily spend: %w", err)
		}
		if total+estimatedCost >= g.dailyLimit {
			return RejectDailyLimit, nil
		}
	}

	if g.monthlyLimit > 0 {
		total, err := g.windowTotal(WindowMonthly)
		if err != nil {
			return Admit, fmt.Errorf("reading monthly spend: %w", err)
		}
		if total+estimatedCost >= g.monthlyLimit {
			return RejectMonthlyLimit, nil
		}
	}

	return Admit, nil
}

// RecordCost appends one billed call to the ledger. It must be called exactly
// once per successful external call, with actual billed units.
func (g *Governor) RecordCost(e *database.CostEvent) error {
	_, err := g.ledger.AppendCostEvent(e)
	if err != nil {
		return fmt.Errorf("recording cost event: %w", err)
	}
	return nil
}

// UsagePercent returns spend as a percentage of the window's ceiling.
// Returns 0 when the ceiling is disabled.
func (g *Governor) UsagePercent(w Window) (float64, error) {
	limit := g.limitFor(w)
	if limit <= 0 {
		return 0, nil
	}
	total, err := g.windowTotal(w)
	if err != nil {
		return 0, err
	}
	return total / limit * 100, nil
}

// Usage returns spend reports for both windows. Warning is set once usage
// crosses 80% of a ceiling; it never blocks admission.
func (g *Governor) Usage() ([]UsageReport, error) {
	var reports []UsageReport
	for _, w := range []Window{WindowDaily, WindowMonthly} {
		limit := g.limitFor(w)
		total, err := g.windowTotal(w)
		if err != nil {
			return nil, err
		}
		r := UsageReport{Window: w, Used: total, Limit: limit}
		if limit > 0 {
			r.Percent = total / limit * 100
			r.Warning = total >= limit*warnThreshold
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (g *Governor) limitFor(w Window) float64 {
	if w == WindowMonthly {
		return g.monthlyLimit
	}
	return g.dailyLimit
}

func (g *Governor) windowTotal(w Window) (float64, error) {
	now := g.now().UTC()
	var start time.Time
	switch w {
	case WindowMonthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	return g.ledger.SumCostSince(database.FormatTime(start))
}
