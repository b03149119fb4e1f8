package schedule

import (
	"fmt"
	"time"

	"github.com/inkmill/inkmill/internal/budget"
	"github.com/inkmill/inkmill/internal/database"
)

const maxTopicsPerRun = 10

var validFrequencies = map[string]bool{
	FreqOnce:       true,
	FreqHourly:     true,
	FreqTwiceDaily: true,
	FreqDaily:      true,
	FreqWeekly:     true,
	FreqMonthly:    true,
	FreqCustom:     true,
}

// ValidationError describes one rejected schedule field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid schedule %s: %s", e.Field, e.Reason)
}

// Validate checks a schedule before it is stored. The prices table supplies
// the set of known models.
func Validate(s *database.Schedule, prices budget.PriceTable) error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !validFrequencies[s.Frequency] {
		return &ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown frequency %q", s.Frequency)}
	}
	if s.Frequency == FreqCustom {
		if _, err := time.Parse("15:04", s.RunAt); err != nil {
			return &ValidationError{Field: "run_at", Reason: fmt.Sprintf("%q is not a valid HH:MM time", s.RunAt)}
		}
	}
	if s.TopicsPerRun < 1 || s.TopicsPerRun > maxTopicsPerRun {
		return &ValidationError{Field: "topics_per_run", Reason: fmt.Sprintf("must be between 1 and %d", maxTopicsPerRun)}
	}
	if s.MinLength <= 0 {
		return &ValidationError{Field: "min_length", Reason: "must be positive"}
	}
	if s.MinLength >= s.MaxLength {
		return &ValidationError{Field: "max_length", Reason: "must be greater than min_length"}
	}
	if _, ok := prices.Lookup(s.Model); !ok {
		return &ValidationError{Field: "model", Reason: fmt.Sprintf("unknown model %q", s.Model)}
	}
	if s.ImageCount < 0 {
		return &ValidationError{Field: "image_count", Reason: "must not be negative"}
	}
	return nil
}
