package schedule

import (
	"errors"
	"testing"

	"github.com/inkmill/inkmill/internal/budget"
	"github.com/inkmill/inkmill/internal/database"
)

func validSchedule() *database.Schedule {
	return &database.Schedule{
		Name:         "weekly gear roundup",
		Category:     "gear",
		Frequency:    FreqWeekly,
		TopicsPerRun: 2,
		MinLength:    3000,
		MaxLength:    6000,
		Model:        "standard",
	}
}

func TestValidateAccepts(t *testing.T) {
	prices := budget.PriceTable{"standard": {SingleCallLimit: 1500}}
	if err := Validate(validSchedule(), prices); err != nil {
		t.Errorf("expected valid schedule, got %v", err)
	}

	custom := validSchedule()
	custom.Frequency = FreqCustom
	custom.RunAt = "06:30"
	if err := Validate(custom, prices); err != nil {
		t.Errorf("expected valid custom schedule, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	prices := budget.PriceTable{"standard": {SingleCallLimit: 1500}}

	cases := []struct {
		name   string
		mutate func(s *database.Schedule)
		field  string
	}{
		{"empty name", func(s *database.Schedule) { s.Name = "" }, "name"},
		{"bad frequency", func(s *database.Schedule) { s.Frequency = "sometimes" }, "frequency"},
		{"custom without time", func(s *database.Schedule) { s.Frequency = FreqCustom; s.RunAt = "" }, "run_at"},
		{"custom bad time", func(s *database.Schedule) { s.Frequency = FreqCustom; s.RunAt = "9am" }, "run_at"},
		{"zero topics", func(s *database.Schedule) { s.TopicsPerRun = 0 }, "topics_per_run"},
		{"too many topics", func(s *database.Schedule) { s.TopicsPerRun = 11 }, "topics_per_run"},
		{"zero min length", func(s *database.Schedule) { s.MinLength = 0 }, "min_length"},
		{"inverted lengths", func(s *database.Schedule) { s.MinLength = 6000; s.MaxLength = 3000 }, "max_length"},
		{"equal lengths", func(s *database.Schedule) { s.MinLength = 3000; s.MaxLength = 3000 }, "max_length"},
		{"unknown model", func(s *database.Schedule) { s.Model = "deluxe" }, "model"},
		{"negative images", func(s *database.Schedule) { s.ImageCount = -1 }, "image_count"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := validSchedule()
			c.mutate(s)
			err := Validate(s, prices)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != c.field {
				t.Errorf("expected field %q, got %q", c.field, verr.Field)
			}
		})
	}
}
