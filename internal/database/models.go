package database

// Topic is a candidate subject for generation with ranking metadata.
type Topic struct {
	ID            int64
	Text          string
	Category      string
	DemandVolume  int
	Competition   int     // 0-100, higher means more crowded
	UnitValue     float64 // estimated monetary value per use
	TrendScore    int     // 0-100
	PriorityScore float64 // 0-100, recomputed on use
	UseCount      int
	LastUsedAt    *string
	Status        string // "active" or "inactive"
	DiscoveredAt  *string
}

// Topic lifecycle states.
const (
	TopicActive   = "active"
	TopicInactive = "inactive"
)

// Schedule is a recurring unit of generation work.
type Schedule struct {
	ID           int64
	Name         string
	Category     string
	Frequency    string // once, hourly, twice-daily, daily, weekly, monthly, custom
	RunAt        string // HH:MM, only for custom frequency
	NextRunAt    string
	LastRunAt    *string
	TopicsPerRun int
	MinLength    int
	MaxLength    int
	Model        string
	ImageCount   int
	Status       string // active, paused, completed
	RunCount     int
	SuccessCount int
	FailureCount int
	CreatedAt    *string
}

// Schedule lifecycle states.
const (
	ScheduleActive    = "active"
	SchedulePaused    = "paused"
	ScheduleCompleted = "completed"
)

// CostEvent is an immutable record of one billed external-service call.
type CostEvent struct {
	ID          int64
	Kind        string // "content" or "image"
	InputUnits  int
	OutputUnits int
	InputPrice  float64 // price per 1k units at time of call
	OutputPrice float64
	Cost        float64
	ArtifactID  *string
	CreatedAt   *string
}

// Artifact is a finished long-form text output.
type Artifact struct {
	ID         string // uuid
	ScheduleID *int64
	Topic      string
	Title      string
	Body       string
	Length     int // words
	Model      string
	Cost       float64
	CreatedAt  *string
}

// RunReport summarizes one schedule execution.
type RunReport struct {
	ID         int64
	ScheduleID int64
	Succeeded  int
	Failed     int
	Skipped    int
	Cost       float64
	StartedAt  *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalTopics     int
	ActiveTopics    int
	TotalSchedules  int
	ActiveSchedules int
	Artifacts       int
	CostEvents      int
	TotalCost       float64
}
