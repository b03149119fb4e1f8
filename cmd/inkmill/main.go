package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkmill/inkmill/internal/budget"
	"github.com/inkmill/inkmill/internal/config"
	"github.com/inkmill/inkmill/internal/database"
	"github.com/inkmill/inkmill/internal/discover"
	"github.com/inkmill/inkmill/internal/generate"
	"github.com/inkmill/inkmill/internal/priority"
	"github.com/inkmill/inkmill/internal/schedule"
	"github.com/inkmill/inkmill/internal/server"
	"github.com/inkmill/inkmill/internal/textgen"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "inkmill",
	Short:   "Budget-aware scheduled long-form generation",
	Long:    "Inkmill ranks candidate topics, runs recurring schedules, and generates long-form articles within daily and monthly spend ceilings.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(schedulesCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(budgetCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("inkmill", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/inkmill/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the service endpoint, models, feeds, and budget ceilings.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and budget status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Topics:")
		fmt.Printf("  Total: %d\n", stats.TotalTopics)
		fmt.Printf("  Active: %d\n", stats.ActiveTopics)
		fmt.Println("\nSchedules:")
		fmt.Printf("  Total: %d\n", stats.TotalSchedules)
		fmt.Printf("  Active: %d\n", stats.ActiveSchedules)
		fmt.Println("\nOutput:")
		fmt.Printf("  Artifacts: %d\n", stats.Artifacts)
		fmt.Printf("  Cost events: %d\n", stats.CostEvents)
		fmt.Printf("  Total spend: $%.4f\n", stats.TotalCost)

		governor := budget.NewGovernor(db, cfg.Budget.DailyLimit, cfg.Budget.MonthlyLimit)
		usage, err := governor.Usage()
		if err != nil {
			return fmt.Errorf("reading budget usage: %w", err)
		}
		fmt.Println("\nBudget:")
		for _, u := range usage {
			printUsage(u)
		}
		return nil
	},
}

// --- topics command ---

var (
	topicCategory    string
	topicDemand      int
	topicCompetition int
	topicTrend       int
	topicValue       float64
	topicsAll        bool
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Manage candidate topics",
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List topics ranked by priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		engine := priority.NewEngine(db)
		if _, err := engine.RescoreAll(); err != nil {
			return fmt.Errorf("rescoring topics: %w", err)
		}

		var topics []database.Topic
		if topicsAll {
			topics, err = db.AllTopics()
		} else {
			topics, err = db.LoadActiveTopics(topicCategory)
		}
		if err != nil {
			return err
		}

		if len(topics) == 0 {
			fmt.Println("No topics. Add one with: inkmill topics add")
			return nil
		}

		fmt.Printf("%-5s %-6s %-9s %-5s %-12s %s\n", "ID", "Score", "Status", "Uses", "Category", "Topic")
		for _, t := range topics {
			fmt.Printf("%-5d %-6.1f %-9s %-5d %-12s %s\n",
				t.ID, t.PriorityScore, t.Status, t.UseCount, t.Category, t.Text)
		}
		return nil
	},
}

var topicsAddCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add a candidate topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.InsertTopic(args[0], topicCategory, topicDemand, topicCompetition, topicTrend, topicValue)
		if err != nil {
			return err
		}
		if id == 0 {
			fmt.Printf("Topic already exists: %s\n", args[0])
			return nil
		}

		engine := priority.NewEngine(db)
		topic, err := db.GetTopicByID(id)
		if err != nil {
			return err
		}
		score := engine.Score(topic)
		if err := db.UpdateTopicScore(id, score); err != nil {
			return err
		}

		fmt.Printf("Added topic [%d] (score %.1f): %s\n", id, score, args[0])
		return nil
	},
}

var topicsDeactivateCmd = &cobra.Command{
	Use:   "deactivate [id]",
	Short: "Remove a topic from the selection pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTopicStatus(args[0], database.TopicInactive)
	},
}

var topicsActivateCmd = &cobra.Command{
	Use:   "activate [id]",
	Short: "Return a topic to the selection pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTopicStatus(args[0], database.TopicActive)
	},
}

func setTopicStatus(rawID, status string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid topic ID: %s", rawID)
	}
	topic, err := db.GetTopicByID(id)
	if err != nil {
		return err
	}
	if topic == nil {
		return fmt.Errorf("topic %d not found", id)
	}
	if err := db.SetTopicStatus(id, status); err != nil {
		return err
	}
	fmt.Printf("Topic [%d] %s: %s\n", id, status, topic.Text)
	return nil
}

func init() {
	topicsListCmd.Flags().StringVar(&topicCategory, "category", "", "Filter by category")
	topicsListCmd.Flags().BoolVar(&topicsAll, "all", false, "Include inactive topics")
	topicsAddCmd.Flags().StringVar(&topicCategory, "category", "", "Topic category")
	topicsAddCmd.Flags().IntVar(&topicDemand, "demand", 10, "Demand volume (search volume style count)")
	topicsAddCmd.Flags().IntVar(&topicCompetition, "competition", 50, "Competition 0-100")
	topicsAddCmd.Flags().IntVar(&topicTrend, "trend", 50, "Trend score 0-100")
	topicsAddCmd.Flags().Float64Var(&topicValue, "value", 0, "Estimated value per use")

	topicsCmd.AddCommand(topicsListCmd)
	topicsCmd.AddCommand(topicsAddCmd)
	topicsCmd.AddCommand(topicsDeactivateCmd)
	topicsCmd.AddCommand(topicsActivateCmd)
}

// --- schedules command ---

var (
	schedCategory  string
	schedFrequency string
	schedRunAt     string
	schedTopics    int
	schedMinLen    int
	schedMaxLen    int
	schedModel     string
)

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Manage recurring generation schedules",
}

var schedulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		schedules, err := db.AllSchedules()
		if err != nil {
			return err
		}
		if len(schedules) == 0 {
			fmt.Println("No schedules. Add one with: inkmill schedules add")
			return nil
		}

		fmt.Printf("%-5s %-10s %-12s %-20s %-6s %s\n", "ID", "Status", "Frequency", "Next run", "Runs", "Name")
		for _, s := range schedules {
			fmt.Printf("%-5d %-10s %-12s %-20s %-6d %s\n",
				s.ID, s.Status, s.Frequency, s.NextRunAt, s.RunCount, s.Name)
		}
		return nil
	},
}

var schedulesAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if schedModel == "" {
			schedModel = cfg.Generation.DefaultModel
		}

		s := &database.Schedule{
			Name:         args[0],
			Category:     schedCategory,
			Frequency:    schedFrequency,
			RunAt:        schedRunAt,
			TopicsPerRun: schedTopics,
			MinLength:    schedMinLen,
			MaxLength:    schedMaxLen,
			Model:        schedModel,
		}

		prices := budget.TableFromConfig(cfg.Models)
		if err := schedule.Validate(s, prices); err != nil {
			return err
		}

		first, err := schedule.InitialNextRun(s.Frequency, s.RunAt, time.Now().UTC())
		if err != nil {
			return err
		}
		s.NextRunAt = database.FormatTime(first)

		id, err := db.InsertSchedule(s)
		if err != nil {
			return err
		}
		fmt.Printf("Added schedule [%d] %s (%s, next run %s)\n", id, s.Name, s.Frequency, s.NextRunAt)
		return nil
	},
}

var schedulesPauseCmd = &cobra.Command{
	Use:   "pause [id]",
	Short: "Pause a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleStatus(args[0], database.SchedulePaused)
	},
}

var schedulesResumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "Resume a paused schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleStatus(args[0], database.ScheduleActive)
	},
}

var schedulesDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a schedule and its run history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid schedule ID: %s", args[0])
		}
		s, err := db.GetScheduleByID(id)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("schedule %d not found", id)
		}
		if err := db.DeleteSchedule(id); err != nil {
			return err
		}
		fmt.Printf("Deleted schedule [%d]: %s\n", id, s.Name)
		return nil
	},
}

func setScheduleStatus(rawID, status string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid schedule ID: %s", rawID)
	}
	s, err := db.GetScheduleByID(id)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("schedule %d not found", id)
	}
	if s.Status == database.ScheduleCompleted {
		return fmt.Errorf("schedule %d already completed", id)
	}
	if err := db.SetScheduleStatus(id, status); err != nil {
		return err
	}
	fmt.Printf("Schedule [%d] %s: %s\n", id, status, s.Name)
	return nil
}

func init() {
	schedulesAddCmd.Flags().StringVar(&schedCategory, "category", "", "Topic category to draw from")
	schedulesAddCmd.Flags().StringVar(&schedFrequency, "frequency", "daily", "once, hourly, twice-daily, daily, weekly, monthly, or custom")
	schedulesAddCmd.Flags().StringVar(&schedRunAt, "at", "", "Daily run time HH:MM (custom frequency only)")
	schedulesAddCmd.Flags().IntVar(&schedTopics, "topics", 1, "Topics per run (1-10)")
	schedulesAddCmd.Flags().IntVar(&schedMinLen, "min-length", 3000, "Minimum words per artifact")
	schedulesAddCmd.Flags().IntVar(&schedMaxLen, "max-length", 6000, "Maximum words per artifact")
	schedulesAddCmd.Flags().StringVar(&schedModel, "model", "", "Model name from the config price table")

	schedulesCmd.AddCommand(schedulesListCmd)
	schedulesCmd.AddCommand(schedulesAddCmd)
	schedulesCmd.AddCommand(schedulesPauseCmd)
	schedulesCmd.AddCommand(schedulesResumeCmd)
	schedulesCmd.AddCommand(schedulesDeleteCmd)
}

// --- discover command ---

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Import candidate topics from configured feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Discovery.Feeds) == 0 {
			fmt.Println("No feeds configured. Add discovery feeds to the config file.")
			return nil
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		importer := discover.NewImporter(db, cfg.Discovery)
		stats, err := importer.Run(cmd.Context())
		if err != nil {
			return err
		}

		if _, err := priority.NewEngine(db).RescoreAll(); err != nil {
			return fmt.Errorf("rescoring topics: %w", err)
		}

		fmt.Println("Discovery complete:")
		fmt.Printf("  Feeds parsed: %d\n", stats.Feeds)
		fmt.Printf("  Candidates seen: %d\n", stats.Seen)
		fmt.Printf("  Imported: %d\n", stats.Imported)
		fmt.Printf("  Duplicates skipped: %d\n", stats.Duplicates)
		return nil
	},
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all due schedules once",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		engine := buildEngine(db)
		summary, err := engine.Tick(cmd.Context())
		if err != nil {
			return err
		}

		if summary.Ran == 0 {
			fmt.Println("No schedules due.")
			return nil
		}
		fmt.Printf("Ran %d schedule(s): %d succeeded, %d failed, %d skipped, $%.4f spent\n",
			summary.Ran, summary.Succeeded, summary.Failed, summary.Skipped, summary.Cost)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the schedule engine and the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine := buildEngine(db)
		go func() {
			if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("engine stopped: %v", err)
			}
		}()

		governor := budget.NewGovernor(db, cfg.Budget.DailyLimit, cfg.Budget.MonthlyLimit)
		fmt.Printf("Starting server at http://localhost:%d\n", servePort)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, governor, servePort)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- budget command ---

var purgeDays int

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show budget usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		governor := budget.NewGovernor(db, cfg.Budget.DailyLimit, cfg.Budget.MonthlyLimit)
		usage, err := governor.Usage()
		if err != nil {
			return err
		}
		for _, u := range usage {
			printUsage(u)
		}

		events, err := db.RecentCostEvents(10)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			fmt.Println("\nRecent cost events:")
			for _, e := range events {
				created := ""
				if e.CreatedAt != nil {
					created = *e.CreatedAt
				}
				fmt.Printf("  %s  %-8s %6d in / %6d out  $%.4f\n",
					created, e.Kind, e.InputUnits, e.OutputUnits, e.Cost)
			}
		}
		return nil
	},
}

var budgetPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cost events older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		cutoff := time.Now().UTC().AddDate(0, 0, -purgeDays)
		n, err := db.PurgeCostEvents(database.FormatTime(cutoff))
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d cost events older than %d days\n", n, purgeDays)
		return nil
	},
}

func init() {
	budgetPurgeCmd.Flags().IntVar(&purgeDays, "days", 90, "Retention window in days")
	budgetCmd.AddCommand(budgetPurgeCmd)
}

func printUsage(u budget.UsageReport) {
	if u.Limit <= 0 {
		fmt.Printf("  %-8s $%.4f spent (no ceiling)\n", u.Window, u.Used)
		return
	}
	warn := ""
	if u.Warning {
		warn = "  <- approaching limit"
	}
	fmt.Printf("  %-8s $%.4f of $%.2f (%.1f%%)%s\n", u.Window, u.Used, u.Limit, u.Percent, warn)
}

func buildEngine(db *database.DB) *schedule.Engine {
	prices := budget.TableFromConfig(cfg.Models)
	client := textgen.NewHTTPClient(
		cfg.Service.BaseURL,
		cfg.Service.APIKeyEnv,
		time.Duration(cfg.Service.TimeoutSeconds)*time.Second,
		cfg.Service.RequestsPerMinute,
	)
	governor := budget.NewGovernor(db, cfg.Budget.DailyLimit, cfg.Budget.MonthlyLimit)
	gen := generate.New(client, prices, generate.Options{
		SectionSize:   cfg.Generation.SectionSize,
		SectionPause:  time.Duration(cfg.Generation.SectionPauseSeconds) * time.Second,
		Temperature:   cfg.Generation.Temperature,
		DensityTarget: cfg.Generation.DensityTarget,
		MaxInsertions: cfg.Generation.MaxInsertions,
	})
	return schedule.NewEngine(db, priority.NewEngine(db), governor, gen, prices, schedule.Options{
		Tick:        time.Duration(cfg.Engine.TickSeconds) * time.Second,
		Workers:     cfg.Engine.Workers,
		SectionSize: cfg.Generation.SectionSize,
	})
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "inkmill.db")
	return database.Open(dbPath)
}
