package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/prayloop/prayloop/internal/analytics"
	"github.com/prayloop/prayloop/internal/config"
	"github.com/prayloop/prayloop/internal/database"
	"github.com/prayloop/prayloop/internal/pipeline"
	"github.com/prayloop/prayloop/internal/server"
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
	Use:     "prayloop",
	Short:   "Devotional short-video pipeline",
	Long:    "Prayloop generates verse-anchored prayers, assembles them into short videos, and manages a safety-gated publish queue.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// API keys live in the environment; a local .env is optional.
		_ = godotenv.Load()

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
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(processDueCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(unpauseCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(themesCmd)
	rootCmd.AddCommand(versesCmd)
	rootCmd.AddCommand(importStatsCmd)
	rootCmd.AddCommand(reportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("prayloop", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and seed starter themes and verses",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
		} else {
			if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Printf("Created config: %s\n", target)
		}

		cfg, _ = config.Load(target)
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		themes, verses, err := db.SeedStarterContent()
		if err != nil {
			return fmt.Errorf("seeding starter content: %w", err)
		}
		if themes == 0 && verses == 0 {
			fmt.Println("Starter content already seeded.")
		} else {
			fmt.Printf("Seeded %d themes and %d verses.\n", themes, verses)
		}
		fmt.Println("Edit the config to set API key env names, voice, and publishing limits.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
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
		state, err := db.GetSafetyState()
		if err != nil {
			return fmt.Errorf("getting safety state: %w", err)
		}

		fmt.Println("Content:")
		fmt.Printf("  Themes: %d (%d active)\n", stats.Themes, stats.ActiveThemes)
		fmt.Printf("  Verses: %d\n", stats.Verses)
		fmt.Printf("  Units: %d\n", stats.Units)
		for _, status := range []string{
			database.StatusDraft, database.StatusGenerated, database.StatusComposed,
			database.StatusQueued, database.StatusApproved, database.StatusPublished,
			database.StatusFailed,
		} {
			if n := stats.UnitsByStatus[status]; n > 0 {
				fmt.Printf("    %s: %d\n", status, n)
			}
		}
		fmt.Println("\nPublishing:")
		fmt.Printf("  Queue entries: %d\n", stats.QueueEntries)
		fmt.Printf("  Published: %d\n", stats.Published)
		fmt.Printf("  Approvals to date: %d\n", state.ApprovedPostCount)
		fmt.Printf("  Consecutive failures: %d\n", state.ConsecutiveFailures)
		if state.AutoPaused {
			fmt.Println("  AUTO-PAUSED: run 'prayloop unpause' to resume")
		}
		fmt.Printf("\nAnalytics rows: %d\n", stats.PlatformPosts)
		return nil
	},
}

// --- content commands ---

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Select the next theme and verse and generate a prayer",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		unitID, err := pipe.Generate(context.Background())
		if err != nil {
			return err
		}

		unit, err := db.GetUnit(unitID)
		if err != nil {
			return err
		}
		fmt.Printf("Created unit %d (%d words).\n", unitID, unit.WordCount)
		if unit.AIModel == nil {
			fmt.Println("Used the template fallback prayer.")
		}
		fmt.Printf("Next: prayloop compose %d\n", unitID)
		return nil
	},
}

var composeCmd = &cobra.Command{
	Use:   "compose [unit-id]",
	Short: "Synthesize narration, fetch footage, and render the video for a unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unitID, err := parseID(args[0], "unit")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		if err := pipe.Compose(context.Background(), unitID); err != nil {
			return err
		}

		unit, err := db.GetUnit(unitID)
		if err != nil {
			return err
		}
		fmt.Printf("Composed unit %d: %s (%.1fs)\n", unitID, *unit.VideoPath, unit.VideoDuration)
		fmt.Printf("Next: prayloop enqueue %d\n", unitID)
		return nil
	},
}

// --- queue commands ---

var enqueueAt string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [unit-id]",
	Short: "Move a composed unit into the publish queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unitID, err := parseID(args[0], "unit")
		if err != nil {
			return err
		}

		var at *time.Time
		if enqueueAt != "" {
			t, err := parseSchedule(enqueueAt)
			if err != nil {
				return err
			}
			at = &t
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entryID, err := pipeline.New(cfg, db).Enqueue(unitID, at)
		if err != nil {
			return err
		}
		fmt.Printf("Unit %d queued as entry %d.\n", unitID, entryID)
		fmt.Printf("Next: prayloop approve %d\n", entryID)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueAt, "at", "", "Schedule time (RFC3339 or '2006-01-02 15:04', local)")
}

var approveCmd = &cobra.Command{
	Use:   "approve [entry-id]",
	Short: "Approve a queued entry for publication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entryID, err := parseID(args[0], "entry")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := pipeline.New(cfg, db).Queue().Approve(entryID); err != nil {
			return err
		}
		fmt.Printf("Entry %d approved. It will publish on the next 'prayloop process-due'.\n", entryID)
		return nil
	},
}

var processDryRun bool

var processDueCmd = &cobra.Command{
	Use:   "process-due",
	Short: "Publish due queue entries, honoring the safety gate",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		outcomes, err := pipeline.New(cfg, db).Queue().ProcessDue(context.Background(), processDryRun)
		if err != nil {
			return err
		}

		for _, o := range outcomes {
			switch {
			case o.EntryID == 0:
				fmt.Printf("%s: %s\n", o.Status, o.Reason)
			case o.PublishID != "":
				fmt.Printf("entry %d (unit %d): %s as %s\n", o.EntryID, o.UnitID, o.Status, o.PublishID)
			default:
				fmt.Printf("entry %d (unit %d): %s %s\n", o.EntryID, o.UnitID, o.Status, o.Reason)
			}
		}
		return nil
	},
}

func init() {
	processDueCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "Report what would be published without publishing")
}

var retryCmd = &cobra.Command{
	Use:   "retry [entry-id]",
	Short: "Re-queue a failed entry (allowed once per unit)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entryID, err := parseID(args[0], "entry")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := pipeline.New(cfg, db).Queue().RetryFailed(entryID); err != nil {
			return err
		}
		fmt.Printf("Entry %d re-queued. Approve it again to publish.\n", entryID)
		return nil
	},
}

var unpauseCmd = &cobra.Command{
	Use:   "unpause",
	Short: "Clear the auto-pause after investigating publish failures",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := pipeline.New(cfg, db).Queue().Unpause(); err != nil {
			return err
		}
		fmt.Println("Auto-pause cleared; failure streak reset.")
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List publish queue entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		items, err := pipeline.New(cfg, db).Queue().List()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		for _, item := range items {
			sched := "asap"
			if item.Entry.ScheduledAt != nil {
				sched = *item.Entry.ScheduledAt
			}
			line := fmt.Sprintf("  [%d] unit %d  %-9s  scheduled %s",
				item.Entry.ID, item.Unit.ID, item.Unit.Status, sched)
			if item.Entry.PublishedAt != nil {
				line += "  published " + *item.Entry.PublishedAt
			}
			if item.Unit.ErrorMessage != nil {
				line += "  error: " + *item.Unit.ErrorMessage
			}
			fmt.Println(line)
		}
		return nil
	},
}

// --- run command ---

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline for one unit: generate -> compose -> enqueue",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)

		var result *pipeline.Result
		if runDryRun {
			result = pipe.DryRun()
		} else {
			result = pipe.Run(context.Background())
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/3: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if !runDryRun && len(result.Steps) == 3 && result.Steps[2].Err == nil {
			fmt.Println("\nUnit queued. Review it with 'prayloop serve' and approve when ready.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Show what would be done without executing")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local review dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting dashboard at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, pipeline.New(cfg, db).Queue(), port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- themes command ---

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "Manage prayer themes",
}

var themesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all themes with usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		themes, err := db.GetAllThemes()
		if err != nil {
			return err
		}
		if len(themes) == 0 {
			fmt.Println("No themes found. Run 'prayloop init' to seed starter content.")
			return nil
		}

		for _, th := range themes {
			icon := " "
			if th.IsActive {
				icon = "*"
			}
			lastUsed := "never"
			if th.LastUsedAt != nil {
				lastUsed = *th.LastUsedAt
			}
			fmt.Printf("  [%d] %s %-18s tone=%-12s last used %s\n", th.ID, icon, th.Slug, th.Tone, lastUsed)
		}
		return nil
	},
}

var themesToggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Toggle a theme's active state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "theme")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		theme, err := db.GetTheme(id)
		if err != nil {
			return err
		}
		if theme == nil {
			return fmt.Errorf("theme %d not found", id)
		}
		if err := db.ToggleTheme(id); err != nil {
			return err
		}
		newState := "disabled"
		if !theme.IsActive {
			newState = "enabled"
		}
		fmt.Printf("Theme [%d] %s: %s\n", id, theme.Slug, newState)
		return nil
	},
}

var (
	themeTone        string
	themeDescription string
	themeHook        string
	themeKeywords    []string
)

var themesAddCmd = &cobra.Command{
	Use:   "add [slug] [name]",
	Short: "Add a new prayer theme",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var desc, hook *string
		if themeDescription != "" {
			desc = &themeDescription
		}
		if themeHook != "" {
			hook = &themeHook
		}
		id, err := db.InsertTheme(args[0], args[1], themeTone, desc, hook, themeKeywords)
		if err != nil {
			return err
		}
		if id == 0 {
			return fmt.Errorf("theme %q already exists", args[0])
		}
		fmt.Printf("Added theme [%d] %s.\n", id, args[0])
		return nil
	},
}

func init() {
	themesAddCmd.Flags().StringVar(&themeTone, "tone", "comforting", "Prayer tone for the theme")
	themesAddCmd.Flags().StringVar(&themeDescription, "description", "", "Theme description")
	themesAddCmd.Flags().StringVar(&themeHook, "hook", "", "Opening hook question")
	themesAddCmd.Flags().StringSliceVar(&themeKeywords, "keywords", nil, "Footage search keywords")

	themesCmd.AddCommand(themesListCmd)
	themesCmd.AddCommand(themesAddCmd)
	themesCmd.AddCommand(themesToggleCmd)
}

// --- verses command ---

var versesCmd = &cobra.Command{
	Use:   "verses",
	Short: "Manage verses",
}

var versesListTheme string

var versesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List verses, optionally for one theme",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		themes, err := db.GetAllThemes()
		if err != nil {
			return err
		}
		for _, th := range themes {
			if versesListTheme != "" && th.Slug != versesListTheme {
				continue
			}
			verses, err := db.GetVersesForTheme(th.ID)
			if err != nil {
				return err
			}
			if len(verses) == 0 {
				continue
			}
			fmt.Printf("%s:\n", th.Slug)
			for _, v := range verses {
				fmt.Printf("  [%d] %s (%s), used %d times\n", v.ID, v.Reference, v.Translation, v.UsedCount)
			}
		}
		return nil
	},
}

var (
	verseTheme       string
	verseTranslation string
)

var versesAddCmd = &cobra.Command{
	Use:   "add [reference] [text]",
	Short: "Add a verse to a theme (text is stored verbatim)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		theme, err := db.GetThemeBySlug(verseTheme)
		if err != nil {
			return err
		}
		if theme == nil {
			return fmt.Errorf("theme %q not found", verseTheme)
		}

		id, err := db.InsertVerse(args[0], args[1], verseTranslation, theme.ID)
		if err != nil {
			return err
		}
		if id == 0 {
			return fmt.Errorf("verse %s (%s) already exists", args[0], verseTranslation)
		}
		fmt.Printf("Added verse [%d] %s to theme %s.\n", id, args[0], verseTheme)
		return nil
	},
}

func init() {
	versesListCmd.Flags().StringVar(&versesListTheme, "theme", "", "Only show verses for this theme slug")
	versesAddCmd.Flags().StringVar(&verseTheme, "theme", "", "Theme slug the verse belongs to")
	versesAddCmd.Flags().StringVar(&verseTranslation, "translation", "KJV", "Bible translation of the text")
	versesAddCmd.MarkFlagRequired("theme")

	versesCmd.AddCommand(versesListCmd)
	versesCmd.AddCommand(versesAddCmd)
}

// --- import-stats command ---

var importStatsCmd = &cobra.Command{
	Use:   "import-stats [csv-path]",
	Short: "Import a platform analytics CSV export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := analytics.NewImporter(db).ImportCSV(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported/upserted: %d\n", result.Imported)
		if result.Skipped > 0 {
			fmt.Printf("Skipped (no post id): %d\n", result.Skipped)
		}
		return nil
	},
}

var reportTop int

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize imported analytics: totals and top posts by views",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		report, err := analytics.NewImporter(db).Report(reportTop)
		if err != nil {
			return err
		}

		fmt.Printf("Total posts in DB: %d\n", report.TotalPosts)
		if len(report.Top) == 0 {
			fmt.Println("No analytics imported. Run 'prayloop import-stats <csv>' first.")
			return nil
		}
		fmt.Printf("\nTop %d posts by views:\n", len(report.Top))
		for _, s := range report.Top {
			caption := ""
			if s.Post.Caption != nil {
				caption = *s.Post.Caption
				if len(caption) > 60 {
					caption = caption[:60] + "..."
				}
			}
			fmt.Printf("  %-20s views %-8d eng %-6d rate %5.2f%%  %s\n",
				s.Post.PostID, s.Views, s.Engagement, s.EngagementRate*100, caption)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportTop, "top", 5, "How many top posts to show")
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s ID: %s", what, arg)
	}
	return id, nil
}

// parseSchedule accepts RFC3339 or a local "2006-01-02 15:04".
func parseSchedule(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid schedule time %q (use RFC3339 or '2006-01-02 15:04')", s)
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(filepath.Join(dataDir, "prayloop.db"))
}
