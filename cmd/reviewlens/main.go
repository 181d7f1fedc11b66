package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/ReviewLens/internal/artifact"
	"github.com/TobiSchelling/ReviewLens/internal/config"
	"github.com/TobiSchelling/ReviewLens/internal/database"
	"github.com/TobiSchelling/ReviewLens/internal/logging"
	"github.com/TobiSchelling/ReviewLens/internal/pipeline"
	"github.com/TobiSchelling/ReviewLens/internal/reviews"
	"github.com/TobiSchelling/ReviewLens/internal/server"
)

var version = "dev"

// Process outcomes of analyze and feed that callers match on.
const (
	noProductInDataset = "NO_PRODUCT_IN_DATASET"
	noReviewsFound     = "NO_REVIEWS_FOUND"
)

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
	closeLog   = func() {}
)

// exitError carries a process exit code other than 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func main() {
	err := rootCmd.Execute()
	closeLog()
	if err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "reviewlens",
	Short:        "Review sentiment analysis",
	Long:         "ReviewLens trains a sentiment model on rated product reviews and turns a product's reviews into a recommendation.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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

		logCfg := cfg.Logging
		logCfg.File = cfg.LogFile()
		if verbose {
			logCfg.Level = "debug"
		}
		logger, closeLog, err = logging.New(logCfg)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}
		logger.Debug("config loaded", zap.String("path", path))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("reviewlens", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/reviewlens/",
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
		fmt.Println("Set dataset.csv_path to your reviews export, then run 'reviewlens train'.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus, model and analysis status",
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

		table := newTable("Item", "Value")
		table.Append([]string{"Products", fmt.Sprint(stats.Products)})
		table.Append([]string{"Reviews", fmt.Sprint(stats.Reviews)})
		table.Append([]string{"Rated reviews", fmt.Sprint(stats.RatedReviews)})
		table.Append([]string{"Training runs", fmt.Sprint(stats.TrainingRuns)})
		table.Append([]string{"Analyses", fmt.Sprint(stats.Analyses)})

		modelDir := cfg.ModelDir()
		meta, err := artifact.LoadMetadata(modelDir)
		switch {
		case err == nil:
			table.Append([]string{"Model", modelDir})
			table.Append([]string{"Trained", meta.TrainingDate.Local().Format("2006-01-02 15:04")})
			table.Append([]string{"Features", fmt.Sprint(meta.FeatureCount)})
			table.Append([]string{"Test accuracy", fmt.Sprintf("%.4f", meta.ModelPerformance.TestAccuracy)})
		case errors.Is(err, artifact.ErrArtifactMissing):
			table.Append([]string{"Model", "not trained"})
		default:
			return err
		}
		table.Render()
		return nil
	},
}

// --- import command ---

var importReplace bool

var importCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Import a reviews CSV into the corpus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return importCSV(ctx, db, args[0], importReplace)
	},
}

func init() {
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "Clear the existing corpus first")
}

func importCSV(ctx context.Context, db *database.DB, path string, replace bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	if replace {
		if err := db.ClearReviews(); err != nil {
			return fmt.Errorf("clearing corpus: %w", err)
		}
	}

	res, err := reviews.NewImporter(db, logger).Import(ctx, f)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d of %d rows from %s\n", res.Imported, res.Rows, path)
	fmt.Printf("  Skipped (no text): %d\n", res.Skipped)
	fmt.Printf("  Without rating: %d\n", res.Unrated)
	fmt.Printf("  Products: %d\n", res.Products)
	return nil
}

// --- train command ---

var (
	trainCSV    string
	trainDryRun bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the sentiment model: load -> prepare -> vectorize -> train -> save -> validate",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		csvPath := trainCSV
		if csvPath == "" {
			csvPath = cfg.Dataset.CSVPath
		}
		if csvPath != "" && !trainDryRun {
			if err := importCSV(ctx, db, csvPath, true); err != nil {
				return err
			}
		}

		pipe := pipeline.New(cfg, db, logger)
		var result *pipeline.Result
		if trainDryRun {
			result = pipe.DryRun()
		} else {
			result = pipe.Train(ctx)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if trainDryRun {
			return nil
		}
		if err := result.Err(); err != nil {
			// A failed validation leaves a usable model behind.
			if result.Metrics == nil {
				return err
			}
			logger.Warn("validation failed", zap.Error(err))
		}
		if result.Validation != nil {
			fmt.Println()
			printValidation(result.Validation)
			fmt.Printf("\nValidation results saved to %s\n", result.ValidationPath)
		}
		fmt.Println("\nTraining complete! Run 'reviewlens analyze <product_id>' to analyse a product.")
		return nil
	},
}

func init() {
	trainCmd.Flags().StringVar(&trainCSV, "csv", "", "Import this reviews CSV before training (replaces the corpus)")
	trainCmd.Flags().BoolVar(&trainDryRun, "dry-run", false, "Show what would be done without executing")
}

// --- validate command ---

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the validation cases against the stored model",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		report, path, err := pipeline.New(cfg, db, logger).Validate(ctx)
		if err != nil {
			return err
		}
		printValidation(report)
		fmt.Printf("\nValidation results saved to %s\n", path)
		return nil
	},
}

// --- analyze / feed commands ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <product_id>",
	Short: "Analyse the reviews of a product in the imported corpus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		catalog := reviews.NewCatalog(db, cfg.Catalog.SubstringFallback, logger)
		return runAnalysis(db, catalog, args[0])
	},
}

var feedCmd = &cobra.Command{
	Use:   "feed <url>",
	Short: "Analyse the reviews published in an RSS/Atom feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return runAnalysis(db, reviews.NewFeedSource(logger, reviews.WithPageFetch(15*time.Second)), args[0])
	},
}

// runAnalysis prints the saved document path on success and one of the
// outcome markers with exit code 2 when there was nothing to analyse.
func runAnalysis(db *database.DB, src reviews.Source, productID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := pipeline.New(cfg, db, logger).Analyze(ctx, src, productID)
	switch {
	case errors.Is(err, reviews.ErrNoReviews):
		fmt.Println(noProductInDataset)
		return &exitError{code: 2, err: err}
	case errors.Is(err, pipeline.ErrNothingAnalysed):
		fmt.Println(noReviewsFound)
		return &exitError{code: 2, err: err}
	case err != nil:
		return err
	}

	s := a.Report.Summary
	fmt.Fprintf(os.Stderr, "%s: %s (%s, confidence %.3f, %d reviews)\n",
		a.Report.ProductInfo.Name, s.Recommendation, s.OverallSentiment, s.ConfidenceScore, s.ReviewCounts.Total())
	fmt.Println(a.Path)
	return nil
}

// --- runs command ---

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List past training runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.GetTrainingRuns(runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No training runs yet. Train a model with: reviewlens train")
			return nil
		}

		table := newTable("ID", "Trained", "Samples", "Features", "CV score", "Test accuracy")
		for _, r := range runs {
			table.Append([]string{
				r.ID[:8],
				r.TrainedAt,
				fmt.Sprint(r.TrainingSamples),
				fmt.Sprint(r.FeatureCount),
				fmt.Sprintf("%.4f", r.BestScore),
				fmt.Sprintf("%.4f", r.TestAccuracy),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "Number of runs to show")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, cfg.ModelDir(), port, logger)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DBPath(), logger)
}
