package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/feichai0017/review-automation/api/handlers"
	"github.com/feichai0017/review-automation/api/routes"
	"github.com/feichai0017/review-automation/config"
	"github.com/feichai0017/review-automation/internal/agent/navigator"
	"github.com/feichai0017/review-automation/internal/browser"
	"github.com/feichai0017/review-automation/internal/service/review"
	"github.com/feichai0017/review-automation/internal/utils/validator"
	"github.com/feichai0017/review-automation/pkg/claim"
	"github.com/feichai0017/review-automation/pkg/dataset"
	"github.com/feichai0017/review-automation/pkg/logger"
	"github.com/feichai0017/review-automation/pkg/notify"
	"github.com/feichai0017/review-automation/pkg/report"
	"github.com/feichai0017/review-automation/pkg/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "reviewer",
	Short: "Run appraisal reports through the review application",
	Long: `Uploads every new PDF of the document directory to the review application,
records the validation messages of each section in the shared report and
emails a summary when the batch is done.`,
	SilenceUsage: true,
	RunE:         runBatch,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "config file (default ./reviewer.yaml)")
	f.String("pdf-dir", "pdfs", "directory holding the documents to review")
	f.String("report-dir", ".", "directory of the shared review report")
	f.String("log-level", "info", "log level")

	rf := rootCmd.Flags()
	rf.String("dataset-dir", "datasets", "directory of the JSONL datasets")
	rf.String("log-dir", "logs", "directory of the per-run log files")
	rf.String("endpoint", "http://127.0.0.1:8000/login/", "login URL of the review application")
	rf.Int("workers", 4, "number of documents reviewed in parallel")
	rf.Duration("timeout", 1200*time.Second, "wall-clock budget of one attempt")
	rf.Int("max-retries", 1, "retries after a timed out attempt")
	rf.Bool("headless", false, "run the browser without a window")
	rf.Bool("preflight", false, "validate documents before uploading them")
	rf.String("status-addr", "", "listen address of the status API, empty to disable")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(
		logger.WithLevel(cfg.LogLevel),
		logger.WithOutputPaths([]string{"stdout", logger.RunLogPath(cfg.LogDir, time.Now())}),
	)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reports := report.NewWriter(cfg.ReportPath(), log.Named("report"))
	samples := dataset.NewWriter(cfg.DatasetDir, log.Named("dataset"))
	nav := navigator.NewNavigator(cfg.Sections, reports, samples, log.Named("navigator"))
	launcher := browser.NewLauncher(cfg.Review.Headless, cfg.Review.ChromePath, log.Named("browser"))

	task := review.NewTask(&review.TaskConfig{
		SourceDir: cfg.PDFDir,
		Endpoint:  cfg.Review.Endpoint,
		Credentials: navigator.Credentials{
			Username: cfg.Review.Username,
			Password: cfg.Review.Password,
		},
		Timeout:    cfg.Review.TaskTimeout,
		MaxRetries: cfg.Review.MaxRetries,
	}, launcher, nav, log.Named("task"))
	if cfg.Review.Preflight {
		vcfg := validator.DefaultConfig()
		vcfg.MaxPageCount = cfg.Review.MaxPages
		task.WithPreflight(validator.NewDocumentValidator(log.Named("preflight"), vcfg))
	}

	opts := []review.BatchOption{
		review.WithNotifier(notify.New(cfg.Email, log.Named("notify"))),
	}

	if cfg.Claims.Enabled {
		claims, err := claim.NewRedis(ctx, &claim.Config{
			Addr:     cfg.Claims.Addr,
			Password: cfg.Claims.Password,
			DB:       cfg.Claims.DB,
			TTL:      cfg.Claims.TTL,
		}, log.Named("claim"))
		if err != nil {
			log.Warn("Claims unavailable, running without them", logger.Error(err))
		} else {
			defer claims.Close()
			opts = append(opts, review.WithClaimer(claims))
		}
	}

	if cfg.Archive.Type != "" {
		store, err := storage.NewStorage(ctx, cfg.Archive, log.Named("storage"))
		if err != nil {
			log.Warn("Archive storage unavailable, runs will not be archived", logger.Error(err))
		} else {
			opts = append(opts, review.WithArchiver(
				review.NewArchiver(store, cfg.Archive.Prefix, cfg.Archive.Retention, log.Named("archive"))))
		}
	}

	tracker := review.NewTracker()
	opts = append(opts, review.WithTracker(tracker))

	if cfg.Status.Addr != "" {
		srv := startStatusServer(cfg.Status.Addr, tracker, reports, log.Named("status"))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("Status server forced to shutdown", logger.Error(err))
			}
		}()
	}

	batch := review.NewBatch(&review.BatchConfig{
		SourceDir: cfg.PDFDir,
		Workers:   cfg.Review.Workers,
	}, task, reports, log, opts...)

	summary, err := batch.Run(ctx)
	if err != nil {
		if errors.Is(err, review.ErrSourceDirMissing) {
			log.Error("Please create the directory and add PDF files to it", logger.String("dir", cfg.PDFDir))
		}
		return err
	}
	if summary.Interrupted {
		log.Warn("Batch interrupted", logger.Error(summary.Cause))
	}
	return nil
}

func startStatusServer(addr string, tracker *review.Tracker, reports *report.Writer, log logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, handlers.NewHandlers(tracker, reports, log))

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}
	go func() {
		log.Info("Status server starting", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Status server error", logger.Error(err))
		}
	}()
	return srv
}
