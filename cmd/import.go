package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-importer/internal/app"
	"github.com/JakeFAU/catalog-importer/internal/config"
	"github.com/JakeFAU/catalog-importer/internal/importer"
	"github.com/JakeFAU/catalog-importer/internal/metrics"
)

const metricsShutdownTimeout = 5 * time.Second

type importOptions struct {
	fromYear  int
	toYear    int
	languages []string
	fresh     bool
	dryRun    bool
}

func newImportCmd(state *rootState) *cobra.Command {
	opts := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import movies for every configured year and language",
		Long: `Pages through the discovery listing for each (year, language) pair,
enriches every result with details and credits and upserts it into the
destination table. Pairs completed by an earlier run are skipped unless
--fresh is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := state.cfg
			flags := cmd.Flags()
			if flags.Changed("from-year") {
				cfg.Import.FromYear = opts.fromYear
			}
			if flags.Changed("to-year") {
				cfg.Import.ToYear = opts.toYear
			}
			if flags.Changed("languages") {
				cfg.Import.Languages = config.NormalizeLanguages(opts.languages)
			}
			return runImport(cmd.Context(), cmd.OutOrStdout(), cfg, state.logger, opts)
		},
	}

	cmd.Flags().IntVar(&opts.fromYear, "from-year", 0, "first release year (inclusive)")
	cmd.Flags().IntVar(&opts.toYear, "to-year", 0, "last release year (inclusive)")
	cmd.Flags().StringSliceVar(&opts.languages, "languages", nil, "original languages, e.g. en,hi,ta")
	cmd.Flags().BoolVar(&opts.fresh, "fresh", false, "clear the checkpoint before importing")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "fetch and transform but keep rows in memory only")
	return cmd
}

func runImport(ctx context.Context, out io.Writer, cfg config.Config, logger *zap.Logger, opts *importOptions) error {
	if opts.dryRun {
		cfg.DB.Driver = config.DriverMemory
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := newApp(ctx, cfg, logger, app.Options{DryRun: opts.dryRun})
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer a.Close()

	if opts.fresh {
		if err := a.Cursor().Reset(ctx); err != nil {
			return fmt.Errorf("reset checkpoint: %w", err)
		}
		logger.Info("checkpoint cleared; importing from scratch")
	}

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, logger)
		defer stop()
	}

	im, err := a.NewImporter(a.ImporterConfig())
	if err != nil {
		return fmt.Errorf("build importer: %w", err)
	}

	summary, runErr := im.Run(ctx)
	logSummary(logger, summary)
	switch {
	case errors.Is(runErr, context.Canceled):
		logger.Warn("import interrupted; run again to resume from the checkpoint")
		return nil
	case runErr != nil:
		return fmt.Errorf("import: %w", runErr)
	}

	logger.Info("import complete")
	fmt.Fprintf(out, "Import complete: %d items upserted across %d pairs (run %s).\n",
		summary.Items, summary.Pairs, summary.RunID)
	return nil
}

func logSummary(logger *zap.Logger, s importer.Summary) {
	logger.Info("import summary",
		zap.String("run_id", s.RunID),
		zap.Int("pairs", s.Pairs),
		zap.Int("pairs_skipped", s.PairsSkipped),
		zap.Int("pairs_incomplete", s.PairsIncomplete),
		zap.Int("pages", s.Pages),
		zap.Int("items", s.Items),
		zap.Int("items_skipped", s.ItemsSkipped),
		zap.Duration("duration", s.Duration),
	)
}

// serveMetrics exposes /metrics and /healthz until the returned stop func runs.
func serveMetrics(addr string, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}
