// Package importer walks the catalog API year by year and language by
// language, enriching each discovered movie and upserting it into the
// destination table.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-importer/internal/catalog"
	"github.com/JakeFAU/catalog-importer/internal/database"
	"github.com/JakeFAU/catalog-importer/internal/storage"
	"github.com/JakeFAU/catalog-importer/internal/store"
	"github.com/JakeFAU/catalog-importer/internal/tmdb"
)

// CatalogAPI is the subset of the catalog API the importer drives.
type CatalogAPI interface {
	Discover(ctx context.Context, q tmdb.DiscoverQuery) (tmdb.DiscoverResponse, error)
	MovieDetails(ctx context.Context, id int64) (tmdb.MovieDetails, error)
	MovieCredits(ctx context.Context, id int64) (tmdb.Credits, error)
}

// Publisher emits upsert notifications.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) (string, error)
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Config bounds a run.
type Config struct {
	FromYear  int
	ToYear    int
	Languages []string
	// RegionFor maps a language to the discovery region. Nil sends no region.
	RegionFor     func(language string) string
	CastLimit     int
	ImageBaseURL  string
	ArchivePrefix string
}

// Deps are the collaborators of an Importer. API, Repo and IDs are required.
type Deps struct {
	API       CatalogAPI
	Repo      database.Provider
	Cursor    store.CursorRepository
	Archive   storage.Provider
	Publisher Publisher
	IDs       IDGenerator
	Logger    *zap.Logger
	Now       func() time.Time
}

// Summary reports what a run did.
type Summary struct {
	RunID string
	// Pairs counts (year, language) pairs that were paged this run.
	Pairs int
	// PairsSkipped counts pairs already marked done by an earlier run.
	PairsSkipped int
	// PairsIncomplete counts pairs whose pagination stopped on a failed page.
	PairsIncomplete int
	Pages           int
	Items           int
	ItemsSkipped    int
	Duration        time.Duration
}

// Importer runs the sequential ingestion loop.
type Importer struct {
	cfg       Config
	api       CatalogAPI
	repo      database.Provider
	cursor    store.CursorRepository
	archive   storage.Provider
	publisher Publisher
	ids       IDGenerator
	logger    *zap.Logger
	now       func() time.Time
	build     catalog.BuildOptions
}

// New validates the configuration and wires defaults for optional deps.
func New(cfg Config, deps Deps) (*Importer, error) {
	if deps.API == nil {
		return nil, errors.New("catalog api is required")
	}
	if deps.Repo == nil {
		return nil, errors.New("catalog repository is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("id generator is required")
	}
	if cfg.FromYear <= 0 || cfg.ToYear < cfg.FromYear {
		return nil, fmt.Errorf("invalid year range %d..%d", cfg.FromYear, cfg.ToYear)
	}
	if len(cfg.Languages) == 0 {
		return nil, errors.New("at least one language is required")
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "raw"
	}
	im := &Importer{
		cfg:       cfg,
		api:       deps.API,
		repo:      deps.Repo,
		cursor:    deps.Cursor,
		archive:   deps.Archive,
		publisher: deps.Publisher,
		ids:       deps.IDs,
		logger:    deps.Logger,
		now:       deps.Now,
		build:     catalog.BuildOptions{ImageBaseURL: cfg.ImageBaseURL, CastLimit: cfg.CastLimit},
	}
	if im.cursor == nil {
		im.cursor = store.NoOpCursor{}
	}
	if im.logger == nil {
		im.logger = zap.NewNop()
	}
	if im.now == nil {
		im.now = time.Now
	}
	return im, nil
}

// Run walks every (year, language) pair in order. It returns early on rate
// limit exhaustion, storage failure, cursor failure or cancellation; the
// cursor keeps the last completed page of the interrupted pair. A run that
// finishes every pair clears the cursor so the next run imports afresh.
func (im *Importer) Run(ctx context.Context) (summary Summary, err error) {
	start := im.now()
	runID, err := im.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("run id: %w", err)
	}
	summary.RunID = runID
	defer func() {
		summary.Duration = im.now().Sub(start)
	}()

	logger := im.logger.With(zap.String("run_id", runID))
	logger.Info("import run started",
		zap.Int("from_year", im.cfg.FromYear),
		zap.Int("to_year", im.cfg.ToYear),
		zap.Strings("languages", im.cfg.Languages),
	)

	for year := im.cfg.FromYear; year <= im.cfg.ToYear; year++ {
		for _, language := range im.cfg.Languages {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			language = strings.ToLower(language)
			progress, loadErr := im.cursor.Load(ctx, year, language)
			switch {
			case errors.Is(loadErr, store.ErrNotFound):
				progress = store.PairProgress{Year: year, Language: language}
			case loadErr != nil:
				return summary, fmt.Errorf("load cursor: %w", loadErr)
			}
			if progress.Done {
				summary.PairsSkipped++
				logger.Debug("pair already imported", zap.Int("year", year), zap.String("language", language))
				continue
			}
			if err := im.importPair(ctx, logger, runID, progress, &summary); err != nil {
				return summary, err
			}
			summary.Pairs++
		}
	}

	// The cursor only serves resuming an unfinished run.
	if summary.PairsIncomplete == 0 {
		if err := im.cursor.Reset(ctx); err != nil {
			return summary, fmt.Errorf("clear cursor: %w", err)
		}
	}
	logger.Info("import run finished",
		zap.Int("pairs", summary.Pairs),
		zap.Int("pairs_incomplete", summary.PairsIncomplete),
	)
	return summary, nil
}
