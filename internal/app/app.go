// Package app initializes and holds long-lived importer services, acting as a
// dependency injection container. It owns every client it opens and closes
// them in Close.
package app

import (
	"context"
	"fmt"
	"math"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-importer/internal/config"
	"github.com/JakeFAU/catalog-importer/internal/database"
	iduuid "github.com/JakeFAU/catalog-importer/internal/id/uuid"
	"github.com/JakeFAU/catalog-importer/internal/importer"
	"github.com/JakeFAU/catalog-importer/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-importer/internal/policy/retry"
	pubmemory "github.com/JakeFAU/catalog-importer/internal/publisher/memory"
	pspublisher "github.com/JakeFAU/catalog-importer/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-importer/internal/storage"
	"github.com/JakeFAU/catalog-importer/internal/storage/bolt"
	"github.com/JakeFAU/catalog-importer/internal/storage/gcs"
	"github.com/JakeFAU/catalog-importer/internal/storage/local"
	"github.com/JakeFAU/catalog-importer/internal/storage/memory"
	"github.com/JakeFAU/catalog-importer/internal/storage/postgres"
	"github.com/JakeFAU/catalog-importer/internal/store"
	"github.com/JakeFAU/catalog-importer/internal/tmdb"
)

// Options adjust container construction for a single command invocation.
type Options struct {
	// DryRun swaps the configured catalog repository for the in-memory store
	// and skips the checkpoint.
	DryRun bool
}

// App holds the shared services of one importer process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	client    *tmdb.Client
	catalog   database.Provider
	cursor    store.CursorRepository
	archive   storage.Provider
	publisher importer.Publisher

	gcsClient    *gcstorage.Client
	pubsubClient *pubsub.Client
	psPublisher  *pspublisher.Publisher
}

// NewApp builds every service the import command needs and fails fast if a
// critical one cannot be initialized. Partially built services are closed on error.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logger.Info("initializing importer services")

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})
	policy := retry.NewExponentialPolicy(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}, tmdb.IsRateLimited)
	a.client, err = tmdb.New(tmdb.Config{
		BaseURL:         cfg.TMDB.BaseURL,
		APIKey:          cfg.TMDB.APIKey,
		DisplayLanguage: cfg.TMDB.DisplayLanguage,
		Timeout:         cfg.TMDB.Timeout,
	}, limiter, policy, logger.Named("tmdb"))
	if err != nil {
		return nil, fmt.Errorf("init catalog api client: %w", err)
	}

	driver := cfg.DB.Driver
	if opts.DryRun {
		driver = config.DriverMemory
	}
	if a.catalog, err = a.openCatalog(ctx, driver); err != nil {
		return nil, err
	}

	if opts.DryRun {
		// A dry run leaves the real checkpoint untouched.
		a.cursor = store.NoOpCursor{}
	} else if a.cursor, err = NewCursor(cfg.Checkpoint); err != nil {
		return nil, err
	}
	if err = a.openArchive(ctx); err != nil {
		return nil, err
	}
	if err = a.openPublisher(ctx); err != nil {
		return nil, err
	}

	logger.Info("importer services initialized",
		zap.String("db_driver", driver),
		zap.Bool("checkpoint", cfg.Checkpoint.Enabled),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("publish", cfg.Publish.Provider),
	)
	return a, nil
}

// NewCursor opens the checkpoint store, or a no-op cursor when checkpointing is disabled.
func NewCursor(cfg config.CheckpointConfig) (store.CursorRepository, error) {
	if !cfg.Enabled {
		return store.NoOpCursor{}, nil
	}
	cursor, err := bolt.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("init checkpoint store: %w", err)
	}
	return cursor, nil
}

func (a *App) openCatalog(ctx context.Context, driver string) (database.Provider, error) {
	db := a.cfg.DB
	var (
		provider database.Provider
		err      error
	)
	switch driver {
	case config.DriverMySQL:
		a.logger.Info("connecting to mysql", zap.String("host", db.Host), zap.Int("port", db.Port), zap.String("table", db.Table))
		provider, err = database.NewMySQLProvider(ctx, database.MySQLConfig{
			Host:         db.Host,
			Port:         db.Port,
			User:         db.User,
			Password:     db.Password,
			Name:         db.Name,
			TLSCAFile:    db.TLSCAFile,
			Table:        db.Table,
			MaxOpenConns: db.MaxOpenConns,
		})
	case config.DriverPostgres:
		a.logger.Info("connecting to postgres", zap.String("table", db.Table))
		provider, err = postgres.NewCatalogStore(ctx, postgres.Config{
			DSN:      db.DSN,
			Table:    db.Table,
			MaxConns: clampInt32(db.MaxOpenConns),
		})
	case config.DriverSQLite:
		a.logger.Info("opening sqlite", zap.String("dsn", db.DSN), zap.String("table", db.Table))
		provider, err = database.NewSQLiteProvider(ctx, database.SQLiteConfig{
			DSN:          db.DSN,
			Table:        db.Table,
			MaxOpenConns: db.MaxOpenConns,
		})
	case config.DriverMemory:
		a.logger.Info("using in-memory catalog store; rows are discarded on exit")
		provider = memory.NewCatalogStore()
	case config.DriverNoop:
		a.logger.Info("using no-op catalog store; rows are discarded")
		provider = database.NoOpProvider{}
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init catalog repository: %w", err)
	}

	if db.AutoMigrate {
		if m, ok := provider.(database.Migrator); ok {
			if err := m.Migrate(ctx); err != nil {
				_ = provider.Close()
				return nil, fmt.Errorf("migrate catalog table: %w", err)
			}
			a.logger.Info("catalog table ensured", zap.String("table", db.Table))
		}
	}
	return provider, nil
}

func (a *App) openArchive(ctx context.Context) error {
	cfg := a.cfg.Archive
	switch cfg.Provider {
	case "", config.ProviderNone:
		return nil
	case config.ProviderLocal:
		blobs, err := local.New(local.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
		a.archive = blobs
	case config.ProviderGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcs.New(client, gcs.Config{Bucket: cfg.GCS.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs archive: %w", err)
		}
		if err := blobs.CheckBucket(ctx); err != nil {
			return err
		}
		a.archive = blobs
	case config.ProviderMemory:
		a.archive = memory.NewBlobStore()
	default:
		return fmt.Errorf("unknown archive provider %q", cfg.Provider)
	}
	a.logger.Info("archiving raw payloads", zap.String("provider", cfg.Provider), zap.String("prefix", cfg.Prefix))
	return nil
}

func (a *App) openPublisher(ctx context.Context) error {
	cfg := a.cfg.Publish
	switch cfg.Provider {
	case "", config.ProviderNone:
		return nil
	case config.ProviderPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		a.pubsubClient = client
		a.psPublisher = pspublisher.New(client.Topic(cfg.PubSub.TopicID))
		a.publisher = a.psPublisher
	case config.ProviderMemory:
		a.publisher = pubmemory.New()
	default:
		return fmt.Errorf("unknown publish provider %q", cfg.Provider)
	}
	a.logger.Info("publishing upsert notifications", zap.String("provider", cfg.Provider))
	return nil
}

// Catalog returns the destination repository.
func (a *App) Catalog() database.Provider { return a.catalog }

// Cursor returns the checkpoint store.
func (a *App) Cursor() store.CursorRepository { return a.cursor }

// Archive returns the raw payload store, or nil when archiving is off.
func (a *App) Archive() storage.Provider { return a.archive }

// Publisher returns the notification publisher, or nil when publishing is off.
func (a *App) Publisher() importer.Publisher { return a.publisher }

// NewImporter wires an Importer for the given bounds over the container's services.
func (a *App) NewImporter(bounds importer.Config) (*importer.Importer, error) {
	deps := importer.Deps{
		API:    a.client,
		Repo:   a.catalog,
		Cursor: a.cursor,
		IDs:    iduuid.New(),
		Logger: a.logger.Named("importer"),
	}
	if a.archive != nil {
		deps.Archive = a.archive
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	}
	return importer.New(bounds, deps)
}

// ImporterConfig derives importer bounds from configuration.
func (a *App) ImporterConfig() importer.Config {
	imp := a.cfg.Import
	return importer.Config{
		FromYear:      imp.FromYear,
		ToYear:        imp.ToYear,
		Languages:     append([]string(nil), imp.Languages...),
		RegionFor:     imp.RegionFor,
		CastLimit:     imp.CastLimit,
		ImageBaseURL:  a.cfg.TMDB.ImageBaseURL,
		ArchivePrefix: a.cfg.Archive.Prefix,
	}
}

// Close shuts down every service the container opened. It is safe on a
// partially built App.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.psPublisher != nil {
		a.psPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("error closing pubsub client", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("error closing gcs client", zap.Error(err))
		}
	}
	if a.cursor != nil {
		if err := a.cursor.Close(); err != nil {
			a.logger.Warn("error closing checkpoint store", zap.Error(err))
		}
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			a.logger.Warn("error closing catalog repository", zap.Error(err))
		}
	}
}

func clampInt32(v int) int32 {
	switch {
	case v <= 0:
		return 0
	case v > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(v)
	}
}
