package importer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-importer/internal/metrics"
	"github.com/JakeFAU/catalog-importer/internal/store"
	"github.com/JakeFAU/catalog-importer/internal/tmdb"
)

// maxDiscoverPage is the deepest page the discovery endpoint serves.
const maxDiscoverPage = 500

// importPair pages one (year, language) pair from progress.NextPage() until the
// listing is exhausted, saving the cursor after every completed page.
func (im *Importer) importPair(
	ctx context.Context,
	logger *zap.Logger,
	runID string,
	progress store.PairProgress,
	summary *Summary,
) error {
	year, language := progress.Year, progress.Language
	logger = logger.With(zap.Int("year", year), zap.String("language", language))
	if progress.LastPage > 0 {
		logger.Info("resuming pair", zap.Int("page", progress.NextPage()))
	}

	for page := progress.NextPage(); ; page++ {
		resp, failed, err := im.fetchPage(ctx, logger, year, language, page)
		if err != nil {
			return err
		}
		if failed {
			summary.PairsIncomplete++
			return nil
		}
		if len(resp.Results) == 0 {
			break
		}
		summary.Pages++
		metrics.ObservePageFetched(language)

		for _, result := range resp.Results {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := im.processItem(ctx, logger, runID, year, language, result, summary); err != nil {
				return err
			}
		}

		progress.LastPage = page
		progress.TotalPages = resp.TotalPages
		progress.RunID = runID
		progress.UpdatedAt = im.now().UTC()
		if page >= min(resp.TotalPages, maxDiscoverPage) {
			break
		}
		if err := im.cursor.Save(ctx, progress); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
	}

	progress.Done = true
	progress.RunID = runID
	progress.UpdatedAt = im.now().UTC()
	if err := im.cursor.Save(ctx, progress); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	logger.Info("pair complete", zap.Int("pages", progress.LastPage), zap.Int("total_pages", progress.TotalPages))
	return nil
}

// fetchPage returns one discovery page. A non-terminal failure is logged and
// reported as failed so the pair stops without being marked done; rate limit
// exhaustion and cancellation are returned as errors.
func (im *Importer) fetchPage(
	ctx context.Context,
	logger *zap.Logger,
	year int,
	language string,
	page int,
) (tmdb.DiscoverResponse, bool, error) {
	q := tmdb.DiscoverQuery{Year: year, Language: language, Page: page}
	if im.cfg.RegionFor != nil {
		q.Region = im.cfg.RegionFor(language)
	}
	resp, err := im.api.Discover(ctx, q)
	if err == nil {
		return resp, false, nil
	}
	if terminal(ctx, err) {
		return tmdb.DiscoverResponse{}, false, fmt.Errorf("discover %d/%s page %d: %w", year, language, page, err)
	}
	logger.Warn("discover page failed, ending pair", zap.Int("page", page), zap.Error(err))
	return tmdb.DiscoverResponse{}, true, nil
}

func terminal(ctx context.Context, err error) bool {
	return tmdb.IsRateLimited(err) || ctx.Err() != nil
}
