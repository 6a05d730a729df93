package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-importer/internal/catalog"
	"github.com/JakeFAU/catalog-importer/internal/hash/sha256"
	"github.com/JakeFAU/catalog-importer/internal/metrics"
	"github.com/JakeFAU/catalog-importer/internal/tmdb"
)

// EventItemUpserted is the event type attached to upsert notifications.
const EventItemUpserted = "catalog.item.upserted"

// Skip reasons recorded in metrics.
const (
	skipLanguageMismatch = "language_mismatch"
	skipYearMismatch     = "year_mismatch"
)

// UpsertEvent is published after every successful upsert.
type UpsertEvent struct {
	RunID       string    `json:"run_id"`
	ContentID   int64     `json:"content_id"`
	Title       string    `json:"title"`
	Language    string    `json:"language"`
	ReleaseYear *int      `json:"release_year"`
	UpsertedAt  time.Time `json:"upserted_at"`
	// RawURI and RawSHA256 are set when the source payloads were archived.
	RawURI    string `json:"raw_uri,omitempty"`
	RawSHA256 string `json:"raw_sha256,omitempty"`
}

// RawRecord is the archived form of the payloads an item was built from.
type RawRecord struct {
	RunID     string             `json:"run_id"`
	FetchedAt time.Time          `json:"fetched_at"`
	Summary   tmdb.MovieSummary  `json:"summary"`
	Details   *tmdb.MovieDetails `json:"details,omitempty"`
	Credits   *tmdb.Credits      `json:"credits,omitempty"`
}

// ArchivePath renders {prefix}/{run_id}/{year}/{lang}/{content_id}.json.
func ArchivePath(prefix, runID string, year int, language string, contentID int64) string {
	return path.Join(prefix, runID, strconv.Itoa(year), language, strconv.FormatInt(contentID, 10)+".json")
}

func (im *Importer) processItem(
	ctx context.Context,
	logger *zap.Logger,
	runID string,
	year int,
	language string,
	result tmdb.MovieSummary,
	summary *Summary,
) error {
	if reason := mismatch(result, year, language); reason != "" {
		summary.ItemsSkipped++
		metrics.ObserveItemSkipped(reason)
		logger.Debug("skipping result outside pair",
			zap.Int64("content_id", result.ID),
			zap.String("reason", reason),
			zap.String("original_language", result.OriginalLanguage),
			zap.String("release_date", result.ReleaseDate),
		)
		return nil
	}

	details, credits, err := im.enrich(ctx, logger, result.ID)
	if err != nil {
		return err
	}

	item := catalog.Build(result, derefOr(details), derefOr(credits), im.build)
	if err := im.repo.UpsertItem(ctx, item); err != nil {
		return fmt.Errorf("store content_id %d: %w", item.ContentID, err)
	}
	summary.Items++
	metrics.ObserveItemUpserted(language)
	logger.Debug("item upserted", zap.Int64("content_id", item.ContentID), zap.String("title", item.Title))

	raw := im.archiveRaw(ctx, logger, RawRecord{
		RunID:     runID,
		FetchedAt: im.now().UTC(),
		Summary:   result,
		Details:   details,
		Credits:   credits,
	}, year, language)
	im.notify(ctx, logger, runID, item, raw)
	return nil
}

// enrich fetches details and credits. A non-terminal failure of either lookup
// is logged and yields nil for that payload.
func (im *Importer) enrich(ctx context.Context, logger *zap.Logger, id int64) (*tmdb.MovieDetails, *tmdb.Credits, error) {
	var (
		details *tmdb.MovieDetails
		credits *tmdb.Credits
	)
	d, err := im.api.MovieDetails(ctx, id)
	switch {
	case err == nil:
		details = &d
	case terminal(ctx, err):
		return nil, nil, fmt.Errorf("details for %d: %w", id, err)
	default:
		logger.Warn("movie details unavailable", zap.Int64("content_id", id), zap.Error(err))
	}

	c, err := im.api.MovieCredits(ctx, id)
	switch {
	case err == nil:
		credits = &c
	case terminal(ctx, err):
		return nil, nil, fmt.Errorf("credits for %d: %w", id, err)
	default:
		logger.Warn("movie credits unavailable", zap.Int64("content_id", id), zap.Error(err))
	}
	return details, credits, nil
}

type archived struct {
	uri    string
	digest string
}

func (im *Importer) archiveRaw(ctx context.Context, logger *zap.Logger, rec RawRecord, year int, language string) archived {
	if im.archive == nil {
		return archived{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		logger.Warn("archive marshal failed", zap.Int64("content_id", rec.Summary.ID), zap.Error(err))
		return archived{}
	}
	p := ArchivePath(im.cfg.ArchivePrefix, rec.RunID, year, language, rec.Summary.ID)
	uri, err := im.archive.PutObject(ctx, p, "application/json", data)
	if err != nil {
		logger.Warn("archive write failed", zap.String("path", p), zap.Error(err))
		return archived{}
	}
	return archived{uri: uri, digest: sha256.Digest(data)}
}

func (im *Importer) notify(ctx context.Context, logger *zap.Logger, runID string, item catalog.Item, raw archived) {
	if im.publisher == nil {
		return
	}
	event := UpsertEvent{
		RunID:       runID,
		ContentID:   item.ContentID,
		Title:       item.Title,
		Language:    item.Language,
		ReleaseYear: item.ReleaseYear,
		UpsertedAt:  im.now().UTC(),
		RawURI:      raw.uri,
		RawSHA256:   raw.digest,
	}
	if _, err := im.publisher.Publish(ctx, EventItemUpserted, event); err != nil {
		logger.Warn("upsert notification failed", zap.Int64("content_id", item.ContentID), zap.Error(err))
	}
}

// mismatch reports why a discovery result does not belong to the pair, or "".
// A missing release date is kept; the row stores a null year.
func mismatch(result tmdb.MovieSummary, year int, language string) string {
	if !strings.EqualFold(result.OriginalLanguage, language) {
		return skipLanguageMismatch
	}
	if y := catalog.ParseReleaseYear(result.ReleaseDate); y != nil && *y != year {
		return skipYearMismatch
	}
	return ""
}

func derefOr[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
