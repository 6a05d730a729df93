package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-importer/internal/database"
	"github.com/JakeFAU/catalog-importer/internal/hash/sha256"
	iduuid "github.com/JakeFAU/catalog-importer/internal/id/uuid"
	"github.com/JakeFAU/catalog-importer/internal/policy/retry"
	pubmemory "github.com/JakeFAU/catalog-importer/internal/publisher/memory"
	"github.com/JakeFAU/catalog-importer/internal/storage"
	"github.com/JakeFAU/catalog-importer/internal/storage/memory"
	"github.com/JakeFAU/catalog-importer/internal/store"
	"github.com/JakeFAU/catalog-importer/internal/tmdb"
)

// fakeAPI serves canned discovery pages keyed by "year/lang/page". Details and
// credits default to 200 with empty bodies unless a status override is set.
type fakeAPI struct {
	mu            sync.Mutex
	pages         map[string]tmdb.DiscoverResponse
	discoverCode  map[string]int
	details       map[int64]tmdb.MovieDetails
	detailsCode   map[int64]int
	credits       map[int64]tmdb.Credits
	creditsCode   map[int64]int
	discoverCalls []discoverCall
}

type discoverCall struct {
	year, lang, region, page string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages:        map[string]tmdb.DiscoverResponse{},
		discoverCode: map[string]int{},
		details:      map[int64]tmdb.MovieDetails{},
		detailsCode:  map[int64]int{},
		credits:      map[int64]tmdb.Credits{},
		creditsCode:  map[int64]int{},
	}
}

func pageKey(year int, lang string, page int) string {
	return fmt.Sprintf("%d/%s/%d", year, lang, page)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/3/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "discover":
		q := r.URL.Query()
		f.discoverCalls = append(f.discoverCalls, discoverCall{
			year:   q.Get("primary_release_year"),
			lang:   q.Get("with_original_language"),
			region: q.Get("region"),
			page:   q.Get("page"),
		})
		key := q.Get("primary_release_year") + "/" + q.Get("with_original_language") + "/" + q.Get("page")
		if code, ok := f.discoverCode[key]; ok {
			w.WriteHeader(code)
			return
		}
		_ = json.NewEncoder(w).Encode(f.pages[key])
	case len(parts) == 2 && parts[0] == "movie":
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		if code, ok := f.detailsCode[id]; ok {
			w.WriteHeader(code)
			return
		}
		_ = json.NewEncoder(w).Encode(f.details[id])
	case len(parts) == 3 && parts[2] == "credits":
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		if code, ok := f.creditsCode[id]; ok {
			w.WriteHeader(code)
			return
		}
		_ = json.NewEncoder(w).Encode(f.credits[id])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) calls() []discoverCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]discoverCall(nil), f.discoverCalls...)
}

// memCursor is an in-memory store.CursorRepository. saved keeps every write
// so tests can inspect progress after a clean run clears the cursor.
type memCursor struct {
	mu       sync.Mutex
	pairs    map[string]store.PairProgress
	saved    []store.PairProgress
	resets   int
	resetErr error
}

func newMemCursor(seed ...store.PairProgress) *memCursor {
	c := &memCursor{pairs: map[string]store.PairProgress{}}
	for _, p := range seed {
		c.pairs[p.Key()] = p
	}
	return c
}

func (c *memCursor) Load(_ context.Context, year int, lang string) (store.PairProgress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pairs[store.PairKey(year, lang)]
	if !ok {
		return store.PairProgress{}, store.ErrNotFound
	}
	return p, nil
}

func (c *memCursor) Save(_ context.Context, p store.PairProgress) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs[p.Key()] = p
	c.saved = append(c.saved, p)
	return nil
}

func (c *memCursor) List(context.Context) ([]store.PairProgress, error) { return nil, nil }

func (c *memCursor) Reset(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resetErr != nil {
		return c.resetErr
	}
	c.resets++
	c.pairs = map[string]store.PairProgress{}
	return nil
}

func (c *memCursor) Close() error { return nil }

func (c *memCursor) lastSaved(year int, lang string) (store.PairProgress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.saved) - 1; i >= 0; i-- {
		if c.saved[i].Year == year && c.saved[i].Language == lang {
			return c.saved[i], true
		}
	}
	return store.PairProgress{}, false
}

func (c *memCursor) resetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

func (c *memCursor) get(year int, lang string) (store.PairProgress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pairs[store.PairKey(year, lang)]
	return p, ok
}

func newClient(t *testing.T, api http.Handler) *tmdb.Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	policy := retry.NewExponentialPolicy(retry.Config{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}, tmdb.IsRateLimited)
	c, err := tmdb.New(tmdb.Config{BaseURL: srv.URL + "/3", APIKey: "k", HTTPClient: srv.Client()}, nil, policy, zap.NewNop())
	require.NoError(t, err)
	return c
}

func baseConfig(langs ...string) Config {
	return Config{
		FromYear:  2020,
		ToYear:    2020,
		Languages: langs,
		RegionFor: func(lang string) string {
			if lang == "en" {
				return "US"
			}
			return "IN"
		},
		CastLimit: 5,
	}
}

func movie(id int64, lang, date string) tmdb.MovieSummary {
	return tmdb.MovieSummary{
		ID:               id,
		Title:            "Movie " + strconv.FormatInt(id, 10),
		OriginalLanguage: lang,
		ReleaseDate:      date,
		PosterPath:       "/p" + strconv.FormatInt(id, 10) + ".jpg",
	}
}

func fixedNow() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

func TestRunStoresOnlyRequestedPair(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[pageKey(2020, "en", 1)] = tmdb.DiscoverResponse{Page: 1, TotalPages: 2, Results: []tmdb.MovieSummary{
		movie(1, "en", "2020-03-01"),
		movie(2, "fr", "2020-03-01"),
		movie(3, "en", "2019-12-31"),
	}}
	api.pages[pageKey(2020, "en", 2)] = tmdb.DiscoverResponse{Page: 2, TotalPages: 2, Results: []tmdb.MovieSummary{
		movie(4, "en", "2020-11-11"),
	}}
	runtime := 101
	api.details[1] = tmdb.MovieDetails{ID: 1, IMDbID: "tt0000001", Runtime: &runtime}
	credits := tmdb.Credits{ID: 1, Crew: []tmdb.CrewMember{{Name: "Editor", Job: "Editor"}, {Name: "Dir", Job: "Director"}}}
	for i := range 8 {
		credits.Cast = append(credits.Cast, tmdb.CastMember{Name: fmt.Sprintf("C%d", i+1)})
	}
	api.credits[1] = credits
	api.detailsCode[4] = http.StatusNotFound
	api.creditsCode[4] = http.StatusInternalServerError

	repo := memory.NewCatalogStore()
	cursor := newMemCursor()
	im, err := New(baseConfig("en"), Deps{
		API:    newClient(t, api),
		Repo:   repo,
		Cursor: cursor,
		IDs:    iduuid.Fixed("run-1"),
		Now:    fixedNow,
	})
	require.NoError(t, err)

	summary, err := im.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 1, summary.Pairs)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 2, summary.Items)
	assert.Equal(t, 2, summary.ItemsSkipped)

	for _, call := range api.calls() {
		assert.Equal(t, "2020", call.year)
		assert.Equal(t, "en", call.lang)
		assert.Equal(t, "US", call.region)
	}
	require.Len(t, api.calls(), 2)

	items := repo.Items()
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, "en", it.Language)
		require.NotNil(t, it.ReleaseYear)
		assert.Equal(t, 2020, *it.ReleaseYear)
	}

	first, ok := repo.Get(1)
	require.True(t, ok)
	require.NotNil(t, first.Duration)
	assert.Equal(t, 101, *first.Duration)
	require.NotNil(t, first.Director)
	assert.Equal(t, "Dir", *first.Director)
	assert.Equal(t, "C1, C2, C3, C4, C5", first.Cast)

	enrichFailed, ok := repo.Get(4)
	require.True(t, ok)
	assert.Nil(t, enrichFailed.Duration)
	assert.Nil(t, enrichFailed.IMDbID)
	assert.Nil(t, enrichFailed.Director)
	assert.Equal(t, "", enrichFailed.Cast)

	progress, ok := cursor.lastSaved(2020, "en")
	require.True(t, ok)
	assert.True(t, progress.Done)
	assert.Equal(t, 2, progress.LastPage)
	assert.Equal(t, "run-1", progress.RunID)

	assert.Equal(t, 1, cursor.resetCount())
	_, ok = cursor.get(2020, "en")
	assert.False(t, ok, "a finished run leaves no progress behind")
}

func TestRunResumesFromCursor(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[pageKey(2020, "hi", 2)] = tmdb.DiscoverResponse{Page: 2, TotalPages: 2, Results: []tmdb.MovieSummary{
		movie(20, "hi", "2020-01-01"),
	}}

	cursor := newMemCursor(
		store.PairProgress{Year: 2020, Language: "en", LastPage: 4, TotalPages: 4, Done: true},
		store.PairProgress{Year: 2020, Language: "hi", LastPage: 1, TotalPages: 2},
	)
	repo := memory.NewCatalogStore()
	im, err := New(baseConfig("en", "hi"), Deps{API: newClient(t, api), Repo: repo, Cursor: cursor, IDs: iduuid.Fixed("run-2")})
	require.NoError(t, err)

	summary, err := im.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PairsSkipped)
	assert.Equal(t, 1, summary.Pairs)

	calls := api.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, discoverCall{year: "2020", lang: "hi", region: "IN", page: "2"}, calls[0])
	assert.Equal(t, 1, repo.Len())

	progress, _ := cursor.lastSaved(2020, "hi")
	assert.True(t, progress.Done)
	assert.Equal(t, 2, progress.LastPage)
	assert.Equal(t, 1, cursor.resetCount())
}

func TestRunDiscoverFailureEndsPairWithoutMarkingDone(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.discoverCode[pageKey(2020, "en", 1)] = http.StatusInternalServerError
	api.pages[pageKey(2020, "ta", 1)] = tmdb.DiscoverResponse{Page: 1, TotalPages: 1, Results: []tmdb.MovieSummary{
		movie(30, "ta", "2020-05-05"),
	}}

	cursor := newMemCursor()
	repo := memory.NewCatalogStore()
	im, err := New(baseConfig("en", "ta"), Deps{API: newClient(t, api), Repo: repo, Cursor: cursor, IDs: iduuid.Fixed("r")})
	require.NoError(t, err)

	summary, err := im.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PairsIncomplete)
	assert.Equal(t, 1, repo.Len())

	_, ok := cursor.get(2020, "en")
	assert.False(t, ok)
	ta, ok := cursor.get(2020, "ta")
	require.True(t, ok)
	assert.True(t, ta.Done)
	assert.Zero(t, cursor.resetCount(), "an incomplete run keeps its progress")
}

func TestRunEmptyPageEndsPair(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[pageKey(2020, "ml", 1)] = tmdb.DiscoverResponse{Page: 1, TotalPages: 0}

	cursor := newMemCursor()
	im, err := New(baseConfig("ml"), Deps{API: newClient(t, api), Repo: database.NoOpProvider{}, Cursor: cursor, IDs: iduuid.Fixed("r")})
	require.NoError(t, err)

	summary, err := im.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Pages)
	p, ok := cursor.lastSaved(2020, "ml")
	require.True(t, ok)
	assert.True(t, p.Done)
	assert.Equal(t, 0, p.LastPage)
}

func TestRunRateLimitExhaustionIsTerminal(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[pageKey(2020, "en", 1)] = tmdb.DiscoverResponse{Page: 1, TotalPages: 3, Results: []tmdb.MovieSummary{
		movie(1, "en", "2020-01-01"),
	}}
	api.discoverCode[pageKey(2020, "en", 2)] = http.StatusTooManyRequests

	cursor := newMemCursor()
	repo := memory.NewCatalogStore()
	im, err := New(baseConfig("en", "hi"), Deps{API: newClient(t, api), Repo: repo, Cursor: cursor, IDs: iduuid.Fixed("r")})
	require.NoError(t, err)

	summary, err := im.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, tmdb.ErrRateLimited)
	assert.Equal(t, 1, summary.Items)

	p, ok := cursor.get(2020, "en")
	require.True(t, ok)
	assert.False(t, p.Done)
	assert.Equal(t, 1, p.LastPage)
	_, ok = cursor.get(2020, "hi")
	assert.False(t, ok, "run must stop before the next pair")
}

func TestRunAfterCleanCompletionImportsAgain(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[pageKey(2021, "kn", 1)] = tmdb.DiscoverResponse{Page: 1, TotalPages: 1, Results: []tmdb.MovieSummary{
		movie(40, "kn", "2021-03-03"),
	}}

	cursor := newMemCursor()
	repo := memory.NewCatalogStore()
	cfg := baseConfig("kn")
	cfg.FromYear, cfg.ToYear = 2021, 2021
	client := newClient(t, api)
	for run := range 2 {
		im, err := New(cfg, Deps{API: client, Repo: repo, Cursor: cursor, IDs: iduuid.New()})
		require.NoError(t, err)
		summary, err := im.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Items, "run %d", run)
		assert.Zero(t, summary.PairsSkipped, "run %d", run)
	}
	assert.Equal(t, 2, repo.Writes())
	assert.Equal(t, 2, cursor.resetCount())
}

func TestRunCursorClearFailureIsReported(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	cursor := newMemCursor()
	cursor.resetErr = errors.New("disk full")
	im, err := New(baseConfig("en"), Deps{API: newClient(t, api), Repo: database.NoOpProvider{}, Cursor: cursor, IDs: iduuid.Fixed("r")})
	require.NoError(t, err)

	_, err = im.Run(context.Background())
	require.ErrorContains(t, err, "clear cursor: disk full")
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[pageKey(2020, "te", 1)] = tmdb.DiscoverResponse{Page: 1, TotalPages: 1, Results: []tmdb.MovieSummary{
		movie(7, "te", "2020-02-02"),
		movie(8, "te", "2020-02-03"),
	}}

	repo := memory.NewCatalogStore()
	client := newClient(t, api)
	for range 2 {
		im, err := New(baseConfig("te"), Deps{API: client, Repo: repo, IDs: iduuid.New()})
		require.NoError(t, err)
		_, err = im.Run(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, repo.Len())
	assert.Equal(t, 4, repo.Writes())
}

func TestRunArchivesAndPublishes(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[pageKey(2020, "kn", 1)] = tmdb.DiscoverResponse{Page: 1, TotalPages: 1, Results: []tmdb.MovieSummary{
		movie(11, "kn", "2020-09-09"),
		movie(12, "kn", "2020-09-10"),
	}}

	blobs := memory.NewBlobStore()
	pub := pubmemory.New()
	cfg := baseConfig("kn")
	cfg.ArchivePrefix = "raw"
	im, err := New(cfg, Deps{
		API:       newClient(t, api),
		Repo:      memory.NewCatalogStore(),
		Archive:   blobs,
		Publisher: pub,
		IDs:       iduuid.Fixed("run-9"),
		Now:       fixedNow,
	})
	require.NoError(t, err)

	_, err = im.Run(context.Background())
	require.NoError(t, err)

	raw, ok := blobs.Object("raw/run-9/2020/kn/11.json")
	require.True(t, ok)
	var rec RawRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, int64(11), rec.Summary.ID)
	assert.Equal(t, "run-9", rec.RunID)
	assert.NotNil(t, rec.Details)

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventItemUpserted, events[0].Type)
	ev, ok := events[0].Payload.(UpsertEvent)
	require.True(t, ok)
	assert.Equal(t, int64(11), ev.ContentID)
	assert.Equal(t, "run-9", ev.RunID)
	assert.Equal(t, fixedNow(), ev.UpsertedAt)
	assert.Equal(t, "memory://raw/run-9/2020/kn/11.json", ev.RawURI)
	assert.Equal(t, sha256.Digest(raw), ev.RawSHA256)
}

func TestRunArchiveFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[pageKey(2020, "hi", 1)] = tmdb.DiscoverResponse{Page: 1, TotalPages: 1, Results: []tmdb.MovieSummary{
		movie(5, "hi", "2020-04-04"),
	}}
	archive := &storage.MockProvider{}
	archive.On("PutObject", mock.Anything, "raw/r/2020/hi/5.json", "application/json", mock.AnythingOfType("[]uint8")).
		Return("", errors.New("bucket unavailable")).Once()
	pub := pubmemory.New()
	repo := memory.NewCatalogStore()

	im, err := New(baseConfig("hi"), Deps{
		API:       newClient(t, api),
		Repo:      repo,
		Archive:   archive,
		Publisher: pub,
		IDs:       iduuid.Fixed("r"),
	})
	require.NoError(t, err)
	summary, err := im.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Items)
	assert.Equal(t, 1, repo.Len())
	archive.AssertExpectations(t)

	events := pub.Events()
	require.Len(t, events, 1)
	ev, ok := events[0].Payload.(UpsertEvent)
	require.True(t, ok)
	assert.Empty(t, ev.RawURI)
	assert.Empty(t, ev.RawSHA256)
}

func TestRunPublishFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[pageKey(2020, "en", 1)] = tmdb.DiscoverResponse{Page: 1, TotalPages: 1, Results: []tmdb.MovieSummary{
		movie(1, "en", "2020-01-01"),
	}}
	pub := pubmemory.New()
	pub.FailWith(errors.New("topic deleted"))
	repo := memory.NewCatalogStore()

	im, err := New(baseConfig("en"), Deps{API: newClient(t, api), Repo: repo, Publisher: pub, IDs: iduuid.Fixed("r")})
	require.NoError(t, err)
	summary, err := im.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Items)
	assert.Equal(t, 1, repo.Len())
}

func TestRunStorageFailureIsTerminal(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.pages[pageKey(2020, "en", 1)] = tmdb.DiscoverResponse{Page: 1, TotalPages: 1, Results: []tmdb.MovieSummary{
		movie(1, "en", "2020-01-01"),
		movie(2, "en", "2020-01-02"),
	}}
	repo := &database.MockProvider{}
	repo.On("UpsertItem", mock.Anything, mock.Anything).Return(errors.New("lost connection")).Once()

	cursor := newMemCursor()
	im, err := New(baseConfig("en"), Deps{API: newClient(t, api), Repo: repo, Cursor: cursor, IDs: iduuid.Fixed("r")})
	require.NoError(t, err)

	_, err = im.Run(context.Background())
	require.ErrorContains(t, err, "lost connection")
	repo.AssertNumberOfCalls(t, "UpsertItem", 1)
	_, ok := cursor.get(2020, "en")
	assert.False(t, ok)
}

func TestRunHonoursCancellation(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	im, err := New(baseConfig("en"), Deps{API: newClient(t, api), Repo: database.NoOpProvider{}, IDs: iduuid.Fixed("r")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = im.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, api.calls())
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	client := newClient(t, newFakeAPI())
	deps := Deps{API: client, Repo: database.NoOpProvider{}, IDs: iduuid.Fixed("r")}

	_, err := New(baseConfig(), deps)
	require.Error(t, err)

	cfg := baseConfig("en")
	cfg.ToYear = 2019
	_, err = New(cfg, deps)
	require.Error(t, err)

	_, err = New(baseConfig("en"), Deps{Repo: database.NoOpProvider{}, IDs: iduuid.Fixed("r")})
	require.Error(t, err)
	_, err = New(baseConfig("en"), Deps{API: client, IDs: iduuid.Fixed("r")})
	require.Error(t, err)
	_, err = New(baseConfig("en"), Deps{API: client, Repo: database.NoOpProvider{}})
	require.Error(t, err)
}

func TestArchivePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "raw/run/2015/hi/42.json", ArchivePath("raw", "run", 2015, "hi", 42))
	assert.Equal(t, "a/b/run/2015/hi/42.json", ArchivePath("a/b/", "run", 2015, "hi", 42))
}

func TestMismatch(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", mismatch(movie(1, "EN", "2020-01-01"), 2020, "en"))
	assert.Equal(t, "", mismatch(movie(1, "en", ""), 2020, "en"))
	assert.Equal(t, skipLanguageMismatch, mismatch(movie(1, "hi", "2020-01-01"), 2020, "en"))
	assert.Equal(t, skipYearMismatch, mismatch(movie(1, "en", "2021-01-01"), 2020, "en"))
}
