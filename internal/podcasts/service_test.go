package podcasts

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"podplay/internal/domain"
	"podplay/internal/repository"
	"podplay/internal/storage"
)

type fakeCatalog struct {
	feedCalls    atomic.Int64
	searchCalls  atomic.Int64
	episodeCalls atomic.Int64

	feeds    map[int64]domain.Feed
	results  []domain.Feed
	episodes []domain.Episode
	err      error
}

func (f *fakeCatalog) FeedByID(ctx context.Context, id int64) (domain.Feed, error) {
	f.feedCalls.Add(1)
	if f.err != nil {
		return domain.Feed{}, f.err
	}
	feed, ok := f.feeds[id]
	if !ok {
		return domain.Feed{}, errors.New("no such feed")
	}
	return feed, nil
}

func (f *fakeCatalog) Search(ctx context.Context, term string, max int, clean bool) ([]domain.Feed, error) {
	f.searchCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeCatalog) EpisodesByFeed(ctx context.Context, feedID int64, max int) ([]domain.Episode, error) {
	f.episodeCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.episodes, nil
}

func newTestService(t *testing.T, catalog *fakeCatalog) *Service {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "podplay.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(repository.New(db), catalog)
}

func TestFeedByIndexIDCachesRemoteResult(t *testing.T) {
	catalog := &fakeCatalog{feeds: map[int64]domain.Feed{
		77: {Title: "Remote Feed", IndexID: 77},
	}}
	service := newTestService(t, catalog)
	ctx := context.Background()

	first, err := service.FeedByIndexID(ctx, 77, false)
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	second, err := service.FeedByIndexID(ctx, 77, false)
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if first.Title != "Remote Feed" || second.Title != "Remote Feed" {
		t.Errorf("feeds = %+v / %+v", first, second)
	}
	if got := catalog.feedCalls.Load(); got != 1 {
		t.Errorf("remote feed calls = %d, want 1", got)
	}
}

func TestFeedByIndexIDRefreshBypassesCache(t *testing.T) {
	catalog := &fakeCatalog{feeds: map[int64]domain.Feed{
		77: {Title: "Remote Feed", IndexID: 77},
	}}
	service := newTestService(t, catalog)
	ctx := context.Background()

	if _, err := service.FeedByIndexID(ctx, 77, false); err != nil {
		t.Fatalf("warm lookup: %v", err)
	}
	catalog.feeds[77] = domain.Feed{Title: "Renamed Feed", IndexID: 77}

	feed, err := service.FeedByIndexID(ctx, 77, true)
	if err != nil {
		t.Fatalf("refresh lookup: %v", err)
	}
	if feed.Title != "Renamed Feed" {
		t.Errorf("title = %q, want refreshed value", feed.Title)
	}
	if got := catalog.feedCalls.Load(); got != 2 {
		t.Errorf("remote feed calls = %d, want 2", got)
	}

	// The refreshed value replaces the cached one for later plain reads.
	feed, err = service.FeedByIndexID(ctx, 77, false)
	if err != nil {
		t.Fatalf("post-refresh lookup: %v", err)
	}
	if feed.Title != "Renamed Feed" {
		t.Errorf("cached title = %q after refresh", feed.Title)
	}
}

func TestFeedByIndexIDPrefersLocalRow(t *testing.T) {
	catalog := &fakeCatalog{feeds: map[int64]domain.Feed{
		77: {Title: "Remote Feed", IndexID: 77},
	}}
	service := newTestService(t, catalog)
	ctx := context.Background()

	stored, err := service.EnsureLocal(ctx, domain.Feed{Title: "Local Feed", IndexID: 77})
	if err != nil {
		t.Fatalf("EnsureLocal: %v", err)
	}
	if stored.ID == 0 {
		t.Fatal("EnsureLocal should assign a local id")
	}

	feed, err := service.FeedByIndexID(ctx, 77, false)
	if err != nil {
		t.Fatalf("FeedByIndexID: %v", err)
	}
	if feed.Title != "Local Feed" || feed.ID != stored.ID {
		t.Errorf("feed = %+v, want the local row", feed)
	}
	if got := catalog.feedCalls.Load(); got != 0 {
		t.Errorf("remote feed calls = %d, want 0", got)
	}
}

func TestFeedByIndexIDFailedFetchCachesNothing(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("boom")}
	service := newTestService(t, catalog)
	ctx := context.Background()

	if _, err := service.FeedByIndexID(ctx, 5, false); err == nil {
		t.Fatal("expected lookup failure")
	}

	catalog.err = nil
	catalog.feeds = map[int64]domain.Feed{5: {Title: "Recovered", IndexID: 5}}
	feed, err := service.FeedByIndexID(ctx, 5, false)
	if err != nil {
		t.Fatalf("retry lookup: %v", err)
	}
	if feed.Title != "Recovered" {
		t.Errorf("title = %q, want fresh fetch after failure", feed.Title)
	}
}

func TestSearchFeedsCachedByQuery(t *testing.T) {
	catalog := &fakeCatalog{results: []domain.Feed{{Title: "A", IndexID: 1}, {Title: "B", IndexID: 2}}}
	service := newTestService(t, catalog)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		feeds, err := service.SearchFeeds(ctx, "history", 10, false, false)
		if err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
		if len(feeds) != 2 {
			t.Fatalf("search %d returned %d feeds", i, len(feeds))
		}
	}
	if got := catalog.searchCalls.Load(); got != 1 {
		t.Errorf("remote search calls = %d, want 1", got)
	}

	// A different term is a different key.
	if _, err := service.SearchFeeds(ctx, "science", 10, false, false); err != nil {
		t.Fatalf("second term: %v", err)
	}
	if got := catalog.searchCalls.Load(); got != 2 {
		t.Errorf("remote search calls = %d, want 2", got)
	}
}

func TestEpisodesByIndexFeedIDCached(t *testing.T) {
	catalog := &fakeCatalog{episodes: []domain.Episode{{Title: "One", IndexID: 10}}}
	service := newTestService(t, catalog)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		episodes, err := service.EpisodesByIndexFeedID(ctx, 7, false)
		if err != nil {
			t.Fatalf("listing %d: %v", i, err)
		}
		if len(episodes) != 1 {
			t.Fatalf("listing %d returned %d episodes", i, len(episodes))
		}
	}
	if got := catalog.episodeCalls.Load(); got != 1 {
		t.Errorf("remote episode calls = %d, want 1", got)
	}
}

func TestSubscribeLifecycleKeepsRow(t *testing.T) {
	catalog := &fakeCatalog{results: []domain.Feed{{Title: "Found", IndexID: 42}}}
	service := newTestService(t, catalog)
	ctx := context.Background()

	results, err := service.SearchFeeds(ctx, "found", 10, false, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	local, err := service.EnsureLocal(ctx, results[0])
	if err != nil {
		t.Fatalf("EnsureLocal: %v", err)
	}

	subscribed, err := service.Subscribe(ctx, local)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if !subscribed.IsSubscribed() {
		t.Fatal("feed should be subscribed")
	}

	unsubscribed, err := service.Unsubscribe(ctx, subscribed)
	if err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if unsubscribed.IsSubscribed() {
		t.Fatal("feed should no longer be subscribed")
	}

	// The row survives unsubscription so history and progress stay intact.
	kept, err := service.LocalFeedByID(ctx, local.ID)
	if err != nil {
		t.Fatalf("LocalFeedByID after unsubscribe: %v", err)
	}
	if kept.Title != "Found" || kept.IsSubscribed() {
		t.Errorf("kept feed = %+v", kept)
	}
}

func TestEnsureLocalIsIdempotentPerIndexID(t *testing.T) {
	service := newTestService(t, &fakeCatalog{})
	ctx := context.Background()

	first, err := service.EnsureLocal(ctx, domain.Feed{Title: "F", IndexID: 9})
	if err != nil {
		t.Fatalf("first EnsureLocal: %v", err)
	}
	second, err := service.EnsureLocal(ctx, domain.Feed{Title: "F", IndexID: 9})
	if err != nil {
		t.Fatalf("second EnsureLocal: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %d vs %d", first.ID, second.ID)
	}
}

func TestLocalLookupsReportAbsence(t *testing.T) {
	service := newTestService(t, &fakeCatalog{})
	ctx := context.Background()

	if _, err := service.LocalFeedByID(ctx, 999); !errors.Is(err, ErrFeedNotFound) {
		t.Errorf("feed err = %v, want ErrFeedNotFound", err)
	}
	if _, err := service.EpisodeByID(ctx, 999); !errors.Is(err, ErrEpisodeNotFound) {
		t.Errorf("episode err = %v, want ErrEpisodeNotFound", err)
	}
	if _, err := service.FeedWithEpisodes(ctx, 999); !errors.Is(err, ErrFeedNotFound) {
		t.Errorf("view err = %v, want ErrFeedNotFound", err)
	}
}

func TestUpdateProgressRoundTrip(t *testing.T) {
	service := newTestService(t, &fakeCatalog{})
	ctx := context.Background()

	feed, err := service.EnsureLocal(ctx, domain.Feed{Title: "F", IndexID: 3})
	if err != nil {
		t.Fatalf("EnsureLocal: %v", err)
	}
	ids, err := service.InsertEpisodes(ctx, []domain.Episode{{Title: "E1", FeedID: feed.ID, Number: 1}})
	if err != nil {
		t.Fatalf("InsertEpisodes: %v", err)
	}

	if err := service.UpdateProgress(ctx, 45_000, ids[0]); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := service.UpdateProgress(ctx, 90_000, ids[0]); err != nil {
		t.Fatalf("second UpdateProgress: %v", err)
	}

	progress, ok, err := service.ProgressByEpisode(ctx, ids[0])
	if err != nil || !ok {
		t.Fatalf("ProgressByEpisode: ok=%t err=%v", ok, err)
	}
	if progress.PositionMS != 90_000 {
		t.Errorf("position = %d, want 90000", progress.PositionMS)
	}
}
