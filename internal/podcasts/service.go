// Package podcasts is the read/write composition over the local store, the
// remote catalog and the in-memory catalog cache. Resolution is local-first:
// data that exists in the store always wins over the network. Resolving a
// remote feed never persists it; persistence stays the caller's decision so
// that purely exploratory lookups (search results) leave no rows behind.
package podcasts

import (
	"context"
	"errors"
	"time"

	"podplay/internal/cache"
	"podplay/internal/domain"
	"podplay/internal/repository"
)

var (
	ErrFeedNotFound    = errors.New("feed not found")
	ErrEpisodeNotFound = errors.New("episode not found")
)

// CatalogClient is the remote catalog boundary consumed by the service.
type CatalogClient interface {
	FeedByID(ctx context.Context, id int64) (domain.Feed, error)
	Search(ctx context.Context, term string, max int, clean bool) ([]domain.Feed, error)
	EpisodesByFeed(ctx context.Context, feedID int64, max int) ([]domain.Episode, error)
}

type Service struct {
	store   *repository.Store
	catalog CatalogClient

	feedCache    *cache.Keyspace[int64, domain.Feed]
	searchCache  *cache.Keyspace[string, []domain.Feed]
	episodeCache *cache.Keyspace[int64, []domain.Episode]

	now func() time.Time
}

func NewService(store *repository.Store, catalog CatalogClient) *Service {
	return &Service{
		store:        store,
		catalog:      catalog,
		feedCache:    cache.NewKeyspace[int64, domain.Feed](),
		searchCache:  cache.NewKeyspace[string, []domain.Feed](),
		episodeCache: cache.NewKeyspace[int64, []domain.Episode](),
		now:          time.Now,
	}
}

// FeedByIndexID resolves a feed by its remote catalog id: cache, then local
// store, then the catalog. A locally stored feed short-circuits the network
// entirely.
func (s *Service) FeedByIndexID(ctx context.Context, indexID int64, refresh bool) (domain.Feed, error) {
	return s.feedCache.Get(ctx, indexID, refresh, func(ctx context.Context) (domain.Feed, error) {
		feed, ok, err := s.store.FindFeedByIndexID(ctx, indexID)
		if err != nil {
			return domain.Feed{}, err
		}
		if ok {
			return feed, nil
		}
		return s.catalog.FeedByID(ctx, indexID)
	})
}

// SearchFeeds queries the catalog for feeds matching the term. Results are
// cached by the literal query string; there is no local short-circuit since
// search always reflects the remote index.
func (s *Service) SearchFeeds(ctx context.Context, query string, max int, clean bool, refresh bool) ([]domain.Feed, error) {
	return s.searchCache.Get(ctx, query, refresh, func(ctx context.Context) ([]domain.Feed, error) {
		return s.catalog.Search(ctx, query, max, clean)
	})
}

// EpisodesByIndexFeedID lists a catalog feed's episodes, cached by remote
// feed id.
func (s *Service) EpisodesByIndexFeedID(ctx context.Context, indexFeedID int64, refresh bool) ([]domain.Episode, error) {
	return s.episodeCache.Get(ctx, indexFeedID, refresh, func(ctx context.Context) ([]domain.Episode, error) {
		return s.catalog.EpisodesByFeed(ctx, indexFeedID, 0)
	})
}

// LocalFeedByIndexID looks a feed up by its catalog id in the store only,
// never touching the network; absence is reported through the bool.
func (s *Service) LocalFeedByIndexID(ctx context.Context, indexID int64) (domain.Feed, bool, error) {
	return s.store.FindFeedByIndexID(ctx, indexID)
}

// LocalFeedByID fetches a feed by local id from the store only.
func (s *Service) LocalFeedByID(ctx context.Context, id int) (domain.Feed, error) {
	feed, ok, err := s.store.FindFeedByID(ctx, id)
	if err != nil {
		return domain.Feed{}, err
	}
	if !ok {
		return domain.Feed{}, ErrFeedNotFound
	}
	return feed, nil
}

// EpisodeByID fetches an episode by local id from the store only.
func (s *Service) EpisodeByID(ctx context.Context, id int) (domain.Episode, error) {
	episode, ok, err := s.store.FindEpisodeByID(ctx, id)
	if err != nil {
		return domain.Episode{}, err
	}
	if !ok {
		return domain.Episode{}, ErrEpisodeNotFound
	}
	return episode, nil
}

// EpisodeByIndexID looks an episode up by its remote catalog id; absence is
// reported through the bool.
func (s *Service) EpisodeByIndexID(ctx context.Context, indexID int64) (domain.Episode, bool, error) {
	return s.store.FindEpisodeByIndexID(ctx, indexID)
}

// FeedWithEpisodes loads the joined view for a local feed id.
func (s *Service) FeedWithEpisodes(ctx context.Context, feedID int) (domain.FeedWithEpisodes, error) {
	view, ok, err := s.store.FeedWithEpisodes(ctx, feedID)
	if err != nil {
		return domain.FeedWithEpisodes{}, err
	}
	if !ok {
		return domain.FeedWithEpisodes{}, ErrFeedNotFound
	}
	return view, nil
}

// EnsureLocal persists a resolved feed if no local row carries its catalog
// id yet, returning the stored feed either way.
func (s *Service) EnsureLocal(ctx context.Context, feed domain.Feed) (domain.Feed, error) {
	if feed.ID != 0 {
		return feed, nil
	}
	if feed.IndexID != 0 {
		existing, ok, err := s.store.FindFeedByIndexID(ctx, feed.IndexID)
		if err != nil {
			return domain.Feed{}, err
		}
		if ok {
			return existing, nil
		}
	}
	id, err := s.store.InsertFeed(ctx, feed)
	if err != nil {
		return domain.Feed{}, err
	}
	feed.ID = id
	return feed, nil
}

// Subscribe stamps the feed as subscribed. The feed must already exist
// locally.
func (s *Service) Subscribe(ctx context.Context, feed domain.Feed) (domain.Feed, error) {
	if feed.ID == 0 {
		return domain.Feed{}, ErrFeedNotFound
	}
	now := s.now().UTC()
	feed.Subscribed = &now
	if err := s.store.UpdateFeed(ctx, feed); err != nil {
		return domain.Feed{}, err
	}
	return feed, nil
}

// Unsubscribe clears the subscription timestamp; the feed row stays.
func (s *Service) Unsubscribe(ctx context.Context, feed domain.Feed) (domain.Feed, error) {
	if feed.ID == 0 {
		return domain.Feed{}, ErrFeedNotFound
	}
	feed.Subscribed = nil
	if err := s.store.UpdateFeed(ctx, feed); err != nil {
		return domain.Feed{}, err
	}
	return feed, nil
}

// InsertEpisodes persists episodes, typically after a catalog listing has
// been resolved for a feed the user is keeping.
func (s *Service) InsertEpisodes(ctx context.Context, episodes []domain.Episode) ([]int, error) {
	return s.store.InsertEpisodes(ctx, episodes)
}

// UpdateEpisode rewrites a stored episode, e.g. to backfill its feed id
// once the owning feed has been created locally.
func (s *Service) UpdateEpisode(ctx context.Context, episode domain.Episode) error {
	return s.store.UpdateEpisode(ctx, episode)
}

// UpdateProgress records a playback position for an episode. The first call
// for an episode creates its progress row; later calls move the position and
// updated-at timestamp only.
func (s *Service) UpdateProgress(ctx context.Context, positionMS int64, episodeID int) error {
	return s.store.UpsertProgress(ctx, episodeID, positionMS, s.now())
}

// ProgressByEpisode returns the saved position for an episode, if any.
func (s *Service) ProgressByEpisode(ctx context.Context, episodeID int) (domain.Progress, bool, error) {
	return s.store.FindProgressByEpisode(ctx, episodeID)
}

// AllFeeds returns every locally known feed, subscribed or not.
func (s *Service) AllFeeds(ctx context.Context) ([]domain.Feed, error) {
	return s.store.ListFeeds(ctx)
}

// SubscribedFeeds returns the subscription list, most recently subscribed
// first.
func (s *Service) SubscribedFeeds(ctx context.Context) ([]domain.Feed, error) {
	return s.store.ListSubscribedFeeds(ctx)
}

// ListProgress returns every saved listening position joined to its episode,
// most recently updated first.
func (s *Service) ListProgress(ctx context.Context) ([]domain.ProgressWithEpisode, error) {
	return s.store.ListProgressWithEpisodes(ctx)
}

// ObserveSubscriptions re-emits the subscribed feed list on every feed
// write.
func (s *Service) ObserveSubscriptions(ctx context.Context) <-chan []domain.Feed {
	return s.store.ObserveSubscribedFeeds(ctx)
}

// ObserveFeeds re-emits all locally known feeds on every feed write.
func (s *Service) ObserveFeeds(ctx context.Context) <-chan []domain.Feed {
	return s.store.ObserveFeeds(ctx)
}

// ObserveFeedWithEpisodes re-emits the joined view for one feed.
func (s *Service) ObserveFeedWithEpisodes(ctx context.Context, feedID int) <-chan domain.FeedWithEpisodes {
	return s.store.ObserveFeedWithEpisodes(ctx, feedID)
}

// ObserveProgress re-emits all progress rows joined to episodes.
func (s *Service) ObserveProgress(ctx context.Context) <-chan []domain.ProgressWithEpisode {
	return s.store.ObserveProgressWithEpisodes(ctx)
}
