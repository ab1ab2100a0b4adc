package repository

import (
	"context"
	"log"
	"sync"

	"podplay/internal/domain"
)

type topic int

const (
	topicFeeds topic = iota
	topicEpisodes
	topicProgress
)

// hub fans write notifications out to observers. Each subscriber holds a
// buffered signal channel; notify never blocks, coalescing bursts of writes
// into a single pending signal.
type hub struct {
	mu   sync.Mutex
	subs map[chan struct{}][]topic
}

func newHub() *hub {
	return &hub{subs: make(map[chan struct{}][]topic)}
}

func (h *hub) subscribe(topics ...topic) chan struct{} {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.subs[ch] = topics
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan struct{}) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *hub) notify(t topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, topics := range h.subs {
		for _, sub := range topics {
			if sub != t {
				continue
			}
			select {
			case ch <- struct{}{}:
			default:
			}
			break
		}
	}
}

// ObserveFeeds emits the current feed list immediately, then re-emits after
// every feed write until ctx is cancelled.
func (s *Store) ObserveFeeds(ctx context.Context) <-chan []domain.Feed {
	return observe(ctx, s, s.ListFeeds, topicFeeds)
}

// ObserveSubscribedFeeds is ObserveFeeds restricted to subscribed feeds.
func (s *Store) ObserveSubscribedFeeds(ctx context.Context) <-chan []domain.Feed {
	return observe(ctx, s, s.ListSubscribedFeeds, topicFeeds)
}

// ObserveFeedByID re-emits a single feed on every feed write. A missing feed
// emits the zero value with ok=false semantics folded into the view type.
func (s *Store) ObserveFeedByID(ctx context.Context, id int) <-chan domain.Feed {
	return observe(ctx, s, func(ctx context.Context) (domain.Feed, error) {
		feed, _, err := s.FindFeedByID(ctx, id)
		return feed, err
	}, topicFeeds)
}

// ObserveFeedWithEpisodes re-emits the joined view whenever feeds or
// episodes change.
func (s *Store) ObserveFeedWithEpisodes(ctx context.Context, id int) <-chan domain.FeedWithEpisodes {
	return observe(ctx, s, func(ctx context.Context) (domain.FeedWithEpisodes, error) {
		view, _, err := s.FeedWithEpisodes(ctx, id)
		return view, err
	}, topicFeeds, topicEpisodes)
}

// ObserveProgressWithEpisodes re-emits all progress rows joined to their
// episodes whenever progress or episodes change.
func (s *Store) ObserveProgressWithEpisodes(ctx context.Context) <-chan []domain.ProgressWithEpisode {
	return observe(ctx, s, s.ListProgressWithEpisodes, topicProgress, topicEpisodes)
}

// observe runs query once up front and again after each relevant write,
// delivering results in order to a single consumer. The subscription ends,
// and the channel closes, when ctx is cancelled; a query failure is logged
// and ends the stream rather than delivering partial state.
func observe[T any](ctx context.Context, s *Store, query func(context.Context) (T, error), topics ...topic) <-chan T {
	out := make(chan T, 1)
	signal := s.hub.subscribe(topics...)

	go func() {
		defer close(out)
		defer s.hub.unsubscribe(signal)

		for {
			value, err := query(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("observe query failed: %v", err)
				}
				return
			}
			select {
			case out <- value:
			case <-ctx.Done():
				return
			}

			select {
			case <-signal:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
