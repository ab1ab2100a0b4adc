package player

import (
	"context"
	"log"

	"podplay/internal/domain"
)

// State is the unified player state. Active is true only when the current
// item's episode and owning feed both resolved from the library; a failed
// resolution collapses the state to inactive rather than exposing a partial
// snapshot.
type State struct {
	Active     bool
	IsLoading  bool
	IsPlaying  bool
	PositionMS int64
	Episode    domain.Episode
	Feed       domain.Feed
}

// Library is the repository surface the Coordinator resolves against and
// persists progress through.
type Library interface {
	EpisodeByID(ctx context.Context, id int) (domain.Episode, error)
	LocalFeedByID(ctx context.Context, id int) (domain.Feed, error)
	UpdateProgress(ctx context.Context, positionMS int64, episodeID int) error
	ProgressByEpisode(ctx context.Context, episodeID int) (domain.Progress, bool, error)
}

// resolution carries an asynchronous episode/feed lookup result back into
// the coordinator loop, tagged with the item id it was started for so stale
// results can be discarded.
type resolution struct {
	id      domain.MediaID
	episode domain.Episode
	feed    domain.Feed
	err     error
}

// progressMark is one playback position to persist.
type progressMark struct {
	positionMS int64
	episodeID  int
}

// Coordinator merges Adapter updates into one State. All snapshot fields are
// owned by the single Run goroutine; item resolutions run concurrently but
// report back over a channel, never by touching the snapshot directly.
type Coordinator struct {
	adapter  *Adapter
	library  Library
	states   chan State
	resolved chan resolution
	progress chan progressMark
}

func NewCoordinator(adapter *Adapter, library Library) *Coordinator {
	return &Coordinator{
		adapter:  adapter,
		library:  library,
		states:   make(chan State, 1),
		resolved: make(chan resolution, 1),
		progress: make(chan progressMark, 1),
	}
}

// States delivers the latest derived state. The channel is conflating: a
// slow reader sees the newest snapshot, not every intermediate one.
func (c *Coordinator) States() <-chan State {
	return c.states
}

// Run consumes adapter updates until ctx is cancelled. The snapshot below is
// owned exclusively by this loop; resolution and progress persistence run
// beside it and communicate over channels only.
func (c *Coordinator) Run(ctx context.Context) {
	go c.persistLoop(ctx)

	var snapshot struct {
		playing    bool
		loading    bool
		positionMS int64
		item       Item
		hasItem    bool
		resolved   bool
		episode    domain.Episode
		feed       domain.Feed
	}

	publish := func() {
		state := State{
			IsLoading:  snapshot.loading,
			IsPlaying:  snapshot.playing,
			PositionMS: snapshot.positionMS,
		}
		if snapshot.hasItem && snapshot.resolved {
			state.Active = true
			state.Episode = snapshot.episode
			state.Feed = snapshot.feed
		}
		c.publish(state)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-c.adapter.Updates():
			if !ok {
				return
			}
			switch update.Kind {
			case UpdatePlaying:
				snapshot.playing = update.Playing
			case UpdateLoading:
				snapshot.loading = update.Loading
			case UpdatePosition:
				snapshot.positionMS = update.PositionMS
				if snapshot.hasItem {
					c.recordProgress(progressMark{
						positionMS: update.PositionMS,
						episodeID:  snapshot.item.ID.EpisodeID,
					})
				}
			case UpdateItem:
				snapshot.item = update.Item
				snapshot.hasItem = update.HasItem
				snapshot.resolved = false
				snapshot.episode = domain.Episode{}
				snapshot.feed = domain.Feed{}
				snapshot.positionMS = 0
				if update.HasItem {
					go c.resolve(ctx, update.Item.ID)
				}
			}
			publish()
		case result := <-c.resolved:
			// A further item change may have raced this lookup; only the
			// resolution for the item still current applies.
			if !snapshot.hasItem || snapshot.item.ID != result.id {
				continue
			}
			if result.err != nil {
				log.Printf("player: resolve %v: %v", result.id, result.err)
				snapshot.resolved = false
			} else {
				snapshot.episode = result.episode
				snapshot.feed = result.feed
				snapshot.resolved = true
			}
			publish()
		}
	}
}

func (c *Coordinator) resolve(ctx context.Context, id domain.MediaID) {
	result := resolution{id: id}
	result.episode, result.err = c.library.EpisodeByID(ctx, id.EpisodeID)
	if result.err == nil {
		result.feed, result.err = c.library.LocalFeedByID(ctx, id.FeedID)
	}
	select {
	case c.resolved <- result:
	case <-ctx.Done():
	}
}

// recordProgress hands a position to the persist goroutine without blocking
// the merge loop. The channel conflates: under a slow store only the newest
// mark survives, which is the write that matters.
func (c *Coordinator) recordProgress(mark progressMark) {
	for {
		select {
		case c.progress <- mark:
			return
		default:
		}
		select {
		case <-c.progress:
		default:
		}
	}
}

// persistLoop is the single progress writer; marks apply in the order they
// were recorded.
func (c *Coordinator) persistLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case mark := <-c.progress:
			if err := c.library.UpdateProgress(ctx, mark.positionMS, mark.episodeID); err != nil {
				log.Printf("player: persist progress for episode %d: %v", mark.episodeID, err)
			}
		}
	}
}

func (c *Coordinator) publish(state State) {
	for {
		select {
		case c.states <- state:
			return
		default:
		}
		select {
		case <-c.states:
		default:
		}
	}
}

func (c *Coordinator) Play(ctx context.Context) error {
	return c.adapter.Play(ctx)
}

func (c *Coordinator) Pause(ctx context.Context) error {
	return c.adapter.Pause(ctx)
}

func (c *Coordinator) SeekNext(ctx context.Context) error {
	return c.adapter.SeekNext(ctx)
}

func (c *Coordinator) SeekPrevious(ctx context.Context) error {
	return c.adapter.SeekPrevious(ctx)
}

func (c *Coordinator) SetPosition(ctx context.Context, positionMS int64) error {
	return c.adapter.SetPosition(ctx, positionMS)
}

// PlayEpisode starts the episode from the beginning.
func (c *Coordinator) PlayEpisode(ctx context.Context, episodeID int) error {
	episode, err := c.library.EpisodeByID(ctx, episodeID)
	if err != nil {
		return err
	}
	return c.adapter.SetCurrentItem(ctx, ItemForEpisode(episode))
}

// PlayEpisodeFrom starts the episode at an explicit position.
func (c *Coordinator) PlayEpisodeFrom(ctx context.Context, episodeID int, fromMS int64) error {
	episode, err := c.library.EpisodeByID(ctx, episodeID)
	if err != nil {
		return err
	}
	return c.adapter.SetCurrentItemAt(ctx, ItemForEpisode(episode), fromMS)
}

// ResumeEpisode plays the episode from its saved position, or from the
// beginning when none was recorded.
func (c *Coordinator) ResumeEpisode(ctx context.Context, episodeID int) error {
	progress, ok, err := c.library.ProgressByEpisode(ctx, episodeID)
	if err != nil {
		return err
	}
	if !ok {
		return c.PlayEpisode(ctx, episodeID)
	}
	return c.PlayEpisodeFrom(ctx, episodeID, progress.PositionMS)
}

// AddEpisodeToQueue appends the episode after the current item.
func (c *Coordinator) AddEpisodeToQueue(ctx context.Context, episodeID int) error {
	episode, err := c.library.EpisodeByID(ctx, episodeID)
	if err != nil {
		return err
	}
	return c.adapter.Enqueue(ctx, ItemForEpisode(episode))
}
