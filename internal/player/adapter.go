package player

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"podplay/internal/domain"
)

// positionInterval is how often the engine position is sampled while
// playing.
const positionInterval = 500 * time.Millisecond

type UpdateKind int

const (
	UpdatePlaying UpdateKind = iota
	UpdateLoading
	UpdatePosition
	UpdateItem
)

// Update is one field change published by the Adapter. A single consumer
// receives updates in emission order; independent fields may change in any
// order relative to each other after one engine transition.
type Update struct {
	Kind       UpdateKind
	Playing    bool
	Loading    bool
	PositionMS int64
	Item       Item
	HasItem    bool
}

// EpisodeDirectory is the library surface auto-advance needs to find the
// sibling that follows a finished episode.
type EpisodeDirectory interface {
	EpisodeByID(ctx context.Context, id int) (domain.Episode, error)
	FeedWithEpisodes(ctx context.Context, feedID int) (domain.FeedWithEpisodes, error)
}

// Adapter sits between the raw Engine and the Coordinator. It consumes the
// engine's event stream on a single goroutine, samples the position on a
// timer that runs only while playing, advances to the next episode in a feed
// when a track ends with nothing queued, and publishes everything as Updates.
//
// Commands arriving before the engine signals ready are dropped, except the
// composite SetCurrentItemAt which fails with ErrEngineNotReady so callers
// know resumption did not happen.
type Adapter struct {
	engine   Engine
	library  EpisodeDirectory
	updates  chan Update
	interval time.Duration
	ready    atomic.Bool

	waiterMu    sync.Mutex
	loadWaiters []chan struct{}
}

func NewAdapter(engine Engine, library EpisodeDirectory) *Adapter {
	return &Adapter{
		engine:   engine,
		library:  library,
		updates:  make(chan Update, 16),
		interval: positionInterval,
	}
}

// Updates is the adapter's output stream, consumed by exactly one reader.
func (a *Adapter) Updates() <-chan Update {
	return a.updates
}

// Ready reports whether the engine finished initializing.
func (a *Adapter) Ready() bool {
	return a.ready.Load()
}

// Run consumes engine events until ctx is cancelled or the engine's event
// channel closes. It owns the position ticker: started when playback starts,
// stopped the moment it pauses, so no sample is ever emitted after a
// true-to-false playing transition.
//
// The updates channel is never closed: composite commands emit into it from
// their callers' goroutines, which may race the run loop's teardown.
func (a *Adapter) Run(ctx context.Context) {
	// Until the engine reports ready the player counts as loading.
	a.emit(ctx, Update{Kind: UpdateLoading, Loading: true})

	var ticker *time.Ticker
	var tick <-chan time.Time
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
		}
	}
	defer stopTicker()

	var endedItem domain.MediaID
	var ended bool

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-a.engine.Events():
			if !ok {
				return
			}
			switch event.Kind {
			case EventReady:
				a.ready.Store(true)
				a.emit(ctx, Update{Kind: UpdateLoading, Loading: false})
			case EventItemLoaded:
				a.releaseLoadWaiters()
				a.emit(ctx, Update{Kind: UpdateLoading, Loading: false})
			case EventPlayingChanged:
				if event.Playing && tick == nil {
					ticker = time.NewTicker(a.interval)
					tick = ticker.C
				}
				if !event.Playing {
					stopTicker()
				}
				a.emit(ctx, Update{Kind: UpdatePlaying, Playing: event.Playing})
			case EventItemChanged:
				ended = false
				a.emit(ctx, Update{Kind: UpdateItem, Item: event.Item, HasItem: event.HasItem})
			case EventTrackEnded:
				// Completion events can race manual queue operations;
				// advancing twice for the same finished item is the bug
				// this guard exists for.
				if ended && endedItem == event.Item.ID {
					continue
				}
				ended = true
				endedItem = event.Item.ID
				a.autoAdvance(ctx, event)
			}
		case <-tick:
			position, err := a.engine.PositionMS(ctx)
			if err != nil {
				continue
			}
			a.emit(ctx, Update{Kind: UpdatePosition, PositionMS: position})
		}
	}
}

// autoAdvance plays the episode whose number follows the finished one within
// the same feed. An explicitly queued next item takes precedence and is left
// to the engine; a missing sibling simply ends playback. The completion
// event's HadNext flag is authoritative because an engine may already have
// moved its playlist past the finished entry by the time QueueAhead answers.
func (a *Adapter) autoAdvance(ctx context.Context, ended Event) {
	if ended.HadNext {
		return
	}
	ahead, err := a.engine.QueueAhead(ctx)
	if err == nil && ahead > 0 {
		return
	}

	finished := ended.Item
	episode, err := a.library.EpisodeByID(ctx, finished.ID.EpisodeID)
	if err != nil {
		log.Printf("player: cannot resolve finished episode %v: %v", finished.ID, err)
		return
	}
	view, err := a.library.FeedWithEpisodes(ctx, finished.ID.FeedID)
	if err != nil {
		log.Printf("player: cannot list siblings for feed %d: %v", finished.ID.FeedID, err)
		return
	}

	for _, sibling := range view.Episodes {
		if sibling.Number != episode.Number+1 {
			continue
		}
		next := ItemForEpisode(sibling)
		if err := a.engine.Load(ctx, next); err != nil {
			log.Printf("player: auto-advance load failed: %v", err)
			return
		}
		if err := a.engine.Play(ctx); err != nil {
			log.Printf("player: auto-advance play failed: %v", err)
		}
		return
	}
	// No successor. Terminal, not an error.
}

// Play is best-effort: dropped while the engine initializes.
func (a *Adapter) Play(ctx context.Context) error {
	if !a.ready.Load() {
		return nil
	}
	return a.engine.Play(ctx)
}

func (a *Adapter) Pause(ctx context.Context) error {
	if !a.ready.Load() {
		return nil
	}
	return a.engine.Pause(ctx)
}

func (a *Adapter) SeekNext(ctx context.Context) error {
	if !a.ready.Load() {
		return nil
	}
	return a.engine.Next(ctx)
}

func (a *Adapter) SeekPrevious(ctx context.Context) error {
	if !a.ready.Load() {
		return nil
	}
	return a.engine.Previous(ctx)
}

func (a *Adapter) SetPosition(ctx context.Context, positionMS int64) error {
	if !a.ready.Load() {
		return nil
	}
	return a.engine.SetPosition(ctx, positionMS)
}

func (a *Adapter) Enqueue(ctx context.Context, item Item) error {
	if !a.ready.Load() {
		return nil
	}
	return a.engine.Enqueue(ctx, item)
}

// SetCurrentItem replaces the current item and starts playback from the
// beginning.
func (a *Adapter) SetCurrentItem(ctx context.Context, item Item) error {
	if !a.ready.Load() {
		return ErrEngineNotReady
	}
	a.emit(ctx, Update{Kind: UpdateLoading, Loading: true})
	if err := a.engine.Load(ctx, item); err != nil {
		return err
	}
	return a.engine.Play(ctx)
}

// SetCurrentItemAt replaces the current item, waits for the engine to report
// it seekable, seeks to startMS and plays. The wait is edge-triggered: one
// registered waiter, released by the next item-loaded event, deregistered on
// cancellation so no callback fires afterwards.
func (a *Adapter) SetCurrentItemAt(ctx context.Context, item Item, startMS int64) error {
	if !a.ready.Load() {
		return ErrEngineNotReady
	}

	waiter := a.registerLoadWaiter()
	defer a.dropLoadWaiter(waiter)

	a.emit(ctx, Update{Kind: UpdateLoading, Loading: true})
	if err := a.engine.Load(ctx, item); err != nil {
		return err
	}

	select {
	case <-waiter:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := a.engine.SetPosition(ctx, startMS); err != nil {
		return err
	}
	return a.engine.Play(ctx)
}

func (a *Adapter) registerLoadWaiter() chan struct{} {
	waiter := make(chan struct{})
	a.waiterMu.Lock()
	a.loadWaiters = append(a.loadWaiters, waiter)
	a.waiterMu.Unlock()
	return waiter
}

func (a *Adapter) dropLoadWaiter(waiter chan struct{}) {
	a.waiterMu.Lock()
	defer a.waiterMu.Unlock()
	for i, w := range a.loadWaiters {
		if w == waiter {
			a.loadWaiters = append(a.loadWaiters[:i], a.loadWaiters[i+1:]...)
			return
		}
	}
}

func (a *Adapter) releaseLoadWaiters() {
	a.waiterMu.Lock()
	waiters := a.loadWaiters
	a.loadWaiters = nil
	a.waiterMu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

func (a *Adapter) emit(ctx context.Context, update Update) {
	select {
	case a.updates <- update:
	case <-ctx.Done():
	}
}
