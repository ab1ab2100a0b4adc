package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"podplay/internal/domain"
)

// fakeEngine records commands and lets tests feed events in by hand.
type fakeEngine struct {
	mu         sync.Mutex
	events     chan Event
	loads      []Item
	enqueues   []Item
	plays      int
	pauses     int
	nexts      int
	seeks      []int64
	position   int64
	queueAhead int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan Event, 16)}
}

func (f *fakeEngine) Load(ctx context.Context, item Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, item)
	return nil
}

func (f *fakeEngine) Enqueue(ctx context.Context, item Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueues = append(f.enqueues, item)
	return nil
}

func (f *fakeEngine) Play(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	return nil
}

func (f *fakeEngine) Pause(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	return nil
}

func (f *fakeEngine) Next(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nexts++
	return nil
}

func (f *fakeEngine) Previous(ctx context.Context) error { return nil }

func (f *fakeEngine) SetPosition(ctx context.Context, positionMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, positionMS)
	return nil
}

func (f *fakeEngine) PositionMS(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position += 100
	return f.position, nil
}

func (f *fakeEngine) QueueAhead(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queueAhead, nil
}

func (f *fakeEngine) Events() <-chan Event { return f.events }
func (f *fakeEngine) Close() error        { return nil }

func (f *fakeEngine) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

func (f *fakeEngine) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

func (f *fakeEngine) pauseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauses
}

// fakeDirectory serves a fixed feed view for auto-advance lookups.
type fakeDirectory struct {
	episodes map[int]domain.Episode
	views    map[int]domain.FeedWithEpisodes
}

func (d *fakeDirectory) EpisodeByID(ctx context.Context, id int) (domain.Episode, error) {
	episode, ok := d.episodes[id]
	if !ok {
		return domain.Episode{}, errors.New("no such episode")
	}
	return episode, nil
}

func (d *fakeDirectory) FeedWithEpisodes(ctx context.Context, feedID int) (domain.FeedWithEpisodes, error) {
	view, ok := d.views[feedID]
	if !ok {
		return domain.FeedWithEpisodes{}, errors.New("no such feed")
	}
	return view, nil
}

func startAdapter(t *testing.T, engine Engine, directory EpisodeDirectory) (*Adapter, context.CancelFunc) {
	t.Helper()
	adapter := NewAdapter(engine, directory)
	adapter.interval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	go adapter.Run(ctx)
	t.Cleanup(cancel)
	return adapter, cancel
}

func nextUpdate(t *testing.T, adapter *Adapter) Update {
	t.Helper()
	select {
	case update := <-adapter.Updates():
		return update
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

func waitForUpdate(t *testing.T, adapter *Adapter, match func(Update) bool) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case update, ok := <-adapter.Updates():
			if !ok {
				t.Fatal("updates channel closed")
			}
			if match(update) {
				return update
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching update")
		}
	}
}

func TestCommandsDroppedUntilReady(t *testing.T) {
	engine := newFakeEngine()
	adapter, _ := startAdapter(t, engine, &fakeDirectory{})
	ctx := context.Background()

	if update := nextUpdate(t, adapter); update.Kind != UpdateLoading || !update.Loading {
		t.Fatalf("first update = %+v, want loading=true", update)
	}

	if err := adapter.Play(ctx); err != nil {
		t.Fatalf("Play before ready: %v", err)
	}
	if err := adapter.Pause(ctx); err != nil {
		t.Fatalf("Pause before ready: %v", err)
	}
	if engine.playCount() != 0 || engine.pauseCount() != 0 {
		t.Error("transport commands must not reach an uninitialized engine")
	}

	item := Item{ID: domain.MediaID{FeedID: 1, EpisodeID: 2}, URI: "http://example.com/a.mp3"}
	if err := adapter.SetCurrentItemAt(ctx, item, 1000); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("SetCurrentItemAt before ready = %v, want ErrEngineNotReady", err)
	}

	engine.events <- Event{Kind: EventReady}
	if update := nextUpdate(t, adapter); update.Kind != UpdateLoading || update.Loading {
		t.Fatalf("ready update = %+v, want loading=false", update)
	}

	if err := adapter.Play(ctx); err != nil {
		t.Fatalf("Play after ready: %v", err)
	}
	if engine.playCount() != 1 {
		t.Error("Play should reach the engine once ready")
	}
}

func TestPositionSamplingStopsOnPause(t *testing.T) {
	engine := newFakeEngine()
	adapter, _ := startAdapter(t, engine, &fakeDirectory{})

	engine.events <- Event{Kind: EventReady}
	engine.events <- Event{Kind: EventPlayingChanged, Playing: true}

	waitForUpdate(t, adapter, func(u Update) bool { return u.Kind == UpdatePosition })

	engine.events <- Event{Kind: EventPlayingChanged, Playing: false}
	waitForUpdate(t, adapter, func(u Update) bool { return u.Kind == UpdatePlaying && !u.Playing })

	// The run loop emits in order, so anything sampled before the pause has
	// already been delivered. Watch for longer than several intervals.
	timeout := time.After(10 * adapter.interval)
	for {
		select {
		case update := <-adapter.Updates():
			if update.Kind == UpdatePosition {
				t.Fatal("position sample emitted after pause")
			}
		case <-timeout:
			return
		}
	}
}

func TestAutoAdvancePlaysNextEpisodeNumber(t *testing.T) {
	finished := domain.Episode{ID: 51, FeedID: 7, Number: 5, Source: "http://example.com/5.mp3"}
	next := domain.Episode{ID: 52, FeedID: 7, Number: 6, Source: "http://example.com/6.mp3"}
	directory := &fakeDirectory{
		episodes: map[int]domain.Episode{51: finished},
		views: map[int]domain.FeedWithEpisodes{
			7: {Feed: domain.Feed{ID: 7}, Episodes: []domain.Episode{finished, next}},
		},
	}
	engine := newFakeEngine()
	adapter, _ := startAdapter(t, engine, directory)

	engine.events <- Event{Kind: EventReady}
	waitForUpdate(t, adapter, func(u Update) bool { return u.Kind == UpdateLoading && !u.Loading })

	engine.events <- Event{Kind: EventTrackEnded, Item: ItemForEpisode(finished), HasItem: true}

	deadline := time.After(2 * time.Second)
	for engine.loadCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("auto-advance never loaded the next episode")
		case <-time.After(5 * time.Millisecond):
		}
	}

	engine.mu.Lock()
	loaded := engine.loads[0]
	plays := engine.plays
	engine.mu.Unlock()
	if loaded.ID != (domain.MediaID{FeedID: 7, EpisodeID: 52}) {
		t.Errorf("loaded item = %+v, want episode 52 of feed 7", loaded)
	}
	if loaded.URI != next.Source {
		t.Errorf("loaded uri = %q", loaded.URI)
	}
	if plays != 1 {
		t.Errorf("plays = %d, want 1", plays)
	}
}

func TestAutoAdvanceStopsWithoutSuccessor(t *testing.T) {
	last := domain.Episode{ID: 60, FeedID: 7, Number: 9}
	directory := &fakeDirectory{
		episodes: map[int]domain.Episode{60: last},
		views: map[int]domain.FeedWithEpisodes{
			7: {Feed: domain.Feed{ID: 7}, Episodes: []domain.Episode{last}},
		},
	}
	engine := newFakeEngine()
	adapter, _ := startAdapter(t, engine, directory)

	engine.events <- Event{Kind: EventReady}
	waitForUpdate(t, adapter, func(u Update) bool { return u.Kind == UpdateLoading && !u.Loading })

	engine.events <- Event{Kind: EventTrackEnded, Item: ItemForEpisode(last), HasItem: true}

	time.Sleep(50 * time.Millisecond)
	if engine.loadCount() != 0 || engine.playCount() != 0 {
		t.Error("playback should simply stop when no successor exists")
	}
}

func TestAutoAdvanceYieldsToExplicitQueue(t *testing.T) {
	finished := domain.Episode{ID: 51, FeedID: 7, Number: 5}
	directory := &fakeDirectory{episodes: map[int]domain.Episode{51: finished}}
	engine := newFakeEngine()
	engine.queueAhead = 1
	adapter, _ := startAdapter(t, engine, directory)

	engine.events <- Event{Kind: EventReady}
	waitForUpdate(t, adapter, func(u Update) bool { return u.Kind == UpdateLoading && !u.Loading })

	engine.events <- Event{Kind: EventTrackEnded, Item: ItemForEpisode(finished), HasItem: true}

	time.Sleep(50 * time.Millisecond)
	if engine.loadCount() != 0 {
		t.Error("an explicitly queued next item belongs to the engine, not auto-advance")
	}
}

func TestAutoAdvanceHonorsSuccessorOnCompletionEvent(t *testing.T) {
	// An engine that owns its playlist may have advanced past the finished
	// entry already, answering zero for the queue ahead. The completion
	// event's own successor flag must still suppress the splice.
	finished := domain.Episode{ID: 51, FeedID: 7, Number: 5}
	next := domain.Episode{ID: 52, FeedID: 7, Number: 6, Source: "http://example.com/6.mp3"}
	directory := &fakeDirectory{
		episodes: map[int]domain.Episode{51: finished},
		views: map[int]domain.FeedWithEpisodes{
			7: {Feed: domain.Feed{ID: 7}, Episodes: []domain.Episode{finished, next}},
		},
	}
	engine := newFakeEngine()
	adapter, _ := startAdapter(t, engine, directory)

	engine.events <- Event{Kind: EventReady}
	waitForUpdate(t, adapter, func(u Update) bool { return u.Kind == UpdateLoading && !u.Loading })

	engine.events <- Event{Kind: EventTrackEnded, Item: ItemForEpisode(finished), HasItem: true, HadNext: true}

	time.Sleep(50 * time.Millisecond)
	if engine.loadCount() != 0 {
		t.Error("auto-advance replaced an item the engine is already advancing into")
	}
}

func TestCompositeCommandSafeAfterRunExit(t *testing.T) {
	engine := newFakeEngine()
	adapter := NewAdapter(engine, &fakeDirectory{})

	runDone := make(chan struct{})
	go func() {
		adapter.Run(context.Background())
		close(runDone)
	}()

	engine.events <- Event{Kind: EventReady}
	close(engine.events)

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop never exited on engine channel close")
	}

	// A command racing teardown must not blow up on the updates channel.
	item := Item{ID: domain.MediaID{FeedID: 1, EpisodeID: 2}, URI: "http://example.com/a.mp3"}
	if err := adapter.SetCurrentItem(context.Background(), item); err != nil {
		t.Fatalf("SetCurrentItem after run exit: %v", err)
	}
	if engine.loadCount() != 1 {
		t.Errorf("loads = %d, want 1", engine.loadCount())
	}
}

func TestTrackEndedHandledOnce(t *testing.T) {
	finished := domain.Episode{ID: 51, FeedID: 7, Number: 5}
	next := domain.Episode{ID: 52, FeedID: 7, Number: 6, Source: "http://example.com/6.mp3"}
	directory := &fakeDirectory{
		episodes: map[int]domain.Episode{51: finished},
		views: map[int]domain.FeedWithEpisodes{
			7: {Feed: domain.Feed{ID: 7}, Episodes: []domain.Episode{finished, next}},
		},
	}
	engine := newFakeEngine()
	adapter, _ := startAdapter(t, engine, directory)

	engine.events <- Event{Kind: EventReady}
	waitForUpdate(t, adapter, func(u Update) bool { return u.Kind == UpdateLoading && !u.Loading })

	ended := Event{Kind: EventTrackEnded, Item: ItemForEpisode(finished), HasItem: true}
	engine.events <- ended
	engine.events <- ended

	deadline := time.After(2 * time.Second)
	for engine.loadCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("auto-advance never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(50 * time.Millisecond)
	if got := engine.loadCount(); got != 1 {
		t.Errorf("loads = %d, want 1 for a duplicated completion event", got)
	}
}

func TestSetCurrentItemAtSeeksAfterLoad(t *testing.T) {
	engine := newFakeEngine()
	adapter, _ := startAdapter(t, engine, &fakeDirectory{})

	engine.events <- Event{Kind: EventReady}
	waitForUpdate(t, adapter, func(u Update) bool { return u.Kind == UpdateLoading && !u.Loading })

	item := Item{ID: domain.MediaID{FeedID: 3, EpisodeID: 4}, URI: "http://example.com/e.mp3"}
	done := make(chan error, 1)
	go func() {
		done <- adapter.SetCurrentItemAt(context.Background(), item, 42_000)
	}()

	// The composite command must block until the engine reports the item
	// loaded, not poll or proceed early.
	select {
	case err := <-done:
		t.Fatalf("SetCurrentItemAt returned before item loaded: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	engine.events <- Event{Kind: EventItemLoaded}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SetCurrentItemAt: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SetCurrentItemAt never completed")
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.seeks) != 1 || engine.seeks[0] != 42_000 {
		t.Errorf("seeks = %v, want [42000]", engine.seeks)
	}
	if engine.plays != 1 {
		t.Errorf("plays = %d, want 1", engine.plays)
	}
}

func TestSetCurrentItemAtCancellation(t *testing.T) {
	engine := newFakeEngine()
	adapter, _ := startAdapter(t, engine, &fakeDirectory{})

	engine.events <- Event{Kind: EventReady}
	waitForUpdate(t, adapter, func(u Update) bool { return u.Kind == UpdateLoading && !u.Loading })

	ctx, cancel := context.WithCancel(context.Background())
	item := Item{ID: domain.MediaID{FeedID: 3, EpisodeID: 4}, URI: "http://example.com/e.mp3"}
	done := make(chan error, 1)
	go func() {
		done <- adapter.SetCurrentItemAt(ctx, item, 1000)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled wait never returned")
	}

	// The waiter must be deregistered so a later load event has no dangling
	// listener to wake.
	adapter.waiterMu.Lock()
	waiting := len(adapter.loadWaiters)
	adapter.waiterMu.Unlock()
	if waiting != 0 {
		t.Errorf("load waiters = %d, want 0 after cancellation", waiting)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.seeks) != 0 {
		t.Error("no seek may run after cancellation")
	}
}
