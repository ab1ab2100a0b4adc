// Package player drives the external media engine. The Engine interface is
// the raw asynchronous boundary; the Adapter normalizes its events into an
// ordered stream of field updates and owns auto-advance, and the Coordinator
// folds those updates together with library lookups into one observable
// player state.
package player

import (
	"context"
	"errors"

	"podplay/internal/domain"
)

// ErrEngineNotReady reports a composite command issued before the engine
// finished initializing. Best-effort transport commands are dropped instead.
var ErrEngineNotReady = errors.New("playback engine not ready")

// Item is one playable entry: the composite media id plus the source URI the
// engine streams from.
type Item struct {
	ID  domain.MediaID
	URI string
}

// ItemForEpisode builds the engine item for a stored episode. The id is
// always assembled from the two local integer ids, never from a guid.
func ItemForEpisode(episode domain.Episode) Item {
	return Item{ID: domain.NewMediaID(episode), URI: episode.Source}
}

type EventKind int

const (
	// EventReady fires once when the engine handle becomes usable.
	EventReady EventKind = iota
	// EventItemLoaded fires when the current item is prepared and seekable.
	EventItemLoaded
	// EventPlayingChanged carries the new transport state.
	EventPlayingChanged
	// EventItemChanged carries the engine's current item, or HasItem=false
	// when playback stopped with nothing loaded.
	EventItemChanged
	// EventTrackEnded fires when the current item plays to completion.
	// HadNext reports whether an explicitly queued item followed the
	// finished one at that moment; an engine that advances its own
	// playlist must capture it before moving on.
	EventTrackEnded
)

// Event is one engine notification. Only the fields relevant to Kind are
// set.
type Event struct {
	Kind    EventKind
	Playing bool
	Item    Item
	HasItem bool
	HadNext bool
}

// Engine abstracts the external playback process. Implementations deliver
// events in emission order on the Events channel; command methods block until
// the engine acknowledges. An engine that keeps its own playlist advances to
// an explicitly queued next item by itself after EventTrackEnded.
type Engine interface {
	// Load replaces the current item and starts preparing it.
	Load(ctx context.Context, item Item) error
	// Enqueue appends an item after the current one.
	Enqueue(ctx context.Context, item Item) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	// SetPosition seeks to an absolute position in milliseconds.
	SetPosition(ctx context.Context, positionMS int64) error
	// PositionMS samples the current playback position.
	PositionMS(ctx context.Context) (int64, error)
	// QueueAhead reports how many items are queued after the current one.
	QueueAhead(ctx context.Context) (int, error)
	Events() <-chan Event
	Close() error
}
