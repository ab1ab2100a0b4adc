package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Feed is a podcast feed as stored locally. IndexID is the remote catalog
// identifier; it is unique among non-zero values, zero meaning the feed was
// created without a catalog reference. A feed counts as subscribed exactly
// when Subscribed is non-nil; unsubscribing clears the timestamp but never
// deletes the row.
type Feed struct {
	ID           int
	Title        string
	Description  string
	Image        string
	IsExplicit   bool
	Author       string
	Language     string
	EpisodeCount int
	Subscribed   *time.Time
	URL          string
	Link         string
	IndexID      int64
	IndexGUID    string
}

// IsSubscribed reports whether the feed currently has a subscription
// timestamp.
func (f Feed) IsSubscribed() bool {
	return f.Subscribed != nil
}

// Episode belongs to exactly one feed by local id. FeedID stays 0 until the
// owning feed has been persisted locally and the episode is backfilled.
// Number is the episode number within the feed (0 = unknown); auto-advance
// relies on numbers being meaningful per feed, which is a convention, not a
// constraint the store enforces.
type Episode struct {
	ID           int
	Title        string
	Description  string
	Image        string
	IsExplicit   bool
	Duration     time.Duration
	Published    time.Time
	Number       int
	Season       int
	FeedID       int
	Source       string
	SourceType   string
	SourceLength int64
	IndexID      int64
	IndexGUID    string
}

// Progress records the playback position for a single episode. At most one
// row exists per episode; CreatedAt is fixed on first write, UpdatedAt moves
// with every subsequent position update.
type Progress struct {
	ID         int
	PositionMS int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	EpisodeID  int
}

// FeedWithEpisodes is a read-only projection of a feed joined with all
// episodes referencing it.
type FeedWithEpisodes struct {
	Feed     Feed
	Episodes []Episode
}

// ProgressWithEpisode joins a progress row to its episode.
type ProgressWithEpisode struct {
	Progress Progress
	Episode  Episode
}

// MediaID is the composite identifier handed to the playback engine. It is
// only ever built from the two local integer ids; the hyphen-joined decimal
// format is the sole channel by which the coordinator re-identifies what is
// loaded, so nothing else may leak into it.
type MediaID struct {
	FeedID    int
	EpisodeID int
}

// NewMediaID builds the composite id for an episode.
func NewMediaID(e Episode) MediaID {
	return MediaID{FeedID: e.FeedID, EpisodeID: e.ID}
}

func (m MediaID) String() string {
	return strconv.Itoa(m.FeedID) + "-" + strconv.Itoa(m.EpisodeID)
}

// ParseMediaID parses a composite id back into its feed and episode ids.
// The first hyphen-separated component is the feed id and the last is the
// episode id, mirroring how the id was built.
func ParseMediaID(s string) (MediaID, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 2 {
		return MediaID{}, fmt.Errorf("malformed media id %q", s)
	}
	feedID, err := strconv.Atoi(parts[0])
	if err != nil {
		return MediaID{}, fmt.Errorf("malformed media id %q: %w", s, err)
	}
	episodeID, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return MediaID{}, fmt.Errorf("malformed media id %q: %w", s, err)
	}
	return MediaID{FeedID: feedID, EpisodeID: episodeID}, nil
}
