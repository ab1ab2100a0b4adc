package podindex

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"podplay/internal/domain"
)

// looseInt decodes a JSON number, numeric string, null or anything else into
// an int, defaulting to 0 instead of failing.
type looseInt int64

func (l *looseInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				*l = looseInt(n)
				return nil
			}
		}
		*l = 0
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		*l = 0
		return nil
	}
	*l = looseInt(n)
	return nil
}

// looseBool accepts true/false, 0/1 and "true"/"false", defaulting to false.
type looseBool bool

func (l *looseBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte(`"true"`)), bytes.Equal(data, []byte("1")):
		*l = true
	default:
		*l = false
	}
	return nil
}

// looseString decodes a JSON string, defaulting to "" for null or any
// non-string value.
type looseString string

func (l *looseString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*l = ""
		return nil
	}
	*l = looseString(s)
	return nil
}

type feedPayload struct {
	ID           looseInt    `json:"id"`
	GUID         looseString `json:"podcastGuid"`
	Title        looseString `json:"title"`
	Description  looseString `json:"description"`
	Image        looseString `json:"image"`
	Explicit     looseBool   `json:"explicit"`
	Author       looseString `json:"author"`
	Language     looseString `json:"language"`
	EpisodeCount looseInt    `json:"episodeCount"`
	URL          looseString `json:"url"`
	Link         looseString `json:"link"`
}

func (p feedPayload) toDomain() domain.Feed {
	return domain.Feed{
		Title:        string(p.Title),
		Description:  string(p.Description),
		Image:        string(p.Image),
		IsExplicit:   bool(p.Explicit),
		Author:       string(p.Author),
		Language:     string(p.Language),
		EpisodeCount: int(p.EpisodeCount),
		URL:          string(p.URL),
		Link:         string(p.Link),
		IndexID:      int64(p.ID),
		IndexGUID:    string(p.GUID),
	}
}

type episodePayload struct {
	ID              looseInt    `json:"id"`
	GUID            looseString `json:"guid"`
	Title           looseString `json:"title"`
	Description     looseString `json:"description"`
	Image           looseString `json:"image"`
	Explicit        looseInt    `json:"explicit"`
	DurationSeconds looseInt    `json:"duration"`
	PublishedEpoch  looseInt    `json:"datePublished"`
	Episode         looseInt    `json:"episode"`
	Season          looseInt    `json:"season"`
	EnclosureURL    looseString `json:"enclosureUrl"`
	EnclosureType   looseString `json:"enclosureType"`
	EnclosureLength looseInt    `json:"enclosureLength"`
}

func (p episodePayload) toDomain() domain.Episode {
	var published time.Time
	if p.PublishedEpoch != 0 {
		published = time.Unix(int64(p.PublishedEpoch), 0).UTC()
	}
	return domain.Episode{
		Title:        string(p.Title),
		Description:  string(p.Description),
		Image:        string(p.Image),
		IsExplicit:   p.Explicit == 1,
		Duration:     time.Duration(p.DurationSeconds) * time.Second,
		Published:    published,
		Number:       int(p.Episode),
		Season:       int(p.Season),
		Source:       string(p.EnclosureURL),
		SourceType:   string(p.EnclosureType),
		SourceLength: int64(p.EnclosureLength),
		IndexID:      int64(p.ID),
		IndexGUID:    string(p.GUID),
	}
}

type singleFeedResult struct {
	Status looseString `json:"status"`
	Feed   feedPayload `json:"feed"`
}

type feedsResult struct {
	Status looseString   `json:"status"`
	Feeds  []feedPayload `json:"feeds"`
	Count  looseInt      `json:"count"`
}

type episodesResult struct {
	Status looseString      `json:"status"`
	Items  []episodePayload `json:"items"`
	Count  looseInt         `json:"count"`
}
