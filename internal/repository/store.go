package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"podplay/internal/domain"
)

// Store is the durable source of truth for feeds, episodes and progress.
// Reads come in two flavours: one-shot fetches and the Observe* queries in
// observe.go that re-emit whenever the underlying rows change.
type Store struct {
	db  *sql.DB
	hub *hub
}

func New(db *sql.DB) *Store {
	return &Store{db: db, hub: newHub()}
}

const feedColumns = `id, title, description, image, is_explicit, author, language,
episode_count, subscribed, url, link, index_id, index_guid`

const episodeColumns = `id, title, description, image, is_explicit, duration_seconds,
published, number, season, feed_id, source, source_type, source_length, index_id, index_guid`

func (s *Store) InsertFeed(ctx context.Context, feed domain.Feed) (int, error) {
	var id int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `INSERT INTO feeds
(title, description, image, is_explicit, author, language, episode_count, subscribed, url, link, index_id, index_guid)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			feed.Title, feed.Description, feed.Image, feed.IsExplicit, feed.Author,
			feed.Language, feed.EpisodeCount, formatNullableTime(feed.Subscribed),
			feed.URL, feed.Link, feed.IndexID, feed.IndexGUID)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	s.hub.notify(topicFeeds)
	return int(id), nil
}

func (s *Store) UpdateFeed(ctx context.Context, feed domain.Feed) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE feeds SET
title = ?, description = ?, image = ?, is_explicit = ?, author = ?, language = ?,
episode_count = ?, subscribed = ?, url = ?, link = ?, index_id = ?, index_guid = ?
WHERE id = ?`,
			feed.Title, feed.Description, feed.Image, feed.IsExplicit, feed.Author,
			feed.Language, feed.EpisodeCount, formatNullableTime(feed.Subscribed),
			feed.URL, feed.Link, feed.IndexID, feed.IndexGUID, feed.ID)
		return err
	})
	if err != nil {
		return err
	}
	s.hub.notify(topicFeeds)
	return nil
}

func (s *Store) DeleteFeed(ctx context.Context, id int) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM feeds WHERE id = ?", id); err != nil {
		return err
	}
	s.hub.notify(topicFeeds)
	return nil
}

// FindFeedByID returns the feed with the given local id; absence is reported
// through the bool, not as an error.
func (s *Store) FindFeedByID(ctx context.Context, id int) (domain.Feed, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+feedColumns+" FROM feeds WHERE id = ?", id)
	return scanOptionalFeed(row)
}

// FindFeedByIndexID looks a feed up by its remote catalog id.
func (s *Store) FindFeedByIndexID(ctx context.Context, indexID int64) (domain.Feed, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+feedColumns+" FROM feeds WHERE index_id = ? AND index_id != 0", indexID)
	return scanOptionalFeed(row)
}

func (s *Store) ListFeeds(ctx context.Context) ([]domain.Feed, error) {
	return s.queryFeeds(ctx, "SELECT "+feedColumns+" FROM feeds ORDER BY LOWER(title)")
}

func (s *Store) ListSubscribedFeeds(ctx context.Context) ([]domain.Feed, error) {
	return s.queryFeeds(ctx,
		"SELECT "+feedColumns+" FROM feeds WHERE subscribed IS NOT NULL ORDER BY subscribed DESC")
}

func (s *Store) queryFeeds(ctx context.Context, query string, args ...interface{}) ([]domain.Feed, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	feeds := make([]domain.Feed, 0, 8)
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return feeds, nil
}

// FeedWithEpisodes loads a feed and every episode assigned to it.
func (s *Store) FeedWithEpisodes(ctx context.Context, id int) (domain.FeedWithEpisodes, bool, error) {
	feed, ok, err := s.FindFeedByID(ctx, id)
	if err != nil || !ok {
		return domain.FeedWithEpisodes{}, ok, err
	}
	episodes, err := s.ListEpisodesByFeed(ctx, id)
	if err != nil {
		return domain.FeedWithEpisodes{}, false, err
	}
	return domain.FeedWithEpisodes{Feed: feed, Episodes: episodes}, true, nil
}

func (s *Store) InsertEpisode(ctx context.Context, episode domain.Episode) (int, error) {
	var id int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `INSERT INTO episodes
(title, description, image, is_explicit, duration_seconds, published, number, season,
feed_id, source, source_type, source_length, index_id, index_guid)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			episode.Title, episode.Description, episode.Image, episode.IsExplicit,
			int64(episode.Duration/time.Second), formatTime(episode.Published),
			episode.Number, episode.Season, episode.FeedID, episode.Source,
			episode.SourceType, episode.SourceLength, episode.IndexID, episode.IndexGUID)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	s.hub.notify(topicEpisodes)
	return int(id), nil
}

// InsertEpisodes inserts a batch within one transaction and returns the
// generated ids in input order.
func (s *Store) InsertEpisodes(ctx context.Context, episodes []domain.Episode) ([]int, error) {
	ids := make([]int, 0, len(episodes))
	err := s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				tx.Rollback()
			}
		}()

		ids = ids[:0]
		for _, episode := range episodes {
			res, err := tx.ExecContext(ctx, `INSERT INTO episodes
(title, description, image, is_explicit, duration_seconds, published, number, season,
feed_id, source, source_type, source_length, index_id, index_guid)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				episode.Title, episode.Description, episode.Image, episode.IsExplicit,
				int64(episode.Duration/time.Second), formatTime(episode.Published),
				episode.Number, episode.Season, episode.FeedID, episode.Source,
				episode.SourceType, episode.SourceLength, episode.IndexID, episode.IndexGUID)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			ids = append(ids, int(id))
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.hub.notify(topicEpisodes)
	return ids, nil
}

func (s *Store) UpdateEpisode(ctx context.Context, episode domain.Episode) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE episodes SET
title = ?, description = ?, image = ?, is_explicit = ?, duration_seconds = ?, published = ?,
number = ?, season = ?, feed_id = ?, source = ?, source_type = ?, source_length = ?,
index_id = ?, index_guid = ?
WHERE id = ?`,
			episode.Title, episode.Description, episode.Image, episode.IsExplicit,
			int64(episode.Duration/time.Second), formatTime(episode.Published),
			episode.Number, episode.Season, episode.FeedID, episode.Source,
			episode.SourceType, episode.SourceLength, episode.IndexID, episode.IndexGUID,
			episode.ID)
		return err
	})
	if err != nil {
		return err
	}
	s.hub.notify(topicEpisodes)
	return nil
}

func (s *Store) DeleteEpisode(ctx context.Context, id int) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM episodes WHERE id = ?", id); err != nil {
		return err
	}
	s.hub.notify(topicEpisodes)
	return nil
}

func (s *Store) FindEpisodeByID(ctx context.Context, id int) (domain.Episode, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+episodeColumns+" FROM episodes WHERE id = ?", id)
	return scanOptionalEpisode(row)
}

func (s *Store) FindEpisodeByIndexID(ctx context.Context, indexID int64) (domain.Episode, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+episodeColumns+" FROM episodes WHERE index_id = ? AND index_id != 0", indexID)
	return scanOptionalEpisode(row)
}

func (s *Store) ListEpisodesByFeed(ctx context.Context, feedID int) ([]domain.Episode, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+episodeColumns+" FROM episodes WHERE feed_id = ? ORDER BY number, published", feedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	episodes := make([]domain.Episode, 0, 16)
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, episode)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return episodes, nil
}

// UpsertProgress records a playback position for an episode in a single
// statement. The first write fixes created_at; later writes only move the
// position and updated_at. Doing this in one statement keeps concurrent
// writers for the same episode from losing updates.
func (s *Store) UpsertProgress(ctx context.Context, episodeID int, positionMS int64, now time.Time) error {
	stamp := formatTime(now.UTC())
	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO progress (position_ms, created_at, updated_at, episode_id)
VALUES (?, ?, ?, ?)
ON CONFLICT(episode_id) DO UPDATE SET position_ms = excluded.position_ms, updated_at = excluded.updated_at`,
			positionMS, stamp, stamp, episodeID)
		return err
	})
	if err != nil {
		return err
	}
	s.hub.notify(topicProgress)
	return nil
}

func (s *Store) FindProgressByEpisode(ctx context.Context, episodeID int) (domain.Progress, bool, error) {
	var p domain.Progress
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, position_ms, created_at, updated_at, episode_id FROM progress WHERE episode_id = ?",
		episodeID).Scan(&p.ID, &p.PositionMS, &createdAt, &updatedAt, &p.EpisodeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Progress{}, false, nil
		}
		return domain.Progress{}, false, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, true, nil
}

// ListProgressWithEpisodes returns every progress row joined to its episode,
// most recently updated first.
func (s *Store) ListProgressWithEpisodes(ctx context.Context) ([]domain.ProgressWithEpisode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
p.id, p.position_ms, p.created_at, p.updated_at, p.episode_id,
e.id, e.title, e.description, e.image, e.is_explicit, e.duration_seconds, e.published,
e.number, e.season, e.feed_id, e.source, e.source_type, e.source_length, e.index_id, e.index_guid
FROM progress p
JOIN episodes e ON e.id = p.episode_id
ORDER BY p.updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ProgressWithEpisode, 0, 16)
	for rows.Next() {
		var p domain.Progress
		var e domain.Episode
		var createdAt, updatedAt string
		var published sql.NullString
		var durationSeconds int64
		if err := rows.Scan(
			&p.ID, &p.PositionMS, &createdAt, &updatedAt, &p.EpisodeID,
			&e.ID, &e.Title, &e.Description, &e.Image, &e.IsExplicit, &durationSeconds,
			&published, &e.Number, &e.Season, &e.FeedID, &e.Source, &e.SourceType,
			&e.SourceLength, &e.IndexID, &e.IndexGUID,
		); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		e.Duration = time.Duration(durationSeconds) * time.Second
		if published.Valid {
			e.Published = parseTime(published.String)
		}
		results = append(results, domain.ProgressWithEpisode{Progress: p, Episode: e})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFeed(row scanner) (domain.Feed, error) {
	var feed domain.Feed
	var subscribed sql.NullString
	if err := row.Scan(
		&feed.ID, &feed.Title, &feed.Description, &feed.Image, &feed.IsExplicit,
		&feed.Author, &feed.Language, &feed.EpisodeCount, &subscribed,
		&feed.URL, &feed.Link, &feed.IndexID, &feed.IndexGUID,
	); err != nil {
		return domain.Feed{}, err
	}
	if subscribed.Valid {
		t := parseTime(subscribed.String)
		feed.Subscribed = &t
	}
	return feed, nil
}

func scanOptionalFeed(row scanner) (domain.Feed, bool, error) {
	feed, err := scanFeed(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Feed{}, false, nil
		}
		return domain.Feed{}, false, err
	}
	return feed, true, nil
}

func scanEpisode(row scanner) (domain.Episode, error) {
	var episode domain.Episode
	var published sql.NullString
	var durationSeconds int64
	if err := row.Scan(
		&episode.ID, &episode.Title, &episode.Description, &episode.Image,
		&episode.IsExplicit, &durationSeconds, &published, &episode.Number,
		&episode.Season, &episode.FeedID, &episode.Source, &episode.SourceType,
		&episode.SourceLength, &episode.IndexID, &episode.IndexGUID,
	); err != nil {
		return domain.Episode{}, err
	}
	episode.Duration = time.Duration(durationSeconds) * time.Second
	if published.Valid {
		episode.Published = parseTime(published.String)
	}
	return episode, nil
}

func scanOptionalEpisode(row scanner) (domain.Episode, bool, error) {
	episode, err := scanEpisode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Episode{}, false, nil
		}
		return domain.Episode{}, false, err
	}
	return episode, true, nil
}

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed
	}
	return time.Time{}
}

func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		backoff := 50 * time.Millisecond * time.Duration(1<<i)
		if err := waitWithContext(ctx, backoff); err != nil {
			return err
		}
	}
	return err
}

func waitWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
