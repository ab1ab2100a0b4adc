// Package podindex is a typed client for the PodcastIndex-style catalog API:
// feed lookup by id, free-text feed search and episode listing by feed id.
// Requests are signed per request; responses are decoded leniently so that a
// malformed optional field never rejects an otherwise valid payload.
package podindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"podplay/internal/domain"
)

var (
	// ErrNetwork covers connectivity and timeout failures and unexpected
	// HTTP statuses.
	ErrNetwork = errors.New("catalog network error")
	// ErrAuth means the server rejected the request signature.
	ErrAuth = errors.New("catalog auth rejected")
	// ErrDecode means the response body could not be parsed.
	ErrDecode = errors.New("catalog response malformed")
)

// Client interacts with the catalog API. None of its operations retry; a
// failure surfaces to the caller unchanged.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	key        string
	secret     string
	now        func() time.Time
}

// NewClient creates a client using the provided HTTP client. The baseURL can
// be overridden for testing; if empty the public API endpoint is used.
func NewClient(httpClient *http.Client, baseURL, key, secret string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.podcastindex.org/api/1.0"
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "podplay/dev",
		key:        key,
		secret:     secret,
		now:        time.Now,
	}
}

// SetUserAgent overrides the User-Agent header sent with every request.
func (c *Client) SetUserAgent(userAgent string) {
	if strings.TrimSpace(userAgent) != "" {
		c.userAgent = userAgent
	}
}

// FeedByID fetches a single feed by its catalog id.
func (c *Client) FeedByID(ctx context.Context, id int64) (domain.Feed, error) {
	query := url.Values{}
	query.Set("id", strconv.FormatInt(id, 10))

	var payload singleFeedResult
	if err := c.get(ctx, "/podcasts/byfeedid", query, &payload); err != nil {
		return domain.Feed{}, err
	}
	return payload.Feed.toDomain(), nil
}

// Search queries the catalog for feeds matching the term by title, author or
// owner. max caps the result count when positive; clean filters explicit
// feeds out.
func (c *Client) Search(ctx context.Context, term string, max int, clean bool) ([]domain.Feed, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("search term cannot be empty")
	}

	query := url.Values{}
	query.Set("q", term)
	if max > 0 {
		query.Set("max", strconv.Itoa(max))
	}
	if clean {
		query.Set("clean", "true")
	}

	var payload feedsResult
	if err := c.get(ctx, "/search/byterm", query, &payload); err != nil {
		return nil, err
	}

	feeds := make([]domain.Feed, 0, len(payload.Feeds))
	for _, item := range payload.Feeds {
		feeds = append(feeds, item.toDomain())
	}
	return feeds, nil
}

// EpisodesByFeed lists episodes for a catalog feed id, newest first as the
// server returns them. max caps the result count when positive.
func (c *Client) EpisodesByFeed(ctx context.Context, feedID int64, max int) ([]domain.Episode, error) {
	query := url.Values{}
	query.Set("id", strconv.FormatInt(feedID, 10))
	if max > 0 {
		query.Set("max", strconv.Itoa(max))
	}

	var payload episodesResult
	if err := c.get(ctx, "/episodes/byfeedid", query, &payload); err != nil {
		return nil, err
	}

	episodes := make([]domain.Episode, 0, len(payload.Items))
	for _, item := range payload.Items {
		episodes = append(episodes, item.toDomain())
	}
	return episodes, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}

	timestamp := c.now().Unix()
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Auth-Key", c.key)
	req.Header.Set("X-Auth-Date", strconv.FormatInt(timestamp, 10))
	req.Header.Set("Authorization", Signature(c.key, c.secret, timestamp))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuth, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: unexpected status %s", ErrNetwork, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}
