// Package opml reads and writes subscription lists in the OPML exchange
// format used by most podcast clients.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"podplay/internal/domain"
)

type document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    head     `xml:"head"`
	Body    body     `xml:"body"`
}

type head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type body struct {
	Outlines []outline `xml:"outline"`
}

type outline struct {
	Type    string `xml:"type,attr"`
	Text    string `xml:"text,attr"`
	Title   string `xml:"title,attr,omitempty"`
	XMLURL  string `xml:"xmlUrl,attr"`
	HTMLURL string `xml:"htmlUrl,attr,omitempty"`
}

// Subscription is one imported outline entry.
type Subscription struct {
	Title   string
	FeedURL string
	SiteURL string
}

// Export writes the feeds as an OPML 2.0 document. Feeds without a canonical
// URL are skipped; there is nothing another client could subscribe to.
func Export(w io.Writer, feeds []domain.Feed) error {
	doc := document{
		Version: "2.0",
		Head: head{
			Title:       "Podplay Subscriptions",
			DateCreated: time.Now().UTC().Format(time.RFC1123Z),
		},
		Body: body{
			Outlines: make([]outline, 0, len(feeds)),
		},
	}

	for _, feed := range feeds {
		if feed.URL == "" {
			continue
		}
		doc.Body.Outlines = append(doc.Body.Outlines, outline{
			Type:    "rss",
			Text:    feed.Title,
			Title:   feed.Title,
			XMLURL:  feed.URL,
			HTMLURL: feed.Link,
		})
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("encode OPML: %w", err)
	}
	return nil
}

// Import parses an OPML document into subscriptions. Outlines without a feed
// URL are dropped.
func Import(r io.Reader) ([]Subscription, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode OPML: %w", err)
	}

	subscriptions := make([]Subscription, 0, len(doc.Body.Outlines))
	for _, entry := range doc.Body.Outlines {
		if entry.XMLURL == "" {
			continue
		}
		title := entry.Title
		if title == "" {
			title = entry.Text
		}
		subscriptions = append(subscriptions, Subscription{
			Title:   title,
			FeedURL: entry.XMLURL,
			SiteURL: entry.HTMLURL,
		})
	}
	return subscriptions, nil
}
