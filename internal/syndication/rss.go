// Package syndication renders feed timelines as RSS 2.0 documents.
package syndication

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/bryan-buckman/buildlog/internal/model"
)

// RSS represents the root of an RSS 2.0 document.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Atom    string   `xml:"xmlns:atom,attr"`
	Channel Channel  `xml:"channel"`
}

// Channel holds feed metadata and items.
type Channel struct {
	Title         string   `xml:"title"`
	Link          string   `xml:"link"`
	Description   string   `xml:"description"`
	AtomLink      AtomLink `xml:"atom:link"`
	LastBuildDate string   `xml:"lastBuildDate,omitempty"`
	Items         []Item   `xml:"item"`
}

// AtomLink is the channel's self reference.
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// Item is a single update.
type Item struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Category    string `xml:"category,omitempty"`
	GUID        GUID   `xml:"guid"`
	PubDate     string `xml:"pubDate"`
}

// GUID identifies an item. Update ids are not URLs.
type GUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink bool   `xml:"isPermaLink,attr"`
}

// Export builds the RSS document for slug's timeline. baseURL is the
// public site root, without a trailing slash.
func Export(baseURL, slug string, description *string, updates []model.Update) ([]byte, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	link := baseURL + "/" + slug

	desc := "Build log for " + slug
	if description != nil && *description != "" {
		desc = *description
	}

	doc := RSS{
		Version: "2.0",
		Atom:    "http://www.w3.org/2005/Atom",
		Channel: Channel{
			Title:       slug,
			Link:        link,
			Description: desc,
			AtomLink: AtomLink{
				Href: baseURL + "/api/feed/" + slug + "/rss",
				Rel:  "self",
				Type: "application/rss+xml",
			},
		},
	}
	if len(updates) > 0 {
		doc.Channel.LastBuildDate = updates[0].CreatedAt.UTC().Format(time.RFC1123Z)
	}

	for _, u := range updates {
		owner := u.Slug
		if owner == "" {
			owner = slug
		}
		doc.Channel.Items = append(doc.Channel.Items, Item{
			Title:       fmt.Sprintf("%s: %s", owner, u.ProjectName),
			Link:        baseURL + "/" + owner,
			Description: u.Content,
			Category:    u.ProjectName,
			GUID:        GUID{Value: u.ID},
			PubDate:     u.CreatedAt.UTC().Format(time.RFC1123Z),
		})
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode rss: %w", err)
	}
	return append([]byte(xml.Header), output...), nil
}
