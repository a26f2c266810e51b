// Package model defines shared data structures.
package model

import "time"

// Feed is a claimed, publicly addressable update stream.
type Feed struct {
	ID          string
	Slug        string
	TokenHash   string
	Description *string
	XHandle     *string
	WebsiteURL  *string
	Email       *string
	ParentID    *string // nullable; set only on child feeds
	CreatedAt   time.Time
	LastPostAt  *time.Time
}

// HasParent reports whether the feed is nested under another feed.
func (f *Feed) HasParent() bool {
	return f.ParentID != nil && *f.ParentID != ""
}

// Update is a single post within a feed.
type Update struct {
	ID          string    `json:"id"`
	FeedID      string    `json:"-"`
	ProjectName string    `json:"project"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`

	// Resolved owner slugs, filled for multi-feed views.
	Slug       string `json:"slug,omitempty"`
	ParentSlug string `json:"parent_slug,omitempty"`
}

// ProfilePatch carries a partial profile update. A nil field is left
// untouched; a non-nil pointer to "" clears the stored value.
type ProfilePatch struct {
	XHandle     *string
	WebsiteURL  *string
	Description *string
	Email       *string
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.XHandle == nil && p.WebsiteURL == nil && p.Description == nil && p.Email == nil
}

// Fields lists the JSON names of the fields present in the patch.
func (p ProfilePatch) Fields() []string {
	var out []string
	if p.XHandle != nil {
		out = append(out, "x_handle")
	}
	if p.WebsiteURL != nil {
		out = append(out, "website_url")
	}
	if p.Description != nil {
		out = append(out, "description")
	}
	if p.Email != nil {
		out = append(out, "email")
	}
	return out
}

// Activity is one recent update attributed to its owning feed.
type Activity struct {
	FeedID string `db:"feed_id"`
	Slug   string `db:"slug"`
}

// FeedPostCount pairs a feed with its total number of updates.
type FeedPostCount struct {
	FeedID    string `db:"id"`
	Slug      string `db:"slug"`
	PostCount int    `db:"post_count"`
}

// ProjectSummary counts a feed's updates per project label.
type ProjectSummary struct {
	Name  string `db:"project_name" json:"name"`
	Count int    `db:"post_count" json:"count"`
}

// Stats holds site-wide totals.
type Stats struct {
	TotalFeeds int `json:"total_feeds"`
	TotalPosts int `json:"total_posts"`
	PostsToday int `json:"posts_today"`
}

// RecoveryCode is a pending credential reset for one email address.
type RecoveryCode struct {
	Email     string
	CodeHash  string
	Slug      string
	ExpiresAt time.Time
}

// PostEvent announces a newly created update.
type PostEvent struct {
	Slug      string    `json:"slug"`
	Project   string    `json:"project"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
