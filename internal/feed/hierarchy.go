package feed

import (
	"context"
	"errors"

	"github.com/bryan-buckman/buildlog/internal/apperr"
	"github.com/bryan-buckman/buildlog/internal/database"
	"github.com/bryan-buckman/buildlog/internal/model"
)

// Kind is a feed's position in the one-level hierarchy.
type Kind string

const (
	Standalone Kind = "standalone"
	Parent     Kind = "parent"
	Child      Kind = "child"
)

// Classification describes a feed and its direct relatives.
type Classification struct {
	Feed     *model.Feed
	Kind     Kind
	Children []model.Feed // set when Kind is Parent
	Parent   *model.Feed  // set when Kind is Child
}

// FeedIDs returns the feed's own ID followed by its children's IDs.
func (c *Classification) FeedIDs() []string {
	ids := make([]string, 0, 1+len(c.Children))
	ids = append(ids, c.Feed.ID)
	for _, ch := range c.Children {
		ids = append(ids, ch.ID)
	}
	return ids
}

// Classify loads slug and works out whether it stands alone, has
// children or is nested under a parent.
func (s *Service) Classify(ctx context.Context, slug string) (*Classification, error) {
	f, err := s.store.GetFeedBySlug(ctx, slug)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeNotFound, "Feed not found")
	}
	if err != nil {
		return nil, err
	}
	return s.classify(ctx, f)
}

func (s *Service) classify(ctx context.Context, f *model.Feed) (*Classification, error) {
	c := &Classification{Feed: f, Kind: Standalone}
	if f.HasParent() {
		parents, err := s.store.GetFeedsByIDs(ctx, []string{*f.ParentID})
		if err != nil {
			return nil, err
		}
		if p, ok := parents[*f.ParentID]; ok {
			c.Kind = Child
			c.Parent = &p
		}
		return c, nil
	}
	children, err := s.store.ListChildren(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	if len(children) > 0 {
		c.Kind = Parent
		c.Children = children
	}
	return c, nil
}

// SetParent nests f under the feed named parentSlug, or un-nests it when
// parentSlug is nil. Nesting keeps the hierarchy one level deep: the
// parent must not itself be a child and f must not have children.
func (s *Service) SetParent(ctx context.Context, f *model.Feed, parentSlug *string) error {
	if parentSlug == nil {
		return s.store.SetParent(ctx, f.ID, nil)
	}
	if *parentSlug == "" {
		return apperr.Validation(apperr.CodeInvalidParent, "parent must be a slug or null")
	}

	parent, err := s.store.GetFeedBySlug(ctx, *parentSlug)
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound(apperr.CodeParentNotFound, "Parent feed not found")
	}
	if err != nil {
		return err
	}
	if parent.ID == f.ID {
		return apperr.Validation(apperr.CodeInvalidParent, "A feed cannot be its own parent")
	}
	if parent.HasParent() {
		return apperr.Validation(apperr.CodeParentIsChild, "Cannot nest under a child feed (max 1 level)")
	}

	n, err := s.store.CountChildren(ctx, f.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Validation(apperr.CodeHasChildren, "Cannot nest a feed that has children")
	}
	return s.store.SetParent(ctx, f.ID, &parent.ID)
}
