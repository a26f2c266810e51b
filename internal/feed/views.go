package feed

import (
	"context"
	"time"

	"github.com/bryan-buckman/buildlog/internal/model"
	"github.com/bryan-buckman/buildlog/internal/ranking"
)

// Profile is the public view of one feed with its merged timeline.
type Profile struct {
	Slug         string                 `json:"slug"`
	Description  *string                `json:"description"`
	XHandle      *string                `json:"x_handle"`
	WebsiteURL   *string                `json:"website_url"`
	Kind         Kind                   `json:"kind"`
	Parent       string                 `json:"parent,omitempty"`
	Children     []string               `json:"children,omitempty"`
	Streak       int                    `json:"streak"`
	TotalUpdates int                    `json:"total_updates"`
	Projects     []model.ProjectSummary `json:"projects"`
	Project      string                 `json:"project,omitempty"`
	Updates      []model.Update         `json:"updates"`
	HasMore      bool                   `json:"has_more"`
	ranking.Window
}

// Page is one page of the global timeline.
type Page struct {
	Updates []model.Update `json:"updates"`
	HasMore bool           `json:"has_more"`
	ranking.Window
}

// Discovery is a sampled feed with a preview of its latest update.
type Discovery struct {
	Slug          string `json:"slug"`
	LatestProject string `json:"latest_project"`
	LatestContent string `json:"latest_content"`
	PostCount     int    `json:"post_count"`
}

// Profile builds the view of slug. A parent's timeline merges its own
// updates with every child's; project, when set, filters the timeline.
func (s *Service) Profile(ctx context.Context, slug, project string, w ranking.Window) (*Profile, error) {
	c, err := s.Classify(ctx, slug)
	if err != nil {
		return nil, err
	}
	f := c.Feed
	ids := c.FeedIDs()

	p := &Profile{
		Slug:        f.Slug,
		Description: f.Description,
		XHandle:     f.XHandle,
		WebsiteURL:  f.WebsiteURL,
		Kind:        c.Kind,
		Project:     project,
		Window:      w,
	}
	if c.Parent != nil {
		p.Parent = c.Parent.Slug
	}
	for _, ch := range c.Children {
		p.Children = append(p.Children, ch.Slug)
	}

	now := s.now()
	times, err := s.store.PostTimes(ctx, f.ID, now.Add(-ranking.StreakWindow))
	if err != nil {
		return nil, err
	}
	p.Streak = ranking.Streak(times, now)

	p.Projects, err = s.store.ProjectSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	if p.Projects == nil {
		p.Projects = []model.ProjectSummary{}
	}
	for _, ps := range p.Projects {
		p.TotalUpdates += ps.Count
	}

	p.Updates, err = s.Timeline(ctx, ids, project, w)
	if err != nil {
		return nil, err
	}
	p.HasMore = w.HasMore(len(p.Updates))
	return p, nil
}

// Timeline returns one page of the merged timeline of feedIDs with owner
// and parent slugs attached.
func (s *Service) Timeline(ctx context.Context, feedIDs []string, project string, w ranking.Window) ([]model.Update, error) {
	// The first Offset+Limit rows of the union are always among the
	// first Offset+Limit rows of each member.
	want := w.Offset + w.Limit
	lists := make([][]model.Update, 0, len(feedIDs))
	for _, id := range feedIDs {
		l, err := s.store.ListUpdates(ctx, []string{id}, project, want)
		if err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	page := ranking.Page(ranking.MergeTimeline(lists...), w.Offset, w.Limit)
	if err := s.attachOwners(ctx, page); err != nil {
		return nil, err
	}
	return page, nil
}

// attachOwners fills Slug and ParentSlug on each update with at most two
// batch lookups.
func (s *Service) attachOwners(ctx context.Context, updates []model.Update) error {
	if len(updates) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, u := range updates {
		if _, ok := seen[u.FeedID]; !ok {
			seen[u.FeedID] = struct{}{}
			ids = append(ids, u.FeedID)
		}
	}
	owners, err := s.store.GetFeedsByIDs(ctx, ids)
	if err != nil {
		return err
	}

	var parentIDs []string
	for _, o := range owners {
		if o.HasParent() {
			if _, ok := owners[*o.ParentID]; !ok {
				parentIDs = append(parentIDs, *o.ParentID)
			}
		}
	}
	parents := owners
	if len(parentIDs) > 0 {
		extra, err := s.store.GetFeedsByIDs(ctx, parentIDs)
		if err != nil {
			return err
		}
		parents = make(map[string]model.Feed, len(owners)+len(extra))
		for k, v := range owners {
			parents[k] = v
		}
		for k, v := range extra {
			parents[k] = v
		}
	}

	for i := range updates {
		o, ok := owners[updates[i].FeedID]
		if !ok {
			continue
		}
		updates[i].Slug = o.Slug
		if o.HasParent() {
			updates[i].ParentSlug = parents[*o.ParentID].Slug
		}
	}
	return nil
}

// Global returns one page of every update, newest first.
func (s *Service) Global(ctx context.Context, w ranking.Window) (*Page, error) {
	updates, err := s.store.ListGlobal(ctx, w.Limit, w.Offset)
	if err != nil {
		return nil, err
	}
	if updates == nil {
		updates = []model.Update{}
	}
	return &Page{Updates: updates, HasMore: w.HasMore(len(updates)), Window: w}, nil
}

// Active returns the feeds with the most updates in the trailing week.
func (s *Service) Active(ctx context.Context) ([]ranking.ActiveFeed, error) {
	rows, err := s.store.RecentActivity(ctx, s.now().Add(-ranking.ActivityWindow), ranking.ActivityScanCap)
	if err != nil {
		return nil, err
	}
	active := ranking.TopActive(rows, ranking.ActiveCount)
	if active == nil {
		active = []ranking.ActiveFeed{}
	}
	return active, nil
}

// Discover samples feeds that have posted and previews their latest update.
func (s *Service) Discover(ctx context.Context) ([]Discovery, error) {
	all, err := s.store.ListFeedPostCounts(ctx)
	if err != nil {
		return nil, err
	}
	s.rngMu.Lock()
	picked := ranking.Sample(all, ranking.DiscoverCount, s.rng)
	s.rngMu.Unlock()

	out := make([]Discovery, 0, len(picked))
	if len(picked) == 0 {
		return out, nil
	}
	ids := make([]string, len(picked))
	for i, p := range picked {
		ids[i] = p.FeedID
	}
	latest, err := s.store.LatestUpdates(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range picked {
		u := latest[p.FeedID]
		out = append(out, Discovery{
			Slug:          p.Slug,
			LatestProject: u.ProjectName,
			LatestContent: u.Content,
			PostCount:     p.PostCount,
		})
	}
	return out, nil
}

// Stats returns site totals, counting today's posts from UTC midnight.
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	now := s.now().UTC()
	return s.store.Stats(ctx, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC))
}
