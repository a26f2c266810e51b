// Package feed implements the feed operations behind the HTTP API: claims,
// posts, profile edits, the one-level feed hierarchy and the read-side
// aggregates built from package ranking.
package feed

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bryan-buckman/buildlog/internal/apperr"
	"github.com/bryan-buckman/buildlog/internal/database"
	"github.com/bryan-buckman/buildlog/internal/model"
	"github.com/bryan-buckman/buildlog/internal/ratelimit"
	"github.com/bryan-buckman/buildlog/internal/validate"
)

// Store is the storage the service reads and writes.
type Store interface {
	CreateFeed(ctx context.Context, feed *model.Feed) error
	GetFeedBySlug(ctx context.Context, slug string) (*model.Feed, error)
	GetFeedsByIDs(ctx context.Context, ids []string) (map[string]model.Feed, error)
	ListChildren(ctx context.Context, parentID string) ([]model.Feed, error)
	CountChildren(ctx context.Context, feedID string) (int, error)
	SetParent(ctx context.Context, feedID string, parentID *string) error
	UpdateProfile(ctx context.Context, feedID string, patch model.ProfilePatch) error
	ListFeedPostCounts(ctx context.Context) ([]model.FeedPostCount, error)

	CreateUpdate(ctx context.Context, u *model.Update) error
	CountUpdatesSince(ctx context.Context, feedID string, since time.Time) (int, error)
	LatestUpdate(ctx context.Context, feedID string) (*model.Update, error)
	DeleteUpdate(ctx context.Context, id string) error
	ListUpdates(ctx context.Context, feedIDs []string, project string, limit int) ([]model.Update, error)
	ListGlobal(ctx context.Context, limit, offset int) ([]model.Update, error)
	RecentActivity(ctx context.Context, since time.Time, max int) ([]model.Activity, error)
	PostTimes(ctx context.Context, feedID string, since time.Time) ([]time.Time, error)
	LatestUpdates(ctx context.Context, feedIDs []string) (map[string]model.Update, error)
	ProjectSummaries(ctx context.Context, feedIDs []string) ([]model.ProjectSummary, error)
	Stats(ctx context.Context, dayStart time.Time) (model.Stats, error)
}

// TokenIssuer mints a token and its stored hash.
type TokenIssuer interface {
	Issue() (token, hash string, err error)
}

// Notifier is told about every new update. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, ev model.PostEvent)
}

// Service implements feed operations over a Store.
type Service struct {
	store    Store
	tokens   TokenIssuer
	notifier Notifier
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService creates a Service. notifier may be nil.
func NewService(store Store, tokens TokenIssuer, notifier Notifier) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// CheckSlug reports whether slug can be claimed, with alternatives when
// it cannot.
func (s *Service) CheckSlug(ctx context.Context, slug string) (bool, []string, error) {
	if err := validate.Slug(slug); err != nil {
		return false, nil, err
	}
	_, err := s.store.GetFeedBySlug(ctx, slug)
	if errors.Is(err, database.ErrNotFound) {
		return true, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return false, validate.Suggestions(slug), nil
}

// Claim registers slug and returns its plaintext token. The token is
// never stored and cannot be shown again.
func (s *Service) Claim(ctx context.Context, slug string, email *string) (string, error) {
	if err := validate.Slug(slug); err != nil {
		return "", err
	}
	f := &model.Feed{Slug: slug}
	if email != nil {
		e, err := validate.Email(*email)
		if err != nil {
			return "", err
		}
		f.Email = &e
	}

	token, hash, err := s.tokens.Issue()
	if err != nil {
		return "", err
	}
	f.TokenHash = hash
	if err := s.store.CreateFeed(ctx, f); err != nil {
		if errors.Is(err, database.ErrSlugTaken) {
			return "", apperr.SlugTaken(validate.Suggestions(slug))
		}
		return "", err
	}
	return token, nil
}

// Post appends an update to f. At most ratelimit.Post.Limit updates are
// accepted per feed in any trailing ratelimit.Post.Window.
func (s *Service) Post(ctx context.Context, f *model.Feed, project, content string) (*model.Update, error) {
	if project == "" || content == "" {
		return nil, apperr.Validation(apperr.CodeMissingFields, "Missing project or update")
	}
	project = validate.Project(project)
	content = validate.Content(content)
	if project == "" || content == "" {
		return nil, apperr.Validation(apperr.CodeEmptyFields, "Project and update cannot be empty")
	}

	now := s.now().UTC()
	n, err := s.store.CountUpdatesSince(ctx, f.ID, now.Add(-ratelimit.Post.Window))
	if err != nil {
		return nil, err
	}
	if n >= ratelimit.Post.Limit {
		return nil, apperr.RateLimited(ratelimit.Post.Name, "Daily post limit reached (50/day)")
	}

	u := &model.Update{FeedID: f.ID, ProjectName: project, Content: content, CreatedAt: now}
	if err := s.store.CreateUpdate(ctx, u); err != nil {
		return nil, err
	}
	u.Slug = f.Slug

	if s.notifier != nil {
		s.notifier.Notify(ctx, model.PostEvent{
			Slug:      f.Slug,
			Project:   u.ProjectName,
			Content:   u.Content,
			CreatedAt: u.CreatedAt,
		})
	}
	return u, nil
}

// Latest returns f's most recent update.
func (s *Service) Latest(ctx context.Context, f *model.Feed) (*model.Update, error) {
	u, err := s.store.LatestUpdate(ctx, f.ID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeNoPosts, "No posts to show")
	}
	return u, err
}

// DeleteLatest removes and returns f's most recent update. Older updates
// cannot be deleted.
func (s *Service) DeleteLatest(ctx context.Context, f *model.Feed) (*model.Update, error) {
	u, err := s.Latest(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteUpdate(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateProfile validates and applies patch, returning the names of the
// fields written. Empty strings clear a field.
func (s *Service) UpdateProfile(ctx context.Context, f *model.Feed, patch model.ProfilePatch) ([]string, error) {
	if patch.Empty() {
		return nil, apperr.Validation(apperr.CodeNoFields, "No fields to update")
	}

	clean := model.ProfilePatch{}
	if v := patch.XHandle; v != nil {
		h := ""
		if *v != "" {
			var err error
			if h, err = validate.XHandle(*v); err != nil {
				return nil, err
			}
		}
		clean.XHandle = &h
	}
	if v := patch.WebsiteURL; v != nil {
		u := ""
		if *v != "" {
			var err error
			if u, err = validate.WebsiteURL(*v); err != nil {
				return nil, err
			}
		}
		clean.WebsiteURL = &u
	}
	if v := patch.Description; v != nil {
		d := ""
		if *v != "" {
			if d = validate.Description(*v); d == "" {
				return nil, apperr.Validation(apperr.CodeEmptyDescription, "Description cannot be empty")
			}
		}
		clean.Description = &d
	}
	if v := patch.Email; v != nil {
		e := ""
		if *v != "" {
			var err error
			if e, err = validate.Email(*v); err != nil {
				return nil, err
			}
		}
		clean.Email = &e
	}

	if err := s.store.UpdateProfile(ctx, f.ID, clean); err != nil {
		return nil, err
	}
	return clean.Fields(), nil
}
