// Package database provides storage backends for the build log.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/bryan-buckman/buildlog/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrSlugTaken is returned when a claim loses the unique-slug race.
	ErrSlugTaken = errors.New("slug taken")
)

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL connections satisfy it through *DB.
type Store interface {
	Close() error
	Ping(ctx context.Context) error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can be shared by
	// several server instances (PostgreSQL). SQLite is local to one process.
	SupportsHighConcurrency() bool

	// Feed operations
	CreateFeed(ctx context.Context, feed *model.Feed) error
	GetFeedBySlug(ctx context.Context, slug string) (*model.Feed, error)
	GetFeedByEmail(ctx context.Context, email string) (*model.Feed, error)
	GetFeedsByIDs(ctx context.Context, ids []string) (map[string]model.Feed, error)
	ListChildren(ctx context.Context, parentID string) ([]model.Feed, error)
	CountChildren(ctx context.Context, feedID string) (int, error)
	SetParent(ctx context.Context, feedID string, parentID *string) error
	UpdateProfile(ctx context.Context, feedID string, patch model.ProfilePatch) error
	UpdateTokenHash(ctx context.Context, slug, tokenHash string) error
	ListFeedPostCounts(ctx context.Context) ([]model.FeedPostCount, error)

	// Update operations
	CreateUpdate(ctx context.Context, u *model.Update) error
	CountUpdates(ctx context.Context, feedID string) (int, error)
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

	// Counter operations
	IncrementCounter(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (int, time.Time, error)
	DeleteCounter(ctx context.Context, key string) error
	DeleteExpiredCounters(ctx context.Context, now time.Time) (int64, error)

	// Recovery code operations
	PutRecoveryCode(ctx context.Context, rc model.RecoveryCode) error
	GetRecoveryCode(ctx context.Context, email string, now time.Time) (*model.RecoveryCode, error)
	DeleteRecoveryCode(ctx context.Context, email string) error
	DeleteExpiredRecoveryCodes(ctx context.Context, now time.Time) (int64, error)
}
