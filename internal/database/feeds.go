package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bryan-buckman/buildlog/internal/model"
)

const feedColumns = `id, slug, token_hash, description, x_handle, website_url, email, parent_id, created_at, last_post_at`

type feedRow struct {
	ID          string  `db:"id"`
	Slug        string  `db:"slug"`
	TokenHash   string  `db:"token_hash"`
	Description *string `db:"description"`
	XHandle     *string `db:"x_handle"`
	WebsiteURL  *string `db:"website_url"`
	Email       *string `db:"email"`
	ParentID    *string `db:"parent_id"`
	CreatedAt   int64   `db:"created_at"`
	LastPostAt  *int64  `db:"last_post_at"`
}

func (r feedRow) model() model.Feed {
	return model.Feed{
		ID:          r.ID,
		Slug:        r.Slug,
		TokenHash:   r.TokenHash,
		Description: r.Description,
		XHandle:     r.XHandle,
		WebsiteURL:  r.WebsiteURL,
		Email:       r.Email,
		ParentID:    r.ParentID,
		CreatedAt:   fromMillis(r.CreatedAt),
		LastPostAt:  fromNullMillis(r.LastPostAt),
	}
}

// CreateFeed inserts a new feed and populates its ID and CreatedAt.
// A concurrent or repeated claim of the same slug returns ErrSlugTaken.
func (db *DB) CreateFeed(ctx context.Context, feed *model.Feed) error {
	if feed.ID == "" {
		feed.ID = uuid.NewString()
	}
	if feed.CreatedAt.IsZero() {
		feed.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO feeds (id, slug, token_hash, description, x_handle, website_url, email, parent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		feed.ID, feed.Slug, feed.TokenHash, feed.Description, feed.XHandle, feed.WebsiteURL,
		feed.Email, feed.ParentID, toMillis(feed.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("insert feed: %w", err)
	}
	return nil
}

// GetFeedBySlug returns a feed by slug or ErrNotFound.
func (db *DB) GetFeedBySlug(ctx context.Context, slug string) (*model.Feed, error) {
	return db.getFeed(ctx, "slug", slug)
}

// GetFeedByEmail returns the first feed registered with email or ErrNotFound.
func (db *DB) GetFeedByEmail(ctx context.Context, email string) (*model.Feed, error) {
	return db.getFeed(ctx, "email", email)
}

func (db *DB) getFeed(ctx context.Context, column, value string) (*model.Feed, error) {
	var row feedRow
	query := fmt.Sprintf("SELECT %s FROM feeds WHERE %s = ? ORDER BY created_at LIMIT 1", feedColumns, column)
	err := db.conn.GetContext(ctx, &row, db.q(query), value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get feed by %s: %w", column, err)
	}
	f := row.model()
	return &f, nil
}

// GetFeedsByIDs batch-loads feeds keyed by ID. Unknown IDs are skipped.
func (db *DB) GetFeedsByIDs(ctx context.Context, ids []string) (map[string]model.Feed, error) {
	out := make(map[string]model.Feed, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := db.in("SELECT "+feedColumns+" FROM feeds WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	var rows []feedRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query feeds by id: %w", err)
	}
	for _, r := range rows {
		out[r.ID] = r.model()
	}
	return out, nil
}

// ListChildren returns the direct children of a feed ordered by slug.
func (db *DB) ListChildren(ctx context.Context, parentID string) ([]model.Feed, error) {
	var rows []feedRow
	err := db.conn.SelectContext(ctx, &rows,
		db.q("SELECT "+feedColumns+" FROM feeds WHERE parent_id = ? ORDER BY slug"), parentID)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	feeds := make([]model.Feed, 0, len(rows))
	for _, r := range rows {
		feeds = append(feeds, r.model())
	}
	return feeds, nil
}

// CountChildren returns how many feeds name feedID as their parent.
func (db *DB) CountChildren(ctx context.Context, feedID string) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, db.q("SELECT COUNT(*) FROM feeds WHERE parent_id = ?"), feedID)
	if err != nil {
		return 0, fmt.Errorf("count children: %w", err)
	}
	return n, nil
}

// SetParent writes or clears (nil) a feed's parent link.
func (db *DB) SetParent(ctx context.Context, feedID string, parentID *string) error {
	_, err := db.conn.ExecContext(ctx, db.q("UPDATE feeds SET parent_id = ? WHERE id = ?"), parentID, feedID)
	if err != nil {
		return fmt.Errorf("set parent: %w", err)
	}
	return nil
}

// UpdateProfile applies the non-nil fields of patch. Empty strings are
// stored as NULL.
func (db *DB) UpdateProfile(ctx context.Context, feedID string, patch model.ProfilePatch) error {
	var sets []string
	var args []any
	add := func(column string, v *string) {
		if v == nil {
			return
		}
		sets = append(sets, column+" = ?")
		if *v == "" {
			args = append(args, nil)
		} else {
			args = append(args, *v)
		}
	}
	add("x_handle", patch.XHandle)
	add("website_url", patch.WebsiteURL)
	add("description", patch.Description)
	add("email", patch.Email)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, feedID)
	query := "UPDATE feeds SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := db.conn.ExecContext(ctx, db.q(query), args...); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// UpdateTokenHash replaces the stored credential hash for slug.
func (db *DB) UpdateTokenHash(ctx context.Context, slug, tokenHash string) error {
	res, err := db.conn.ExecContext(ctx, db.q("UPDATE feeds SET token_hash = ? WHERE slug = ?"), tokenHash, slug)
	if err != nil {
		return fmt.Errorf("update token hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update token hash: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFeedPostCounts returns every feed with its total number of updates.
func (db *DB) ListFeedPostCounts(ctx context.Context) ([]model.FeedPostCount, error) {
	var out []model.FeedPostCount
	err := db.conn.SelectContext(ctx, &out, `
		SELECT f.id, f.slug,
			(SELECT COUNT(*) FROM updates u WHERE u.feed_id = f.id) AS post_count
		FROM feeds f`)
	if err != nil {
		return nil, fmt.Errorf("query feed post counts: %w", err)
	}
	return out, nil
}
