package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bryan-buckman/buildlog/internal/model"
)

type updateRow struct {
	ID          string  `db:"id"`
	FeedID      string  `db:"feed_id"`
	ProjectName string  `db:"project_name"`
	Content     string  `db:"content"`
	CreatedAt   int64   `db:"created_at"`
	Slug        *string `db:"slug"`
	ParentSlug  *string `db:"parent_slug"`
}

func (r updateRow) model() model.Update {
	u := model.Update{
		ID:          r.ID,
		FeedID:      r.FeedID,
		ProjectName: r.ProjectName,
		Content:     r.Content,
		CreatedAt:   fromMillis(r.CreatedAt),
	}
	if r.Slug != nil {
		u.Slug = *r.Slug
	}
	if r.ParentSlug != nil {
		u.ParentSlug = *r.ParentSlug
	}
	return u
}

func toUpdates(rows []updateRow) []model.Update {
	out := make([]model.Update, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}

// CreateUpdate inserts an update and bumps the owning feed's last_post_at
// in one transaction.
func (db *DB) CreateUpdate(ctx context.Context, u *model.Update) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := toMillis(u.CreatedAt)
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO updates (id, feed_id, project_name, content, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		u.ID, u.FeedID, u.ProjectName, u.Content, ts,
	); err != nil {
		return fmt.Errorf("insert update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("UPDATE feeds SET last_post_at = ? WHERE id = ?"), ts, u.FeedID); err != nil {
		return fmt.Errorf("update last_post_at: %w", err)
	}
	return tx.Commit()
}

// CountUpdates returns the total number of updates in a feed.
func (db *DB) CountUpdates(ctx context.Context, feedID string) (int, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, db.q("SELECT COUNT(*) FROM updates WHERE feed_id = ?"), feedID); err != nil {
		return 0, fmt.Errorf("count updates: %w", err)
	}
	return n, nil
}

// CountUpdatesSince returns the number of updates a feed created at or after since.
func (db *DB) CountUpdatesSince(ctx context.Context, feedID string, since time.Time) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n,
		db.q("SELECT COUNT(*) FROM updates WHERE feed_id = ? AND created_at >= ?"), feedID, toMillis(since))
	if err != nil {
		return 0, fmt.Errorf("count recent updates: %w", err)
	}
	return n, nil
}

// LatestUpdate returns the most recent update of a feed or ErrNotFound.
func (db *DB) LatestUpdate(ctx context.Context, feedID string) (*model.Update, error) {
	var row updateRow
	err := db.conn.GetContext(ctx, &row, db.q(`
		SELECT id, feed_id, project_name, content, created_at
		FROM updates WHERE feed_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`), feedID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest update: %w", err)
	}
	u := row.model()
	return &u, nil
}

// DeleteUpdate removes one update by ID.
func (db *DB) DeleteUpdate(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, db.q("DELETE FROM updates WHERE id = ?"), id); err != nil {
		return fmt.Errorf("delete update: %w", err)
	}
	return nil
}

// ListUpdates returns up to limit of the newest updates across feedIDs,
// optionally restricted to one project label.
func (db *DB) ListUpdates(ctx context.Context, feedIDs []string, project string, limit int) ([]model.Update, error) {
	if len(feedIDs) == 0 {
		return nil, nil
	}
	query := "SELECT id, feed_id, project_name, content, created_at FROM updates WHERE feed_id IN (?)"
	args := []any{feedIDs}
	if project != "" {
		query += " AND project_name = ?"
		args = append(args, project)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	query, args, err := db.in(query, args...)
	if err != nil {
		return nil, err
	}
	var rows []updateRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	return toUpdates(rows), nil
}

// ListGlobal returns one page of all updates, newest first, tagged with the
// owning slug and, for child feeds, the parent slug.
func (db *DB) ListGlobal(ctx context.Context, limit, offset int) ([]model.Update, error) {
	var rows []updateRow
	err := db.conn.SelectContext(ctx, &rows, db.q(`
		SELECT u.id, u.feed_id, u.project_name, u.content, u.created_at,
			f.slug AS slug, p.slug AS parent_slug
		FROM updates u
		JOIN feeds f ON f.id = u.feed_id
		LEFT JOIN feeds p ON p.id = f.parent_id
		ORDER BY u.created_at DESC, u.id DESC
		LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query global updates: %w", err)
	}
	return toUpdates(rows), nil
}

// RecentActivity returns the owners of up to max updates created at or
// after since, newest first.
func (db *DB) RecentActivity(ctx context.Context, since time.Time, max int) ([]model.Activity, error) {
	var out []model.Activity
	err := db.conn.SelectContext(ctx, &out, db.q(`
		SELECT u.feed_id, f.slug
		FROM updates u
		JOIN feeds f ON f.id = u.feed_id
		WHERE u.created_at >= ?
		ORDER BY u.created_at DESC
		LIMIT ?`), toMillis(since), max)
	if err != nil {
		return nil, fmt.Errorf("query recent activity: %w", err)
	}
	return out, nil
}

// PostTimes returns the creation times of a feed's updates at or after
// since, newest first.
func (db *DB) PostTimes(ctx context.Context, feedID string, since time.Time) ([]time.Time, error) {
	var ms []int64
	err := db.conn.SelectContext(ctx, &ms, db.q(`
		SELECT created_at FROM updates
		WHERE feed_id = ? AND created_at >= ?
		ORDER BY created_at DESC`), feedID, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("query post times: %w", err)
	}
	out := make([]time.Time, 0, len(ms))
	for _, v := range ms {
		out = append(out, fromMillis(v))
	}
	return out, nil
}

// LatestUpdates returns the newest update of each feed in feedIDs that has one.
func (db *DB) LatestUpdates(ctx context.Context, feedIDs []string) (map[string]model.Update, error) {
	out := make(map[string]model.Update, len(feedIDs))
	if len(feedIDs) == 0 {
		return out, nil
	}
	query, args, err := db.in(`
		SELECT u.id, u.feed_id, u.project_name, u.content, u.created_at
		FROM updates u
		WHERE u.feed_id IN (?)
		  AND u.created_at = (SELECT MAX(m.created_at) FROM updates m WHERE m.feed_id = u.feed_id)
		ORDER BY u.created_at DESC, u.id DESC`, feedIDs)
	if err != nil {
		return nil, err
	}
	var rows []updateRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query latest updates: %w", err)
	}
	for _, r := range rows {
		if _, seen := out[r.FeedID]; !seen {
			out[r.FeedID] = r.model()
		}
	}
	return out, nil
}

// ProjectSummaries counts updates per project label across feedIDs, most
// used first.
func (db *DB) ProjectSummaries(ctx context.Context, feedIDs []string) ([]model.ProjectSummary, error) {
	if len(feedIDs) == 0 {
		return nil, nil
	}
	query, args, err := db.in(`
		SELECT project_name, COUNT(*) AS post_count
		FROM updates
		WHERE feed_id IN (?)
		GROUP BY project_name
		ORDER BY post_count DESC, project_name`, feedIDs)
	if err != nil {
		return nil, err
	}
	var out []model.ProjectSummary
	if err := db.conn.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("query project summaries: %w", err)
	}
	return out, nil
}

// Stats returns site totals; PostsToday counts updates since dayStart.
func (db *DB) Stats(ctx context.Context, dayStart time.Time) (model.Stats, error) {
	var s model.Stats
	if err := db.conn.GetContext(ctx, &s.TotalFeeds, "SELECT COUNT(*) FROM feeds"); err != nil {
		return s, fmt.Errorf("count feeds: %w", err)
	}
	if err := db.conn.GetContext(ctx, &s.TotalPosts, "SELECT COUNT(*) FROM updates"); err != nil {
		return s, fmt.Errorf("count updates: %w", err)
	}
	if err := db.conn.GetContext(ctx, &s.PostsToday,
		db.q("SELECT COUNT(*) FROM updates WHERE created_at >= ?"), toMillis(dayStart)); err != nil {
		return s, fmt.Errorf("count today's updates: %w", err)
	}
	return s, nil
}
