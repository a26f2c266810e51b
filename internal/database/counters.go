package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bryan-buckman/buildlog/internal/model"
)

// IncrementCounter atomically bumps the fixed-window counter for key and
// returns the new count and window reset time. An expired window restarts
// at 1. The stored count stops at limit+1 so a rejected caller can tell it
// was over the limit without the counter growing without bound.
func (db *DB) IncrementCounter(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (int, time.Time, error) {
	nowMs := toMillis(now)
	resetMs := toMillis(now.Add(window))
	var row struct {
		Hits    int   `db:"hits"`
		ResetAt int64 `db:"reset_at"`
	}
	err := db.conn.GetContext(ctx, &row, db.q(`
		INSERT INTO rate_limits (bucket, hits, reset_at) VALUES (?, 1, ?)
		ON CONFLICT (bucket) DO UPDATE SET
			hits = CASE
				WHEN rate_limits.reset_at <= ? THEN 1
				WHEN rate_limits.hits > ? THEN rate_limits.hits
				ELSE rate_limits.hits + 1
			END,
			reset_at = CASE
				WHEN rate_limits.reset_at <= ? THEN ?
				ELSE rate_limits.reset_at
			END
		RETURNING hits, reset_at`),
		key, resetMs, nowMs, limit, nowMs, resetMs,
	)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("increment counter: %w", err)
	}
	return row.Hits, fromMillis(row.ResetAt), nil
}

// DeleteCounter removes a counter regardless of its window.
func (db *DB) DeleteCounter(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, db.q("DELETE FROM rate_limits WHERE bucket = ?"), key); err != nil {
		return fmt.Errorf("delete counter: %w", err)
	}
	return nil
}

// DeleteExpiredCounters reaps counters whose window has elapsed.
func (db *DB) DeleteExpiredCounters(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, db.q("DELETE FROM rate_limits WHERE reset_at <= ?"), toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired counters: %w", err)
	}
	return res.RowsAffected()
}

// PutRecoveryCode stores or replaces the pending code for an email.
func (db *DB) PutRecoveryCode(ctx context.Context, rc model.RecoveryCode) error {
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO recovery_codes (email, code_hash, slug, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			code_hash = excluded.code_hash,
			slug = excluded.slug,
			expires_at = excluded.expires_at`),
		rc.Email, rc.CodeHash, rc.Slug, toMillis(rc.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("put recovery code: %w", err)
	}
	return nil
}

// GetRecoveryCode returns the unexpired code for email or ErrNotFound.
func (db *DB) GetRecoveryCode(ctx context.Context, email string, now time.Time) (*model.RecoveryCode, error) {
	var row struct {
		Email     string `db:"email"`
		CodeHash  string `db:"code_hash"`
		Slug      string `db:"slug"`
		ExpiresAt int64  `db:"expires_at"`
	}
	err := db.conn.GetContext(ctx, &row, db.q(`
		SELECT email, code_hash, slug, expires_at FROM recovery_codes
		WHERE email = ? AND expires_at > ?`), email, toMillis(now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recovery code: %w", err)
	}
	return &model.RecoveryCode{
		Email:     row.Email,
		CodeHash:  row.CodeHash,
		Slug:      row.Slug,
		ExpiresAt: fromMillis(row.ExpiresAt),
	}, nil
}

// DeleteRecoveryCode consumes the pending code for email.
func (db *DB) DeleteRecoveryCode(ctx context.Context, email string) error {
	if _, err := db.conn.ExecContext(ctx, db.q("DELETE FROM recovery_codes WHERE email = ?"), email); err != nil {
		return fmt.Errorf("delete recovery code: %w", err)
	}
	return nil
}

// DeleteExpiredRecoveryCodes reaps codes past their expiry.
func (db *DB) DeleteExpiredRecoveryCodes(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, db.q("DELETE FROM recovery_codes WHERE expires_at <= ?"), toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired recovery codes: %w", err)
	}
	return res.RowsAffected()
}
