package recovery

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/bryan-buckman/buildlog/internal/model"
)

// Store persists pending codes and failure counters.
type Store interface {
	GetFeedByEmail(ctx context.Context, email string) (*model.Feed, error)
	PutRecoveryCode(ctx context.Context, rc model.RecoveryCode) error
	GetRecoveryCode(ctx context.Context, email string, now time.Time) (*model.RecoveryCode, error)
	DeleteRecoveryCode(ctx context.Context, email string) error
	IncrementCounter(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (int, time.Time, error)
	DeleteCounter(ctx context.Context, key string) error
}

// Credentials hashes codes and rotates feed tokens.
type Credentials interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
	Reissue(ctx context.Context, slug string) (string, error)
}

// Mailer delivers a recovery code out of band and reports whether the
// provider accepted it.
type Mailer interface {
	Send(ctx context.Context, email, code, slug string) bool
}
