// Package auth issues, verifies and rotates the bearer tokens that guard
// writes to a feed.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/bryan-buckman/buildlog/internal/apperr"
	"github.com/bryan-buckman/buildlog/internal/database"
	"github.com/bryan-buckman/buildlog/internal/model"
)

const (
	// TokenLength is the number of characters in an issued token.
	TokenLength = 32
	// DefaultCost is the bcrypt cost used when none is configured.
	DefaultCost = 10

	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// FeedStore is the slice of storage the verifier needs.
type FeedStore interface {
	GetFeedBySlug(ctx context.Context, slug string) (*model.Feed, error)
	UpdateTokenHash(ctx context.Context, slug, tokenHash string) error
}

// Verifier owns the credential lifecycle of feeds.
type Verifier struct {
	store FeedStore
	cost  int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewVerifier returns a Verifier hashing with the given bcrypt cost.
// A cost of zero selects DefaultCost.
func NewVerifier(store FeedStore, cost int) *Verifier {
	if cost == 0 {
		cost = DefaultCost
	}
	return &Verifier{store: store, cost: cost}
}

// Issue generates a new random token and its bcrypt hash.
func (v *Verifier) Issue() (token, hash string, err error) {
	token, err = randomString(TokenLength, alphabet)
	if err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(token), v.cost)
	if err != nil {
		return "", "", fmt.Errorf("hash token: %w", err)
	}
	return token, string(h), nil
}

// Hash returns the bcrypt hash of an arbitrary secret, such as a recovery code.
func (v *Verifier) Hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), v.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

// Verify reports whether token matches hash.
func (v *Verifier) Verify(token, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// Reissue rotates the token of slug. The previous token stops working
// as soon as the new hash is stored.
func (v *Verifier) Reissue(ctx context.Context, slug string) (string, error) {
	token, hash, err := v.Issue()
	if err != nil {
		return "", err
	}
	if err := v.store.UpdateTokenHash(ctx, slug, hash); err != nil {
		return "", fmt.Errorf("store rotated token: %w", err)
	}
	return token, nil
}

// Authenticate resolves the feed for slug and checks the bearer token in
// authorization. Unknown slugs and bad tokens yield the same unauthorized
// error.
func (v *Verifier) Authenticate(ctx context.Context, slug, authorization string) (*model.Feed, error) {
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || token == "" {
		return nil, apperr.Unauthorized()
	}

	feed, err := v.store.GetFeedBySlug(ctx, slug)
	if errors.Is(err, database.ErrNotFound) {
		// Burn a comparison so unknown slugs take as long as wrong tokens.
		_ = bcrypt.CompareHashAndPassword(v.dummy(), []byte(token))
		return nil, apperr.Unauthorized()
	}
	if err != nil {
		return nil, err
	}
	if !v.Verify(token, feed.TokenHash) {
		return nil, apperr.Unauthorized()
	}
	return feed, nil
}

func (v *Verifier) dummy() []byte {
	v.dummyOnce.Do(func() {
		v.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("buildlog-dummy-token"), v.cost)
	})
	return v.dummyHash
}

// GenerateCode returns a six digit code in the range 100000-999999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func randomString(n int, chars string) (string, error) {
	max := big.NewInt(int64(len(chars)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = chars[idx.Int64()]
	}
	return string(b), nil
}
