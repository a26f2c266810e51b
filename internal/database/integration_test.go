//go:build integration

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bryan-buckman/buildlog/internal/model"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("buildlog_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := NewPostgres(connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.conn.ExecContext(s.ctx, "DELETE FROM updates")
	_, _ = s.db.conn.ExecContext(s.ctx, "DELETE FROM feeds")
	_, _ = s.db.conn.ExecContext(s.ctx, "DELETE FROM rate_limits")
	_, _ = s.db.conn.ExecContext(s.ctx, "DELETE FROM recovery_codes")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestDatabaseType() {
	s.Equal("PostgreSQL", s.db.DatabaseType())
	s.True(s.db.SupportsHighConcurrency())
	s.NoError(s.db.Ping(s.ctx))
}

func (s *PostgresIntegrationSuite) TestDuplicateSlug() {
	s.Require().NoError(s.db.CreateFeed(s.ctx, &model.Feed{Slug: "alice", TokenHash: "h"}))

	err := s.db.CreateFeed(s.ctx, &model.Feed{Slug: "alice", TokenHash: "h"})
	s.True(errors.Is(err, ErrSlugTaken), "got %v", err)
}

func (s *PostgresIntegrationSuite) TestMergedQueries() {
	parent := &model.Feed{Slug: "alice", TokenHash: "h"}
	child := &model.Feed{Slug: "alice-mobile", TokenHash: "h"}
	s.Require().NoError(s.db.CreateFeed(s.ctx, parent))
	s.Require().NoError(s.db.CreateFeed(s.ctx, child))
	s.Require().NoError(s.db.SetParent(s.ctx, child.ID, &parent.ID))

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, feedID := range []string{parent.ID, child.ID, parent.ID} {
		u := &model.Update{FeedID: feedID, ProjectName: "p", Content: "c", CreatedAt: base.Add(time.Duration(i) * time.Second)}
		s.Require().NoError(s.db.CreateUpdate(s.ctx, u))
	}

	updates, err := s.db.ListUpdates(s.ctx, []string{parent.ID, child.ID}, "", 10)
	s.Require().NoError(err)
	s.Len(updates, 3)

	global, err := s.db.ListGlobal(s.ctx, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(global, 3)
	s.Equal("alice-mobile", global[1].Slug)
	s.Equal("alice", global[1].ParentSlug)

	latest, err := s.db.LatestUpdates(s.ctx, []string{parent.ID, child.ID})
	s.Require().NoError(err)
	s.Len(latest, 2)

	counts, err := s.db.ListFeedPostCounts(s.ctx)
	s.Require().NoError(err)
	s.Len(counts, 2)
}

func (s *PostgresIntegrationSuite) TestCounterWindow() {
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, _, err := s.db.IncrementCounter(s.ctx, "claim:1.2.3.4", 3, time.Hour, now)
		s.Require().NoError(err)
	}
	n, _, err := s.db.IncrementCounter(s.ctx, "claim:1.2.3.4", 3, time.Hour, now)
	s.Require().NoError(err)
	s.Equal(4, n)

	n, _, err = s.db.IncrementCounter(s.ctx, "claim:1.2.3.4", 3, time.Hour, now.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *PostgresIntegrationSuite) TestRecoveryCodeUpsert() {
	expires := time.Now().Add(15 * time.Minute)
	rc := model.RecoveryCode{Email: "a@b.c", CodeHash: "one", Slug: "alice", ExpiresAt: expires}
	s.Require().NoError(s.db.PutRecoveryCode(s.ctx, rc))
	rc.CodeHash = "two"
	s.Require().NoError(s.db.PutRecoveryCode(s.ctx, rc))

	got, err := s.db.GetRecoveryCode(s.ctx, "a@b.c", time.Now())
	s.Require().NoError(err)
	s.Equal("two", got.CodeHash)
}
