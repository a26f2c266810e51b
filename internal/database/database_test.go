package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/bryan-buckman/buildlog/internal/model"
)

var ignoreFeedTimes = cmpopts.IgnoreFields(model.Feed{}, "CreatedAt", "LastPostAt")

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

func mustFeed(t *testing.T, db *DB, slug string) *model.Feed {
	t.Helper()
	f := &model.Feed{Slug: slug, TokenHash: "hash-" + slug}
	if err := db.CreateFeed(context.Background(), f); err != nil {
		t.Fatalf("create feed %s: %v", slug, err)
	}
	return f
}

func mustUpdate(t *testing.T, db *DB, feedID, project string, at time.Time) *model.Update {
	t.Helper()
	u := &model.Update{FeedID: feedID, ProjectName: project, Content: "did " + project, CreatedAt: at}
	if err := db.CreateUpdate(context.Background(), u); err != nil {
		t.Fatalf("create update: %v", err)
	}
	return u
}

func TestFeedCRUD(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	feed := model.Feed{
		Slug:        "alice",
		TokenHash:   "h",
		Description: ptr("shipping things"),
		Email:       ptr("alice@example.com"),
	}
	if err := db.CreateFeed(ctx, &feed); err != nil {
		t.Fatalf("create: %v", err)
	}
	if feed.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := db.GetFeedBySlug(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(feed, *got, ignoreFeedTimes); diff != "" {
		t.Errorf("GetFeedBySlug mismatch (-want +got):\n%s", diff)
	}

	byEmail, err := db.GetFeedByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != feed.ID {
		t.Errorf("GetFeedByEmail returned %s, want %s", byEmail.ID, feed.ID)
	}

	if _, err := db.GetFeedBySlug(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFeedBySlug(nobody) err = %v, want ErrNotFound", err)
	}
}

func TestUpdateTokenHash(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	mustFeed(t, db, "alice")

	if err := db.UpdateTokenHash(ctx, "alice", "rotated"); err != nil {
		t.Fatalf("UpdateTokenHash: %v", err)
	}
	got, err := db.GetFeedBySlug(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TokenHash != "rotated" {
		t.Errorf("TokenHash = %q, want rotated", got.TokenHash)
	}

	if err := db.UpdateTokenHash(ctx, "nobody", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTokenHash(nobody) err = %v, want ErrNotFound", err)
	}
}

func TestCreateFeedDuplicateSlug(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	mustFeed(t, db, "taken")

	err := db.CreateFeed(ctx, &model.Feed{Slug: "taken", TokenHash: "x"})
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("second claim err = %v, want ErrSlugTaken", err)
	}
}

func TestCreateFeedConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	const racers = 2
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.CreateFeed(ctx, &model.Feed{Slug: "race", TokenHash: "h"})
		}(i)
	}
	wg.Wait()

	var ok, taken int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlugTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || taken != 1 {
		t.Errorf("got %d successes and %d slug_taken, want 1 and 1", ok, taken)
	}
}

func TestParentLinks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	parent := mustFeed(t, db, "alice")
	child := mustFeed(t, db, "alice-mobile")
	mustFeed(t, db, "bob")

	if err := db.SetParent(ctx, child.ID, &parent.ID); err != nil {
		t.Fatalf("set parent: %v", err)
	}
	n, err := db.CountChildren(ctx, parent.ID)
	if err != nil || n != 1 {
		t.Fatalf("CountChildren = %d, %v; want 1", n, err)
	}
	kids, err := db.ListChildren(ctx, parent.ID)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(kids) != 1 || kids[0].Slug != "alice-mobile" {
		t.Errorf("ListChildren = %+v", kids)
	}

	if err := db.SetParent(ctx, child.ID, nil); err != nil {
		t.Fatalf("clear parent: %v", err)
	}
	if n, _ := db.CountChildren(ctx, parent.ID); n != 0 {
		t.Errorf("CountChildren after clear = %d", n)
	}
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	f := mustFeed(t, db, "carol")

	if err := db.UpdateProfile(ctx, f.ID, model.ProfilePatch{
		XHandle:     ptr("carol"),
		Description: ptr("hello"),
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	// Clear the handle, leave the description.
	if err := db.UpdateProfile(ctx, f.ID, model.ProfilePatch{XHandle: ptr("")}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err := db.GetFeedBySlug(ctx, "carol")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.XHandle != nil {
		t.Errorf("XHandle = %q, want nil", *got.XHandle)
	}
	if got.Description == nil || *got.Description != "hello" {
		t.Errorf("Description = %v, want hello", got.Description)
	}
}

func TestUpdatesQueries(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := mustFeed(t, db, "alice")
	mobile := mustFeed(t, db, "alice-mobile")
	if err := db.SetParent(ctx, mobile.ID, &alice.ID); err != nil {
		t.Fatalf("set parent: %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u1 := mustUpdate(t, db, alice.ID, "api", base)
	u2 := mustUpdate(t, db, mobile.ID, "ios", base.Add(time.Minute))
	u3 := mustUpdate(t, db, alice.ID, "api", base.Add(2*time.Minute))

	latest, err := db.LatestUpdate(ctx, alice.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != u3.ID {
		t.Errorf("LatestUpdate = %s, want %s", latest.ID, u3.ID)
	}

	global, err := db.ListGlobal(ctx, 10, 0)
	if err != nil {
		t.Fatalf("global: %v", err)
	}
	type row struct{ ID, Slug, ParentSlug string }
	var gotRows []row
	for _, u := range global {
		gotRows = append(gotRows, row{u.ID, u.Slug, u.ParentSlug})
	}
	wantRows := []row{{u3.ID, "alice", ""}, {u2.ID, "alice-mobile", "alice"}, {u1.ID, "alice", ""}}
	if diff := cmp.Diff(wantRows, gotRows); diff != "" {
		t.Errorf("ListGlobal mismatch (-want +got):\n%s", diff)
	}

	filtered, err := db.ListUpdates(ctx, []string{alice.ID, mobile.ID}, "ios", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != u2.ID {
		t.Errorf("ListUpdates(project=ios) = %+v", filtered)
	}

	summaries, err := db.ProjectSummaries(ctx, []string{alice.ID})
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if diff := cmp.Diff([]model.ProjectSummary{{Name: "api", Count: 2}}, summaries); diff != "" {
		t.Errorf("ProjectSummaries mismatch (-want +got):\n%s", diff)
	}

	latestByFeed, err := db.LatestUpdates(ctx, []string{alice.ID, mobile.ID})
	if err != nil {
		t.Fatalf("latest updates: %v", err)
	}
	if latestByFeed[alice.ID].ID != u3.ID || latestByFeed[mobile.ID].ID != u2.ID {
		t.Errorf("LatestUpdates = %+v", latestByFeed)
	}

	times, err := db.PostTimes(ctx, alice.ID, base.Add(time.Second))
	if err != nil {
		t.Fatalf("post times: %v", err)
	}
	if diff := cmp.Diff([]time.Time{u3.CreatedAt.UTC()}, times); diff != "" {
		t.Errorf("PostTimes mismatch (-want +got):\n%s", diff)
	}

	stats, err := db.Stats(ctx, base.Add(30*time.Second))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if diff := cmp.Diff(model.Stats{TotalFeeds: 2, TotalPosts: 3, PostsToday: 2}, stats); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}

	got, _ := db.GetFeedBySlug(ctx, "alice")
	if got.LastPostAt == nil || !got.LastPostAt.Equal(u3.CreatedAt) {
		t.Errorf("LastPostAt = %v, want %v", got.LastPostAt, u3.CreatedAt)
	}

	if err := db.DeleteUpdate(ctx, u3.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := db.CountUpdates(ctx, alice.ID); n != 1 {
		t.Errorf("CountUpdates after delete = %d, want 1", n)
	}
}

func TestIncrementCounter(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 4; i++ {
		n, _, err := db.IncrementCounter(ctx, "k", 3, time.Minute, now)
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		want := i
		if want > 4 {
			want = 4
		}
		if n != want {
			t.Errorf("call %d: count = %d, want %d", i, n, want)
		}
	}
	// Saturated at limit+1.
	if n, _, _ := db.IncrementCounter(ctx, "k", 3, time.Minute, now); n != 4 {
		t.Errorf("saturated count = %d, want 4", n)
	}
	// Independent key.
	if n, _, _ := db.IncrementCounter(ctx, "other", 3, time.Minute, now); n != 1 {
		t.Errorf("other key count = %d, want 1", n)
	}
	// New window.
	later := now.Add(time.Minute)
	n, reset, err := db.IncrementCounter(ctx, "k", 3, time.Minute, later)
	if err != nil || n != 1 || !reset.Equal(later.Add(time.Minute)) {
		t.Errorf("after window: count=%d reset=%v err=%v", n, reset, err)
	}

	reaped, err := db.DeleteExpiredCounters(ctx, later.Add(2*time.Minute))
	if err != nil || reaped != 2 {
		t.Errorf("DeleteExpiredCounters = %d, %v; want 2", reaped, err)
	}
}

func TestRecoveryCodes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rc := model.RecoveryCode{Email: "a@b.c", CodeHash: "h1", Slug: "alice", ExpiresAt: now.Add(15 * time.Minute)}
	if err := db.PutRecoveryCode(ctx, rc); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc.CodeHash = "h2"
	if err := db.PutRecoveryCode(ctx, rc); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := db.GetRecoveryCode(ctx, "a@b.c", now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(rc, *got); diff != "" {
		t.Errorf("GetRecoveryCode mismatch (-want +got):\n%s", diff)
	}

	if _, err := db.GetRecoveryCode(ctx, "a@b.c", now.Add(15*time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired code err = %v, want ErrNotFound", err)
	}
	if n, _ := db.DeleteExpiredRecoveryCodes(ctx, now.Add(time.Hour)); n != 1 {
		t.Errorf("DeleteExpiredRecoveryCodes = %d, want 1", n)
	}
}
