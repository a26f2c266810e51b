// Package ranking holds the pure aggregation rules behind the public
// widgets: activity leaders, posting streaks, discovery samples and merged
// timelines. Storage access lives in package feed.
package ranking

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/bryan-buckman/buildlog/internal/model"
)

// Windows and sizes used by the public aggregates.
const (
	ActivityWindow  = 7 * 24 * time.Hour
	ActivityScanCap = 5000
	ActiveCount     = 5
	StreakWindow    = 365 * 24 * time.Hour
	DiscoverCount   = 3
)

// ActiveFeed is one entry of the activity leaderboard.
type ActiveFeed struct {
	Slug      string `json:"slug"`
	PostCount int    `json:"post_count"`
}

// TopActive counts rows per feed and returns the n busiest feeds, most
// posts first. Equal counts keep the order in which each feed first
// appears in rows.
func TopActive(rows []model.Activity, n int) []ActiveFeed {
	index := make(map[string]int)
	var out []ActiveFeed
	for _, r := range rows {
		i, ok := index[r.FeedID]
		if !ok {
			i = len(out)
			index[r.FeedID] = i
			out = append(out, ActiveFeed{Slug: r.Slug})
		}
		out[i].PostCount++
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].PostCount > out[b].PostCount
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Streak returns the number of consecutive UTC calendar days, ending today
// or yesterday, on which at least one of times falls.
func Streak(times []time.Time, now time.Time) int {
	if len(times) == 0 {
		return 0
	}
	seen := make(map[time.Time]struct{}, len(times))
	days := make([]time.Time, 0, len(times))
	for _, t := range times {
		d := utcDay(t)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	today := utcDay(now)
	yesterday := today.AddDate(0, 0, -1)
	if !days[0].Equal(today) && !days[0].Equal(yesterday) {
		return 0
	}

	streak := 1
	for i := 1; i < len(days); i++ {
		if !days[i].Equal(days[i-1].AddDate(0, 0, -1)) {
			break
		}
		streak++
	}
	return streak
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Sample draws up to n feeds uniformly at random from the candidates that
// have at least one post.
func Sample(candidates []model.FeedPostCount, n int, rng *rand.Rand) []model.FeedPostCount {
	type keyed struct {
		feed model.FeedPostCount
		key  float64
	}
	pool := make([]keyed, 0, len(candidates))
	for _, c := range candidates {
		if c.PostCount > 0 {
			pool = append(pool, keyed{feed: c, key: rng.Float64()})
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].key < pool[j].key })
	if len(pool) > n {
		pool = pool[:n]
	}
	out := make([]model.FeedPostCount, len(pool))
	for i, k := range pool {
		out[i] = k.feed
	}
	return out
}

// MergeTimeline unions update lists and orders them newest first. Updates
// sharing a timestamp are ordered by descending ID so pages are stable.
func MergeTimeline(lists ...[]model.Update) []model.Update {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]model.Update, 0, total)
	for _, l := range lists {
		out = append(out, l...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Page slices items by offset and limit. Offsets past the end yield an
// empty page.
func Page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
