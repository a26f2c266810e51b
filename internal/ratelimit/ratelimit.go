// Package ratelimit implements fixed-window request counters keyed by
// caller identity (IP, email or feed).
package ratelimit

import (
	"context"
	"time"
)

// Rule names a limit and its window. Name doubles as the reason code in
// rate_limited responses and as the metrics label.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Named rules.
var (
	Check              = Rule{Name: "check", Limit: 30, Window: time.Minute}
	Claim              = Rule{Name: "claim", Limit: 5, Window: time.Hour}
	Recover            = Rule{Name: "recover", Limit: 5, Window: time.Hour}
	RecoverEmail       = Rule{Name: "recover_email", Limit: 3, Window: time.Hour}
	RecoverVerify      = Rule{Name: "recover_verify", Limit: 5, Window: time.Hour}
	RecoverVerifyEmail = Rule{Name: "recover_verify_email", Limit: 5, Window: 15 * time.Minute}
	Post               = Rule{Name: "post", Limit: 50, Window: 24 * time.Hour}
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter admits or rejects one request for key under rule.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Result, error)
}

// bucket joins a rule and key so rules never share counters.
func bucket(rule Rule, key string) string {
	return rule.Name + ":" + key
}

func result(count int, rule Rule, resetAt time.Time) Result {
	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: count <= rule.Limit, Remaining: remaining, ResetAt: resetAt}
}
