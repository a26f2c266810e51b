// Package recovery rotates a feed's token through a six digit code sent to
// the email address on file.
//
// A code moves from issued to exactly one terminal state: verified (the
// token is rotated), expired (the TTL elapsed) or invalidated (too many
// wrong guesses). Codes are single use; verification deletes them.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bryan-buckman/buildlog/internal/apperr"
	"github.com/bryan-buckman/buildlog/internal/auth"
	"github.com/bryan-buckman/buildlog/internal/database"
	"github.com/bryan-buckman/buildlog/internal/model"
	"github.com/bryan-buckman/buildlog/internal/ratelimit"
	"github.com/bryan-buckman/buildlog/internal/validate"
)

const (
	// CodeTTL is how long an issued code stays valid.
	CodeTTL = 15 * time.Minute
	// MaxFailures wrong guesses invalidate a code.
	MaxFailures = 5
	// FailureWindow bounds the failure counter; it is never shorter than CodeTTL.
	FailureWindow = 15 * time.Minute
)

// GenericMessage is returned for every accepted request, whether or not
// the email is on file.
const GenericMessage = "If an account with this email exists, a recovery code has been sent."

// Outcome labels reported to the observer.
const (
	OutcomeSent        = "sent"
	OutcomeUnknown     = "unknown_email"
	OutcomeThrottled   = "throttled"
	OutcomeSendFailed  = "send_failed"
	OutcomeVerified    = "verified"
	OutcomeMismatch    = "mismatch"
	OutcomeInvalidated = "invalidated"
	OutcomeExpired     = "expired"
)

// Result is a successful verification.
type Result struct {
	Slug  string `json:"slug"`
	Token string `json:"token"`
}

// Service runs the recovery flow.
type Service struct {
	store   Store
	creds   Credentials
	mailer  Mailer
	limiter ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time

	// Observe, when set, is called with an outcome label after each step.
	Observe func(outcome string)
}

// NewService creates a recovery Service.
func NewService(store Store, creds Credentials, mailer Mailer, limiter ratelimit.Limiter, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		creds:   creds,
		mailer:  mailer,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) observe(outcome string) {
	if s.Observe != nil {
		s.Observe(outcome)
	}
}

func failKey(email string) string {
	return "recovery-fails:" + email
}

// Request issues a code for email when it belongs to a feed. Unknown
// addresses and throttled requests succeed silently so callers cannot
// learn which emails are registered. Only an unreachable code store is
// reported.
func (s *Service) Request(ctx context.Context, email string) error {
	email, err := validate.Email(email)
	if err != nil {
		return err
	}

	res, err := s.limiter.Allow(ctx, email, ratelimit.RecoverEmail)
	if err != nil {
		return apperr.Unavailable("Recovery service unavailable")
	}
	if !res.Allowed {
		s.observe(OutcomeThrottled)
		return nil
	}

	f, err := s.store.GetFeedByEmail(ctx, email)
	if errors.Is(err, database.ErrNotFound) {
		s.observe(OutcomeUnknown)
		return nil
	}
	if err != nil {
		return err
	}

	code, err := auth.GenerateCode()
	if err != nil {
		return err
	}
	hash, err := s.creds.Hash(code)
	if err != nil {
		return err
	}
	rc := model.RecoveryCode{
		Email:     email,
		CodeHash:  hash,
		Slug:      f.Slug,
		ExpiresAt: s.now().Add(CodeTTL),
	}
	if err := s.store.PutRecoveryCode(ctx, rc); err != nil {
		s.logger.Error("store recovery code", "error", err)
		return apperr.Unavailable("Recovery service unavailable")
	}
	// Failures counted against an earlier code must not shorten the
	// failure window of this one.
	if err := s.store.DeleteCounter(ctx, failKey(email)); err != nil {
		s.logger.Error("reset recovery failures", "error", err)
		return apperr.Unavailable("Recovery service unavailable")
	}

	if !s.mailer.Send(ctx, email, code, f.Slug) {
		s.logger.Warn("recovery email not delivered", "slug", f.Slug)
		s.observe(OutcomeSendFailed)
		return nil
	}
	s.observe(OutcomeSent)
	return nil
}

// Verify checks code for email and, on a match, rotates the feed's token.
func (s *Service) Verify(ctx context.Context, email, code string) (*Result, error) {
	email, err := validate.Email(email)
	if err != nil {
		return nil, err
	}
	if !validate.RecoveryCode(code) {
		return nil, apperr.Validation(apperr.CodeInvalidCode, "A 6-digit code is required")
	}

	res, err := s.limiter.Allow(ctx, email, ratelimit.RecoverVerifyEmail)
	if err != nil {
		return nil, apperr.Unavailable("Recovery service unavailable")
	}
	if !res.Allowed {
		return nil, apperr.RateLimited(ratelimit.RecoverVerifyEmail.Name, "Too many attempts. Request a new code.")
	}

	now := s.now()
	rc, err := s.store.GetRecoveryCode(ctx, email, now)
	if errors.Is(err, database.ErrNotFound) {
		s.observe(OutcomeExpired)
		return nil, apperr.Validation(apperr.CodeInvalidCode, "Recovery code expired or not found")
	}
	if err != nil {
		s.logger.Error("load recovery code", "error", err)
		return nil, apperr.Unavailable("Recovery service unavailable")
	}

	if !s.creds.Verify(code, rc.CodeHash) {
		fails, _, err := s.store.IncrementCounter(ctx, failKey(email), MaxFailures, FailureWindow, now)
		if err != nil {
			return nil, apperr.Unavailable("Recovery service unavailable")
		}
		if fails >= MaxFailures {
			if err := s.consume(ctx, email); err != nil {
				return nil, err
			}
			s.observe(OutcomeInvalidated)
			return nil, apperr.MaxAttempts()
		}
		s.observe(OutcomeMismatch)
		return nil, apperr.Validation(apperr.CodeInvalidCode, "Invalid recovery code")
	}

	token, err := s.creds.Reissue(ctx, rc.Slug)
	if err != nil {
		return nil, err
	}
	if err := s.consume(ctx, email); err != nil {
		return nil, err
	}
	s.logger.Info("token recovered", "slug", rc.Slug)
	s.observe(OutcomeVerified)
	return &Result{Slug: rc.Slug, Token: token}, nil
}

// consume deletes the pending code and its failure counter.
func (s *Service) consume(ctx context.Context, email string) error {
	if err := s.store.DeleteRecoveryCode(ctx, email); err != nil {
		return err
	}
	return s.store.DeleteCounter(ctx, failKey(email))
}
