// Package mail delivers recovery codes.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpoint is the Resend send-email API.
const DefaultEndpoint = "https://api.resend.com/emails"

// Config selects and configures a provider.
type Config struct {
	Provider string `yaml:"provider"` // "log" or "resend"
	APIKey   string `yaml:"api_key"`
	From     string `yaml:"from"`
	Endpoint string `yaml:"endpoint"`
	SiteURL  string `yaml:"-"`
}

// Sender delivers one recovery code.
type Sender interface {
	Send(ctx context.Context, email, code, slug string) bool
}

// New returns the configured Sender.
func New(cfg Config, logger *slog.Logger) (Sender, error) {
	switch cfg.Provider {
	case "", "log":
		return &LogMailer{logger: logger}, nil
	case "resend":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("mail provider resend requires an api key")
		}
		return NewResend(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// LogMailer writes codes to the log instead of sending them. It is meant
// for local development.
type LogMailer struct {
	logger *slog.Logger
}

// Send logs the code and reports success.
func (m *LogMailer) Send(_ context.Context, email, code, slug string) bool {
	m.logger.Info("recovery code", "email", email, "slug", slug, "code", code)
	return true
}

// Resend posts codes to the Resend HTTP API.
type Resend struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewResend returns a Resend sender.
func NewResend(cfg Config, logger *slog.Logger) *Resend {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	return &Resend{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// Send delivers the code and reports whether Resend accepted it.
func (r *Resend) Send(ctx context.Context, email, code, slug string) bool {
	body, err := json.Marshal(resendRequest{
		From:    r.cfg.From,
		To:      []string{email},
		Subject: "Your build log recovery code",
		Text:    Body(r.cfg.SiteURL, slug, code),
	})
	if err != nil {
		r.logger.Error("encode recovery email", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		r.logger.Error("build recovery email request", "error", err)
		return false
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("send recovery email", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Error("send recovery email", "status", resp.StatusCode)
		return false
	}
	return true
}

// Body renders the plain-text recovery message.
func Body(siteURL, slug, code string) string {
	where := slug
	if siteURL != "" {
		where = strings.TrimRight(siteURL, "/") + "/" + slug
	}
	return strings.Join([]string{
		fmt.Sprintf("Your recovery code for %s is: %s", where, code),
		"",
		"This code expires in 15 minutes.",
		"",
		"If you did not request this, you can ignore this email.",
	}, "\n")
}
