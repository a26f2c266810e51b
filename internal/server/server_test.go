package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bryan-buckman/buildlog/internal/auth"
	"github.com/bryan-buckman/buildlog/internal/database"
	"github.com/bryan-buckman/buildlog/internal/feed"
	"github.com/bryan-buckman/buildlog/internal/metrics"
	"github.com/bryan-buckman/buildlog/internal/ranking"
	"github.com/bryan-buckman/buildlog/internal/ratelimit"
	"github.com/bryan-buckman/buildlog/internal/realtime"
	"github.com/bryan-buckman/buildlog/internal/recovery"
)

type capturingMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *capturingMailer) Send(_ context.Context, email, code, _ string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[email] = code
	return true
}

func (m *capturingMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type harness struct {
	t       *testing.T
	srv     *Server
	db      *database.DB
	mailer  *capturingMailer
	metrics *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := auth.NewVerifier(db, bcrypt.MinCost)
	limiter := ratelimit.NewMemory()
	hub := realtime.NewHub(time.Millisecond, logger)
	t.Cleanup(hub.Close)
	mailer := &capturingMailer{codes: make(map[string]string)}
	m := metrics.New()

	rec := recovery.NewService(db, verifier, mailer, limiter, logger)
	rec.Observe = m.ObserveRecovery

	srv := New(Options{PublicURL: "https://buildlog.example"}, Deps{
		DB:       db,
		Feeds:    feed.NewService(db, verifier, hub),
		Auth:     verifier,
		Recovery: rec,
		Limiter:  limiter,
		Hub:      hub,
		Metrics:  m,
		Logger:   logger,
	})
	return &harness{t: t, srv: srv, db: db, mailer: mailer, metrics: m}
}

func (h *harness) do(method, path, body, token string) *httptest.ResponseRecorder {
	h.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func (h *harness) claim(slug, email string) string {
	h.t.Helper()
	body := `{"slug":"` + slug + `"}`
	if email != "" {
		body = `{"slug":"` + slug + `","email":"` + email + `"}`
	}
	rec := h.do(http.MethodPost, "/api/claim", body, "")
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(h.t, rec)
	token, _ := out["token"].(string)
	require.Len(h.t, token, 32)
	return token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestClaimPostAndRead(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/check", `{"slug":"alice"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["available"])

	token := h.claim("alice", "")

	rec = h.do(http.MethodPost, "/api/check", `{"slug":"alice"}`, "")
	out := decodeBody(t, rec)
	assert.Equal(t, false, out["available"])
	assert.NotEmpty(t, out["suggestions"])

	rec = h.do(http.MethodPost, "/api/claim", `{"slug":"alice"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	out = decodeBody(t, rec)
	assert.Equal(t, "slug_taken", out["error"])
	assert.Equal(t, false, out["success"])
	assert.NotEmpty(t, out["suggestions"])

	rec = h.do(http.MethodPost, "/api/post/alice", `{"project":"api","update":"shipped auth"}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/post/alice", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	post := decodeBody(t, rec)["post"].(map[string]any)
	assert.Equal(t, "shipped auth", post["content"])
	assert.Equal(t, "api", post["project"])

	rec = h.do(http.MethodGet, "/api/feed/alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, s-maxage=60, stale-while-revalidate=120", rec.Header().Get("Cache-Control"))
	out = decodeBody(t, rec)
	assert.Equal(t, "alice", out["slug"])
	assert.Len(t, out["updates"], 1)
	assert.Equal(t, float64(1), out["streak"])
	assert.Equal(t, false, out["has_more"])
	assert.Equal(t, float64(50), out["limit"])

	rec = h.do(http.MethodGet, "/api/global?limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out = decodeBody(t, rec)
	assert.Len(t, out["updates"], 1)
	assert.Equal(t, float64(5), out["limit"])

	rec = h.do(http.MethodGet, "/api/active", "", "")
	assert.Equal(t, "public, s-maxage=120, stale-while-revalidate=300", rec.Header().Get("Cache-Control"))
	active := decodeBody(t, rec)["active"].([]any)
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].(map[string]any)["slug"])

	rec = h.do(http.MethodGet, "/api/discover", "", "")
	profiles := decodeBody(t, rec)["profiles"].([]any)
	require.Len(t, profiles, 1)
	assert.Equal(t, "shipped auth", profiles[0].(map[string]any)["latest_content"])

	rec = h.do(http.MethodGet, "/api/stats", "", "")
	out = decodeBody(t, rec)
	assert.Equal(t, float64(1), out["total_feeds"])
	assert.Equal(t, float64(1), out["total_posts"])
}

func TestOffsetIsBounded(t *testing.T) {
	h := newHarness(t)
	token := h.claim("alice", "")
	rec := h.do(http.MethodPost, "/api/post/alice", `{"project":"api","update":"one"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, path := range []string{
		"/api/feed/alice?offset=9223372036854775807",
		"/api/global?offset=9223372036854775807",
	} {
		rec := h.do(http.MethodGet, path, "", "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		out := decodeBody(t, rec)
		assert.Empty(t, out["updates"], path)
		assert.Equal(t, float64(ranking.MaxOffset), out["offset"], path)
	}
}

func TestUnknownFeed(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/feed/nobody", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody(t, rec)["error"])
}

func TestUnauthorizedIsGeneric(t *testing.T) {
	h := newHarness(t)
	h.claim("alice", "")

	wrong := h.do(http.MethodPost, "/api/post/alice", `{"project":"a","update":"b"}`, "not-the-token")
	unknown := h.do(http.MethodPost, "/api/post/nobody", `{"project":"a","update":"b"}`, "not-the-token")
	missing := h.do(http.MethodPost, "/api/post/alice", `{"project":"a","update":"b"}`, "")

	for _, rec := range []*httptest.ResponseRecorder{wrong, unknown, missing} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, wrong.Body.String(), missing.Body.String())
}

func TestRequestBodyLimits(t *testing.T) {
	h := newHarness(t)

	big := `{"slug":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	rec := h.do(http.MethodPost, "/api/check", big, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "payload_too_large", decodeBody(t, rec)["error"])

	// Without a declared length the cap applies while decoding.
	req := httptest.NewRequest(http.MethodPost, "/api/check", io.NopCloser(bytes.NewBufferString(big)))
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	h.srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	rec = h.do(http.MethodPost, "/api/check", `{"slug":`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeBody(t, rec)["error"])

	rec = h.do(http.MethodPost, "/api/check", `{"slug":"A!"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_slug", decodeBody(t, rec)["error"])
}

func TestCheckRateLimit(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < ratelimit.Check.Limit; i++ {
		rec := h.do(http.MethodPost, "/api/check", `{"slug":"alice"}`, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := h.do(http.MethodPost, "/api/check", `{"slug":"alice"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, "rate_limited", out["error"])
	assert.Equal(t, "check", out["reason"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestNest(t *testing.T) {
	h := newHarness(t)
	h.claim("alice", "")
	mobile := h.claim("alice-mobile", "")

	rec := h.do(http.MethodPost, "/api/nest/alice-mobile", `{}`, mobile)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_parent", decodeBody(t, rec)["error"])

	rec = h.do(http.MethodPost, "/api/nest/alice-mobile", `{"parent":42}`, mobile)
	assert.Equal(t, "invalid_parent", decodeBody(t, rec)["error"])

	rec = h.do(http.MethodPost, "/api/nest/alice-mobile", `{"parent":"ghost"}`, mobile)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "parent_not_found", decodeBody(t, rec)["error"])

	rec = h.do(http.MethodPost, "/api/nest/alice-mobile", `{"parent":"alice"}`, mobile)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/feed/alice", "", "")
	out := decodeBody(t, rec)
	assert.Equal(t, "parent", out["kind"])
	assert.Equal(t, []any{"alice-mobile"}, out["children"])

	rec = h.do(http.MethodPost, "/api/nest/alice-mobile", `{"parent":null}`, mobile)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/feed/alice-mobile", "", "")
	assert.Equal(t, "standalone", decodeBody(t, rec)["kind"])
}

func TestProfilePatch(t *testing.T) {
	h := newHarness(t)
	token := h.claim("alice", "")

	rec := h.do(http.MethodPatch, "/api/profile/alice", `{}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no_fields", decodeBody(t, rec)["error"])

	rec = h.do(http.MethodPatch, "/api/profile/alice", `{"x_handle":"@alice_dev","description":"Shipping"}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{"x_handle", "description"}, decodeBody(t, rec)["updated"])

	rec = h.do(http.MethodGet, "/api/feed/alice", "", "")
	out := decodeBody(t, rec)
	assert.Equal(t, "alice_dev", out["x_handle"])
	assert.Equal(t, "Shipping", out["description"])

	rec = h.do(http.MethodPatch, "/api/profile/alice", `{"website_url":"javascript:alert(1)"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_website_url", decodeBody(t, rec)["error"])
}

func TestDeleteLatest(t *testing.T) {
	h := newHarness(t)
	token := h.claim("alice", "")

	rec := h.do(http.MethodDelete, "/api/post/alice", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_posts", decodeBody(t, rec)["error"])

	h.do(http.MethodPost, "/api/post/alice", `{"project":"api","update":"first"}`, token)
	rec = h.do(http.MethodDelete, "/api/post/alice", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "first", decodeBody(t, rec)["deleted"].(map[string]any)["content"])

	rec = h.do(http.MethodGet, "/api/feed/alice", "", "")
	assert.Empty(t, decodeBody(t, rec)["updates"])
}

func TestRecoveryFlow(t *testing.T) {
	h := newHarness(t)
	oldToken := h.claim("alice", "alice@example.com")

	rec := h.do(http.MethodPost, "/api/recover", `{"email":"nobody@example.com"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	unknownBody := rec.Body.String()

	rec = h.do(http.MethodPost, "/api/recover", `{"email":"Alice@Example.com"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, unknownBody, rec.Body.String())
	assert.Equal(t, recovery.GenericMessage, decodeBody(t, rec)["message"])

	code := h.mailer.code("alice@example.com")
	require.Len(t, code, 6)

	rec = h.do(http.MethodPost, "/api/recover/verify", `{"email":"alice@example.com","code":"12345"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_code", decodeBody(t, rec)["error"])

	rec = h.do(http.MethodPost, "/api/recover/verify", `{"email":"alice@example.com","code":"`+code+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	assert.Equal(t, "alice", out["slug"])
	newToken := out["token"].(string)

	rec = h.do(http.MethodGet, "/api/post/alice", "", oldToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(http.MethodGet, "/api/post/alice", "", newToken)
	assert.Equal(t, http.StatusNotFound, rec.Code, "authenticated, but nothing posted yet")

	// The code is single use.
	rec = h.do(http.MethodPost, "/api/recover/verify", `{"email":"alice@example.com","code":"`+code+`"}`, "")
	assert.Equal(t, "invalid_code", decodeBody(t, rec)["error"])
}

func TestFeedRSS(t *testing.T) {
	h := newHarness(t)
	token := h.claim("alice", "")
	h.do(http.MethodPost, "/api/post/alice", `{"project":"api","update":"shipped"}`, token)

	rec := h.do(http.MethodGet, "/api/feed/alice/rss", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/rss+xml")

	parsed, err := gofeed.NewParser().ParseString(rec.Body.String())
	require.NoError(t, err)
	assert.Equal(t, "alice", parsed.Title)
	require.Len(t, parsed.Items, 1)
	assert.Equal(t, "shipped", parsed.Items[0].Description)
}

func TestHealthAndVersion(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, "SQLite", out["backend"])

	require.NoError(t, h.db.Close())
	rec = h.do(http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decodeBody(t, rec)["status"])

	rec = h.do(http.MethodGet, "/api/version", "", "")
	out = decodeBody(t, rec)
	assert.Equal(t, float64(APIVersion), out["version"])
	assert.Equal(t, "curl -sL https://buildlog.example/i | bash", out["update_command"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.claim("alice", "")

	rec := h.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "buildlog_feeds_claimed_total 1")
	assert.Contains(t, body, `buildlog_http_requests_total{method="POST",route="/api/claim",status="200"} 1`)
}

func TestUnexpectedErrorsAreFlattened(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/anything", nil)
	rec := httptest.NewRecorder()

	h.srv.writeError(rec, req, errors.New("pq: connection refused at 10.0.0.5"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, "internal_error", out["error"])
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody(t, rec)["error"])
}
