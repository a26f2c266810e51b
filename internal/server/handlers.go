package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bryan-buckman/buildlog/internal/apperr"
	"github.com/bryan-buckman/buildlog/internal/model"
	"github.com/bryan-buckman/buildlog/internal/ranking"
	"github.com/bryan-buckman/buildlog/internal/ratelimit"
	"github.com/bryan-buckman/buildlog/internal/recovery"
	"github.com/bryan-buckman/buildlog/internal/syndication"
)

// --- Claim Handlers ---

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, ratelimit.Check, clientIP(r)) {
		return
	}
	var req struct {
		Slug string `json:"slug"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	available, suggestions, err := s.feeds.CheckSlug(r.Context(), req.Slug)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := map[string]interface{}{"available": available, "slug": req.Slug}
	if len(suggestions) > 0 {
		resp["suggestions"] = suggestions
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, ratelimit.Claim, clientIP(r)) {
		return
	}
	var req struct {
		Slug  string  `json:"slug"`
		Email *string `json:"email"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.feeds.Claim(r.Context(), req.Slug, req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.FeedsClaimed.Inc()
	}
	s.logger.Info("feed claimed", "slug", req.Slug)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"slug":    req.Slug,
		"token":   token,
	})
}

// --- Authenticated Handlers ---

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*model.Feed, bool) {
	f, err := s.auth.Authenticate(r.Context(), chi.URLParam(r, "slug"), r.Header.Get("Authorization"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return f, true
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	f, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req struct {
		Project string `json:"project"`
		Update  string `json:"update"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.feeds.Post(r.Context(), f, req.Project, req.Update); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.PostsCreated.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	f, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	u, err := s.feeds.Latest(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u.Slug = f.Slug
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "post": u})
}

func (s *Server) handleDeleteLatest(w http.ResponseWriter, r *http.Request) {
	f, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	u, err := s.feeds.DeleteLatest(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u.Slug = f.Slug
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "deleted": u})
}

func (s *Server) handleNest(w http.ResponseWriter, r *http.Request) {
	f, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req struct {
		Parent json.RawMessage `json:"parent"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	// "parent": null un-nests; a missing or non-string parent is rejected.
	var parent *string
	switch {
	case len(req.Parent) == 0:
		s.writeError(w, r, apperr.Validation(apperr.CodeInvalidParent, "parent must be a string or null"))
		return
	case string(req.Parent) == "null":
	default:
		var p string
		if err := json.Unmarshal(req.Parent, &p); err != nil {
			s.writeError(w, r, apperr.Validation(apperr.CodeInvalidParent, "parent must be a string or null"))
			return
		}
		parent = &p
	}

	if err := s.feeds.SetParent(r.Context(), f, parent); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	f, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req struct {
		XHandle     *string `json:"x_handle"`
		WebsiteURL  *string `json:"website_url"`
		Description *string `json:"description"`
		Email       *string `json:"email"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.feeds.UpdateProfile(r.Context(), f, model.ProfilePatch{
		XHandle:     req.XHandle,
		WebsiteURL:  req.WebsiteURL,
		Description: req.Description,
		Email:       req.Email,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "updated": updated})
}

// --- Recovery Handlers ---

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, ratelimit.Recover, clientIP(r)) {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.recovery.Request(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": recovery.GenericMessage,
	})
}

func (s *Server) handleRecoverVerify(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, ratelimit.RecoverVerify, clientIP(r)) {
		return
	}
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.recovery.Verify(r.Context(), req.Email, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"slug":    res.Slug,
		"token":   res.Token,
	})
}

// --- Read Handlers ---

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	active, err := s.feeds.Active(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cache(w, 120, 300)
	writeJSON(w, http.StatusOK, map[string]interface{}{"active": active})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.feeds.Discover(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cache(w, 60, 120)
	writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": profiles})
}

func (s *Server) handleGlobal(w http.ResponseWriter, r *http.Request) {
	page, err := s.feeds.Global(r.Context(), window(r, ranking.GlobalPageSize))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cache(w, 60, 120)
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	p, err := s.feeds.Profile(r.Context(), chi.URLParam(r, "slug"), r.URL.Query().Get("project"),
		window(r, ranking.ProfilePageSize))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cache(w, 60, 120)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleFeedRSS(w http.ResponseWriter, r *http.Request) {
	p, err := s.feeds.Profile(r.Context(), chi.URLParam(r, "slug"), "",
		ranking.NewWindow(0, ranking.ProfilePageSize, ranking.ProfilePageSize))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := syndication.Export(s.opts.PublicURL, p.Slug, p.Description, p.Updates)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cache(w, 60, 120)
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("write rss", "slug", p.Slug, "error", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.feeds.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cache(w, 60, 120)
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check", "database", s.db.DatabaseType(), "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "unreachable",
			"error":     "Database unreachable",
			"timestamp": s.now().UTC(),
		})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"database":   "connected",
		"backend":    s.db.DatabaseType(),
		"latency_ms": time.Since(start).Milliseconds(),
		"timestamp":  s.now().UTC(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":        APIVersion,
		"update_command": "curl -sL " + s.opts.PublicURL + "/i | bash",
	})
}

// --- Helpers ---

// window reads offset and limit from the query string. Missing or
// malformed values fall back to the defaults.
func window(r *http.Request, def int) ranking.Window {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return ranking.NewWindow(offset, limit, def)
}
