package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bryan-buckman/buildlog/internal/apperr"
	"github.com/bryan-buckman/buildlog/internal/ratelimit"
)

var (
	notFoundRoute    = apperr.NotFound(apperr.CodeNotFound, "No such endpoint")
	methodNotAllowed = &apperr.Error{Status: http.StatusMethodNotAllowed, Code: "method_not_allowed", Message: "Method not allowed"}
)

type errorBody struct {
	Success     bool     `json:"success"`
	Error       string   `json:"error"`
	Message     string   `json:"message,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError converts err into the {success: false, error: code} shape.
// Anything that is not an *apperr.Error is logged and reported as
// internal_error without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		e = apperr.Internal()
	}
	if e.Code == apperr.CodeRateLimited && s.metrics != nil {
		s.metrics.RateLimited.WithLabelValues(e.Reason).Inc()
	}
	writeJSON(w, e.Status, errorBody{
		Error:       e.Code,
		Message:     e.Message,
		Reason:      e.Reason,
		Suggestions: e.Suggestions,
	})
}

// limitBody rejects declared oversize bodies up front and caps the rest.
func (s *Server) limitBody(next http.Handler) http.Handler {
	limit := s.opts.MaxBodyBytes
	if limit <= 0 {
		limit = MaxBodyBytes
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > limit {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error:   apperr.CodePayloadTooLarge,
				Message: apperr.PayloadTooLarge().Message,
			})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.PayloadTooLarge()
		}
		return apperr.InvalidJSON()
	}
	return nil
}

// clientIP is the caller's address. With TrustProxy, middleware.RealIP
// has already replaced RemoteAddr with the forwarded address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

// allow counts the request against rule and writes a 429 when the limit
// is exhausted. A limiter failure is reported as service_unavailable.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, rule ratelimit.Rule, key string) bool {
	res, err := s.limiter.Allow(r.Context(), key, rule)
	if err != nil {
		s.logger.Error("rate limiter", "rule", rule.Name, "error", err)
		s.writeError(w, r, apperr.Unavailable("Rate limiter unavailable"))
		return false
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if !res.Allowed {
		retry := int(time.Until(res.ResetAt).Seconds()) + 1
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		s.writeError(w, r, apperr.RateLimited(rule.Name, "Too many requests"))
		return false
	}
	return true
}

// cache sets a shared-cache policy on public read endpoints.
func cache(w http.ResponseWriter, maxAge, staleWhileRevalidate int) {
	w.Header().Set("Cache-Control",
		"public, s-maxage="+strconv.Itoa(maxAge)+", stale-while-revalidate="+strconv.Itoa(staleWhileRevalidate))
}

// requestLogger logs one line per request and feeds the request metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			if s.metrics != nil {
				s.metrics.ObserveRequest(route, r.Method, status, elapsed)
			}
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed,
				"request_id", middleware.GetReqID(r.Context()),
				"remote", clientIP(r),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
