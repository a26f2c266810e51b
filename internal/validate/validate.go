// Package validate checks and normalises user-supplied fields.
package validate

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bryan-buckman/buildlog/internal/apperr"
)

// Field limits.
const (
	SlugMinLen        = 3
	SlugMaxLen        = 20
	MaxProjectLen     = 100
	MaxContentLen     = 500
	MaxDescriptionLen = 200
	MaxEmailLen       = 254
	MaxWebsiteURLLen  = 200
)

var (
	slugRe    = regexp.MustCompile(`^[a-z0-9-]+$`)
	xHandleRe = regexp.MustCompile(`^@?[A-Za-z0-9_]{1,15}$`)
	codeRe    = regexp.MustCompile(`^[0-9]{6}$`)
)

// reserved slugs collide with site routes.
var reserved = map[string]struct{}{
	"api": {}, "feed": {}, "guide": {}, "admin": {}, "about": {}, "login": {},
	"logout": {}, "settings": {}, "static": {}, "new": {}, "www": {}, "help": {},
	"sitemap": {}, "skill": {}, "health": {}, "status": {}, "metrics": {}, "stream": {},
}

var suggestionSuffixes = []string{"dev", "codes", "builds", "ships", "99", "io", "hq"}

// Slug returns an invalid_slug error describing the first rule s breaks.
func Slug(s string) error {
	switch {
	case s == "":
		return apperr.Validation(apperr.CodeInvalidSlug, "Slug is required")
	case len(s) < SlugMinLen || len(s) > SlugMaxLen:
		return apperr.Validation(apperr.CodeInvalidSlug, "Slug must be 3-20 characters")
	case !slugRe.MatchString(s):
		return apperr.Validation(apperr.CodeInvalidSlug, "Slug can only contain lowercase letters, numbers, and hyphens")
	case strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-"):
		return apperr.Validation(apperr.CodeInvalidSlug, "Slug cannot start or end with a hyphen")
	}
	if _, ok := reserved[s]; ok {
		return apperr.Validation(apperr.CodeInvalidSlug, "Slug is reserved")
	}
	return nil
}

// Suggestions proposes up to three alternatives for a taken slug.
func Suggestions(slug string) []string {
	var out []string
	for _, suffix := range suggestionSuffixes {
		s := slug + suffix
		if len(s) > SlugMaxLen {
			continue
		}
		out = append(out, s)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// Email lowercases and trims e, rejecting values without '@' or over 254 bytes.
func Email(e string) (string, error) {
	e = strings.ToLower(strings.TrimSpace(e))
	if e == "" || len(e) > MaxEmailLen || !strings.Contains(e, "@") {
		return "", apperr.Validation(apperr.CodeInvalidEmail, "Invalid email address")
	}
	return e, nil
}

// XHandle validates an X handle and returns it without the leading '@'.
func XHandle(h string) (string, error) {
	h = strings.TrimSpace(h)
	if !xHandleRe.MatchString(h) {
		return "", apperr.Validation(apperr.CodeInvalidXHandle, "X handle must be 1-15 letters, numbers or underscores")
	}
	return strings.TrimPrefix(h, "@"), nil
}

// WebsiteURL accepts absolute http(s) URLs with a host.
func WebsiteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > MaxWebsiteURLLen {
		return "", apperr.Validation(apperr.CodeInvalidWebsiteURL, "Website URL is too long")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperr.Validation(apperr.CodeInvalidWebsiteURL, "Website URL must start with http:// or https://")
	}
	return raw, nil
}

// RecoveryCode reports whether code is exactly six ASCII digits.
func RecoveryCode(code string) bool {
	return codeRe.MatchString(code)
}

// Project strips control characters and truncates to 100 runes.
func Project(s string) string {
	return clean(s, MaxProjectLen, false)
}

// Content strips control characters other than newlines and truncates to
// 500 runes.
func Content(s string) string {
	return clean(s, MaxContentLen, true)
}

// Description is Content capped at 200 runes.
func Description(s string) string {
	return clean(s, MaxDescriptionLen, true)
}

func clean(s string, max int, keepNewlines bool) string {
	s = strings.Map(func(r rune) rune {
		if r == utf8.RuneError {
			return -1
		}
		if keepNewlines && r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > max {
		s = string([]rune(s)[:max])
		s = strings.TrimSpace(s)
	}
	return s
}
