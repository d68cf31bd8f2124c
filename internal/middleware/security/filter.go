// Package security provides request filtering and body limits for the API
// server.
package security

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// Config holds the configuration for security middleware
type Config struct {
	FilterEnabled bool
	MaxBodySizeMB int
}

var probePaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// scanner traffic; the API serves nothing under these prefixes
var blockedPathPrefixes = []string{
	"/.php",
	"/wp-",
	"/.git/",
	"/.env",
	"/cgi-bin/",
	"/admin/",
	"/phpmyadmin",
	"/phpinfo",
	"/shell",
	"/config.",
	"/.ht",
	"/server-status",
	"/xmlrpc.php",
}

var traversalPatterns = []string{
	"../",
	"..%2f",
	"..%5c",
	"%2e%2e/",
	"%00",
}

// apiPrefix is where path segments are restricted to token symbols, hex
// hashes and formatted keys.
const apiPrefix = "/api/v1/"

// FilterMiddleware blocks scanner probes, path traversal and API paths whose
// segments contain characters no symbol, hash or key can hold.
func FilterMiddleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if probePaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if blocked(r.URL) {
				writeBlockedResponse(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func blocked(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	for _, prefix := range blockedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	if containsAny(path, traversalPatterns) {
		return true
	}

	raw := u.RawPath
	if raw == "" {
		raw = u.Path
	}
	if decoded, err := url.PathUnescape(raw); err == nil && strings.ToLower(decoded) != path {
		if containsAny(strings.ToLower(decoded), traversalPatterns) {
			return true
		}
	}

	if strings.HasPrefix(path, apiPrefix) {
		for _, seg := range strings.Split(strings.TrimPrefix(path, apiPrefix), "/") {
			if !validSegment(seg) {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// validSegment allows a trailing empty segment and at most 160 characters of
// [a-z0-9_-].
func validSegment(seg string) bool {
	if len(seg) > 160 {
		return false
	}
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// writeBlockedResponse writes a generic 400 response without revealing what triggered the block
func writeBlockedResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    "BAD_REQUEST",
			"message": "Invalid request",
		},
	})
}
