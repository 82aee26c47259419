package utils

import (
	"net/http"
	"net/url"
	"strings"

	"shortlink-service/models"
)

// NormalizeURL validates a destination URL and returns its canonical form
// (lowercased host, whitespace trimmed). Only absolute http(s) URLs with a
// host are accepted.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", models.ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", models.ErrInvalidURL
	}
	if u.Host == "" {
		return "", models.ErrInvalidURL
	}
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

// ExtractIP extracts the client IP address from the request.
// Handles X-Forwarded-For header for proxied requests.
func ExtractIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
