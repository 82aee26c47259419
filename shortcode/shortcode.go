// Package shortcode generates and validates short codes for links.
package shortcode

import (
	"crypto/rand"
	"regexp"
	"strings"

	"shortlink-service/models"
)

const (
	// CodeLength is the length of generated codes. Six base62 characters
	// give ~57 billion combinations, so a single uniqueness check against
	// the store is enough; collisions are handled by retrying the insert.
	CodeLength = 6

	charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	MinAliasLength = 3
	MaxAliasLength = 30
)

var aliasPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Reserved aliases that would shadow service routes.
var reserved = map[string]bool{
	"api":       true,
	"admin":     true,
	"health":    true,
	"ready":     true,
	"metrics":   true,
	"track":     true,
	"urls":      true,
	"analytics": true,
	"stats":     true,
	"www":       true,
	"login":     true,
	"register":  true,
	"dashboard": true,
	"help":      true,
	"support":   true,
	"about":     true,
	"contact":   true,
	"privacy":   true,
	"terms":     true,
}

// Generate returns a random 6-character base62 short code.
func Generate() string {
	bytes := make([]byte, CodeLength)
	rand.Read(bytes)

	code := make([]byte, CodeLength)
	for i := 0; i < CodeLength; i++ {
		code[i] = charset[bytes[i]%byte(len(charset))]
	}

	return string(code)
}

// ValidateAlias checks a custom alias against the charset, length bounds and
// the reserved-word blocklist. It returns the alias unchanged on success.
// Uniqueness is enforced separately by the store's conditional insert.
func ValidateAlias(alias string) (string, error) {
	if len(alias) < MinAliasLength || len(alias) > MaxAliasLength {
		return "", models.ErrInvalidAlias
	}
	if !aliasPattern.MatchString(alias) {
		return "", models.ErrInvalidAlias
	}
	if reserved[strings.ToLower(alias)] {
		return "", models.ErrInvalidAlias
	}
	return alias, nil
}
