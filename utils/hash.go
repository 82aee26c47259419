package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashVisitor creates a SHA-256 hash of IP address and user agent. It is
// stored in place of the raw IP and doubles as the unique-visitor key.
func HashVisitor(ip, userAgent string) string {
	data := ip + userAgent
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
