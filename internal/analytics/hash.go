package analytics

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Hasher derives fixed-length, deterministic user ID hashes. HMAC-SHA256
// keyed with a deployment secret: the same input always yields the same
// 64-character hash, and without the key the raw ID cannot be recovered or
// confirmed by dictionary attack.
type Hasher struct {
	secret []byte
}

func NewHasher(secret string) *Hasher {
	return &Hasher{secret: []byte(secret)}
}

// HashUserID returns the hex-encoded HMAC of the raw user identifier.
// Empty input (anonymous events) hashes to the empty string.
func (h *Hasher) HashUserID(raw string) string {
	if raw == "" {
		return ""
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
