package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateKey creates an idempotency key from one or more source strings.
// This is used to prevent duplicate processing of the same request, e.g. a
// client retrying a "yes" that already confirmed a delete.
func GenerateKey(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return fmt.Sprintf("idem_%s", hex.EncodeToString(hash[:16]))
}

// Example: Twilio message SID -> idempotency key
// GenerateKey("sms", "SM1234567890abcdef") -> "idem_a1b2c3d4e5f6..."
