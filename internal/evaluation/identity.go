package evaluation

import (
	"encoding/hex"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const UnknownIdentity = "unknown"

// Identity derives the rate-limit key from forwarding headers: the first
// X-Forwarded-For hop, then X-Real-IP, then UnknownIdentity. All callers
// without those headers share one bucket.
func Identity(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return UnknownIdentity
}

// ScenarioKey returns a stable opaque identifier for scenario text.
func ScenarioKey(scenarioText string) string {
	sum := blake2b.Sum256([]byte(scenarioText))
	return "b2:" + hex.EncodeToString(sum[:12])
}
