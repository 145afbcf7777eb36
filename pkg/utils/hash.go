package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashText returns a stable key for text, ignoring case and surrounding
// whitespace. Used for embedding cache keys.
func HashText(model, input string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + strings.ToLower(strings.TrimSpace(input))))
	return hex.EncodeToString(hash[:])
}
