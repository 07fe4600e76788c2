package executor

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NewConditionPair generates a fresh 32-byte fulfillment secret and the
// execution condition committing to it. Both are hex-encoded.
func NewConditionPair() (condition, fulfillment string, err error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("generate fulfillment: %w", err)
	}
	fulfillment = hex.EncodeToString(secret)
	return ConditionFor(fulfillment), fulfillment, nil
}

// ConditionFor derives the execution condition for a hex-encoded fulfillment.
func ConditionFor(fulfillment string) string {
	raw, err := hex.DecodeString(fulfillment)
	if err != nil {
		// Non-hex fulfillments are hashed as raw bytes so a malformed secret
		// still yields a stable, verifiable commitment.
		raw = []byte(fulfillment)
	}
	digest := sha256.Sum256(raw)
	return hex.EncodeToString(digest[:])
}
