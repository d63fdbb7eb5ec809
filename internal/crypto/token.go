package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewRunnerToken generates a random 32-byte hex token used to authenticate
// the runner websocket upgrade.
func NewRunnerToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate runner token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
