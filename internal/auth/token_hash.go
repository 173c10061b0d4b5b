package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var errEmptyToken = errors.New("session token is empty")

// digestToken returns the hex sha256 of a session token. Raw tokens never
// touch Redis or Postgres; lookups hash first and compare digests.
func digestToken(token string) (string, error) {
	if token == "" {
		return "", errEmptyToken
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:]), nil
}
