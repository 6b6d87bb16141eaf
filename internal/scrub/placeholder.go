package scrub

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GeneratePlaceholder derives the replacement token for an entity. The
// token is a pure function of (sessionSalt, entityType, entityText): the
// same entity always collapses to one token within a session, while a
// different salt produces an unrelated token, so placeholders cannot be
// correlated across sessions or enumerated by position.
func GeneratePlaceholder(sessionSalt string, entityType EntityType, entityText string) string {
	h := sha256.New()
	h.Write([]byte(sessionSalt))
	h.Write([]byte{0})
	h.Write([]byte(entityType))
	h.Write([]byte{0})
	h.Write([]byte(entityText))
	digest := hex.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("[%s_%s]", entityType.TokenLabel(), digest[:8])
}

// NewSessionSalt returns a random salt for callers that do not supply one.
func NewSessionSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}
