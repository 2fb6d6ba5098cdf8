package resolver

import (
	"github.com/google/uuid"

	"github.com/opsgraph/opsgraph-backend/internal/domain"
)

// Session is one conversation's state: an identifier and the single most
// recent turn's context. Sessions are created per conversation and passed by
// reference through every Resolve call; nothing about them is shared across
// users or stored globally.
type Session struct {
	ID      uuid.UUID
	Context domain.Context
}

func NewSession() *Session {
	return &Session{ID: uuid.New()}
}
