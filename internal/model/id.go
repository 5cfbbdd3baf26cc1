package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewEntryID generates a client-side id for shapes and chat messages.
// Timestamp plus a random fragment: unique enough for classroom-scale
// rooms, and the dedup path compares full ids so a clock-resolution
// collision between two clients still yields two distinct entries.
func NewEntryID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// NewConnectionID generates an opaque per-connection id. It is never
// reused across reconnects.
func NewConnectionID() string {
	return uuid.NewString()
}
