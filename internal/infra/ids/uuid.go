// Package ids provides identifier generation for tasks and sessions.
package ids

import "github.com/google/uuid"

// UUIDGenerator implements domain.IDGenerator with random (v4) UUIDs.
type UUIDGenerator struct{}

// NewID returns a new random UUID string.
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}
