package util

import "github.com/google/uuid"

// NewID generates a new unique identifier for nodes, networks and invocations.
func NewID() string { return uuid.NewString() }
