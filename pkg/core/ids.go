package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewUnitID mints a fresh unit identifier. The unix prefix keeps ids
// roughly ordered by creation time, the uuid fragment keeps them unique
// within the same second.
func NewUnitID(now time.Time) string {
	return fmt.Sprintf("structon_%d_%s", now.Unix(), uuid.New().String()[:8])
}

// NewRunID mints a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}
