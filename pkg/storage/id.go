package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateScenarioID derives a deterministic id from scenario text:
// lowercase, trim, SHA-256, first 16 hex characters, "scenario-" prefix.
// Equal normalized scenarios always produce equal ids.
func GenerateScenarioID(scenario string) string {
	normalized := strings.ToLower(strings.TrimSpace(scenario))
	sum := sha256.Sum256([]byte(normalized))
	return "scenario-" + hex.EncodeToString(sum[:])[:16]
}

// NewTestID generates a unique execution id from the current time plus a
// random fragment, so ids sort roughly by creation order.
func NewTestID() string {
	return fmt.Sprintf("test-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

// NewPlanID generates a unique plan id
func NewPlanID() string {
	return fmt.Sprintf("plan-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}
