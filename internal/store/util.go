package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateCycleID creates a unique, time-ordered identifier for a cycle
// record. Format: cycle-<timestamp>-<hash>, e.g.
// cycle-20260729T143052Z-a3f9c2.
func GenerateCycleID(timestamp time.Time) string {
	ts := timestamp.UTC().Format("20060102T150405Z")

	input := fmt.Sprintf("%s|%d", ts, timestamp.UnixNano())
	hash := sha256.Sum256([]byte(input))
	shortHash := hex.EncodeToString(hash[:3])

	return fmt.Sprintf("cycle-%s-%s", ts, shortHash)
}
