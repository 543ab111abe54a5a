package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"sst-bot/internal/domain"
)

// ComputeSignalID computes a deterministic signal id using SHA256.
// Formula: SHA256(instrument|level_id|setup|direction|trigger_time_ms)
// Returns hex-encoded hash (64 characters).
func ComputeSignalID(
	instrument string,
	levelID string,
	setup domain.SetupType,
	direction domain.Direction,
	triggerTimeMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d",
		instrument,
		levelID,
		string(setup),
		string(direction),
		triggerTimeMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
