package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"sst-bot/internal/domain"
)

// ComputeLevelID computes a deterministic level id using SHA256.
// Formula: SHA256(instrument|session_date|side)
// Returns hex-encoded hash (64 characters).
//
// The session date is part of the key so that a level re-armed after a
// rollover dedups independently from yesterday's level at the same price.
func ComputeLevelID(instrument string, sessionDate time.Time, side domain.LevelSide) string {
	data := fmt.Sprintf("%s|%s|%s",
		instrument,
		sessionDate.UTC().Format("2006-01-02"),
		string(side),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
