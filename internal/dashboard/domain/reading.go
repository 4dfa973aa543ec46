package domain

import (
	"encoding/json"
	"time"
)

// Reading is one row of the telemetry feed. Field1 is the organic bin level,
// Field2 the recyclable one; either may be missing when the device sent
// nothing (or something non-numeric) for that field.
type Reading struct {
	EntryID   int64
	CreatedAt time.Time
	Field1    *float64
	Field2    *float64

	// Payload is the provider's object as received, other fields included.
	Payload json.RawMessage
}

// UpsertOutcome says what an upsert did to the stored row.
type UpsertOutcome int

const (
	UpsertInserted UpsertOutcome = iota + 1
	UpsertUpdated
)
