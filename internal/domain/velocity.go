package domain

import (
	"context"
	"time"
)

// VelocityStore keeps timestamped sets of the identities and SSNs seen with each
// PII element. Writes are append-only set inserts, so concurrent recording of the
// same element is safe and idempotent.
type VelocityStore interface {
	// Record adds one observation of an element.
	Record(ctx context.Context, tenantID string, obs ElementObservation) error

	// Window counts distinct identities and SSNs seen with an element inside the
	// 30, 90 and 180 day windows ending at now.
	Window(ctx context.Context, tenantID string, elementType ElementType, elementHash string, now time.Time) (*ElementWindow, error)

	// History returns observations of an element since the given time.
	History(ctx context.Context, tenantID string, elementType ElementType, elementHash string, since time.Time) (*ElementHistory, error)

	// Cleanup removes observations older than before and returns how many were removed.
	Cleanup(ctx context.Context, tenantID string, before time.Time) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ElementObservation is a single sighting of an element on an application.
type ElementObservation struct {
	Type       ElementType `json:"type"`
	Hash       string      `json:"hash"`
	IdentityID string      `json:"identityId"`
	SSNHash    string      `json:"ssnHash"`
	Timestamp  time.Time   `json:"timestamp"`
}

// ElementWindow holds windowed distinct counts for one element.
type ElementWindow struct {
	Identities30  int64     `json:"identities30d"`
	Identities90  int64     `json:"identities90d"`
	Identities180 int64     `json:"identities180d"`
	SSNs30        int64     `json:"ssns30d"`
	SSNs90        int64     `json:"ssns90d"`
	SSNs180       int64     `json:"ssns180d"`
	FirstSeen     time.Time `json:"firstSeen"`
	LastSeen      time.Time `json:"lastSeen"`
}

// ElementHistory lists what was seen with an element.
type ElementHistory struct {
	Type       ElementType       `json:"type"`
	Hash       string            `json:"hash"`
	Identities []TimestampedItem `json:"identities"`
	SSNs       []TimestampedItem `json:"ssns"`
	FirstSeen  time.Time         `json:"firstSeen"`
	LastSeen   time.Time         `json:"lastSeen"`
}

// TimestampedItem is a member of a velocity set with its last sighting.
type TimestampedItem struct {
	Value string    `json:"value"`
	Seen  time.Time `json:"seen"`
}

// VelocityConfig holds configuration for the velocity store and analyzer.
type VelocityConfig struct {
	// Type is the store type: "memory", "redis" or "none"
	Type string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Retention is how long observations are kept (default 180 days).
	Retention time.Duration

	// CleanupInterval is how often expired observations are swept (default 1h).
	CleanupInterval time.Duration

	AddressThreshold int
	PhoneThreshold   int
	EmailThreshold   int
	DeviceThreshold  int
}
