package domain

import (
	"context"
	"time"
)

// TagResolver looks up product tags, keyed by product gid.
type TagResolver interface {
	ProductTags(ctx context.Context, productGIDs []string) (map[string][]string, error)
}

// MetafieldStore is the commerce platform surface the applier needs.
type MetafieldStore interface {
	ProductMetafields(ctx context.Context, productGID, namespace string) (map[string]string, error)
	SetMetafields(ctx context.Context, inputs []MetafieldInput) error
}

type MetafieldInput struct {
	OwnerID   string
	Namespace string
	Key       string
	Type      string
	Value     string
}

// Applier adjusts campaign progress for one product.
type Applier interface {
	Apply(ctx context.Context, productGID string, delta Delta, entry *BackerEntry) (Progress, error)
}

// EventLedger deduplicates webhook deliveries by logical event.
type EventLedger interface {
	// Claim returns nil when the caller owns the event, ErrEventAlreadyProcessed
	// when it was completed earlier and ErrEventInProgress while a fresh claim exists.
	Claim(ctx context.Context, rec EventRecord, staleAfter time.Duration) error
	MarkProcessed(ctx context.Context, topic, eventKey string, at time.Time) error
	// Release drops an unprocessed claim so a redelivery can retry immediately.
	Release(ctx context.Context, topic, eventKey string) error
}
