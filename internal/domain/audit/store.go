package audit

import (
	"context"
	"time"
)

// Store persists audit records.
// Interface owned by domain per hexagonal architecture.
type Store interface {
	// Append stores audit records.
	Append(ctx context.Context, records ...Record) error

	// Flush forces pending records to storage. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Since      time.Time
	ToolName   string
	IdentityID string
	Decision   string
	Limit      int
}

// DefaultQueryLimit caps queries that do not set Limit.
const DefaultQueryLimit = 100

// EffectiveLimit returns Limit or DefaultQueryLimit when unset.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultQueryLimit
	}
	return f.Limit
}

// Querier returns recent records, newest first.
type Querier interface {
	Query(ctx context.Context, filter Filter) ([]Record, error)
}
