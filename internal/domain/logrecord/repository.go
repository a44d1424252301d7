package logrecord

import "context"

// Repository is the read-only view of the log store.
// This interface is defined in domain layer, implemented in infrastructure layer.
type Repository interface {
	// Count returns the number of records matching filter, ignoring pagination.
	Count(ctx context.Context, filter Filter) (int64, error)

	// Find returns at most page.Limit records matching filter after skipping
	// page.Skip() records, in creation order.
	Find(ctx context.Context, filter Filter, page PageRequest) ([]*Log, error)
}
