package repo

import (
	"context"

	"github.com/hamed0406/servermon/internal/domain"
)

// EndpointStore owns the ordered endpoint list. Implementations must be safe
// for concurrent use; every method sees and returns copies.
type EndpointStore interface {
	// List returns endpoints in insertion order.
	List(ctx context.Context) ([]domain.Endpoint, error)
	Get(ctx context.Context, id domain.EndpointID) (domain.Endpoint, error)
	// Add appends e, assigning an ID when empty.
	Add(ctx context.Context, e *domain.Endpoint) error
	// Update replaces name, address and ports of an existing endpoint.
	Update(ctx context.Context, id domain.EndpointID, name, address string, ports []uint16) (domain.Endpoint, error)
	Remove(ctx context.Context, id domain.EndpointID) error
	// Replace swaps the whole list in one step.
	Replace(ctx context.Context, endpoints []domain.Endpoint) error
	// ApplyStatus commits a check result for id if the endpoint still exists
	// and still has the address that was probed. It reports whether the
	// result was applied.
	ApplyStatus(ctx context.Context, id domain.EndpointID, probedAddress string, st domain.Status) (bool, error)
}
