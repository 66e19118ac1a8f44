package dataset

import (
	"context"
	"fmt"

	"github.com/querybot/querybot/internal/sqlguard"
)

// Resolver selects the currently active dataset from provider metadata.
type Resolver struct {
	Provider Provider
}

func NewResolver(provider Provider) *Resolver {
	return &Resolver{Provider: provider}
}

// ResolveActive returns the dataset with the highest registration ID. A
// dataset without an identifier sorts as the minimum. Zero datasets yield
// ErrNoDataset.
func (r *Resolver) ResolveActive(ctx context.Context) (Dataset, error) {
	datasets, err := r.Provider.ListDatasets(ctx)
	if err != nil {
		return Dataset{}, fmt.Errorf("list datasets: %w", err)
	}
	if len(datasets) == 0 {
		return Dataset{}, ErrNoDataset
	}

	active := datasets[0]
	for _, d := range datasets[1:] {
		if d.ID > active.ID {
			active = d
		}
	}
	return active, nil
}

// CheckRequested rejects a non-empty requested table name that does not
// normalize-equal the active table. The system never silently queries a
// table other than the most recently registered one, even when asked by
// name.
func CheckRequested(requested, active string) error {
	if requested == "" {
		return nil
	}
	if sqlguard.Normalize(requested) != sqlguard.Normalize(active) {
		return fmt.Errorf("%w: requested %q, active %q", ErrUnauthorizedTable, requested, active)
	}
	return nil
}
