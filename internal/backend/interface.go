// Package backend builds the local infrastructure the client runs on: the
// persisted session store plus the optional event publisher and exporter.
package backend

import (
	"context"

	"budgetwise/internal/expenses"
	"budgetwise/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds what the factory built. Publisher and Exporter are nil when
// their integration is not configured.
type Result struct {
	Store     store.Store
	Publisher expenses.EventPublisher
	Exporter  expenses.Exporter
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}
