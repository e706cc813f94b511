// Package store defines the persistence port the transition engine runs
// against, with a Postgres implementation and an in-memory implementation
// for tests and local runs.
package store

import (
	"context"
	"errors"

	"github.com/talentlink/caseflow/internal/models"
)

var ErrNotFound = errors.New("not found")

// Owner tables accepted by ListCasesOwned. A case belongs to exactly one
// supply (candidate record) and one demand (requisition).
const (
	OwnerTableSupply = "supply"
	OwnerTableDemand = "demand"
)

// HistoryUpdate mutates individual columns of a history entry; nil fields
// are left untouched.
type HistoryUpdate struct {
	Status *string
	Remark *string
	Active *bool
}

// Store is the persistence port consumed by the engine. All reads of a
// case's history come back ordered by the entry sequence number.
type Store interface {
	GetCase(ctx context.Context, id int64) (models.Case, error)
	UpdateCaseStatus(ctx context.Context, id int64, status string) error
	SetCaseActive(ctx context.Context, id int64, active bool, reason string) error
	// ListCasesBySupply returns the cases of one supply filtered by the
	// active flag.
	ListCasesBySupply(ctx context.Context, supplyID int64, active bool) ([]models.Case, error)
	// ListCasesOwned returns the subset of ids owned by ownerID under the
	// given owner table (OwnerTableSupply or OwnerTableDemand).
	ListCasesOwned(ctx context.Context, ids []int64, ownerTable string, ownerID int64) ([]models.Case, error)
	// DeactivateCases marks the cases inactive and clears their
	// pending-confirmation flag.
	DeactivateCases(ctx context.Context, ids []int64) error

	ListHistory(ctx context.Context, caseID int64, activeOnly bool) ([]models.CaseHistoryEntry, error)
	GetHistoryEntry(ctx context.Context, id int64) (models.CaseHistoryEntry, error)
	InsertHistory(ctx context.Context, caseID int64, status, remark string) (models.CaseHistoryEntry, error)
	UpdateHistory(ctx context.Context, id int64, upd HistoryUpdate) error

	GetSupplyStatus(ctx context.Context, supplyID int64) (string, error)
	SetSupplyStatus(ctx context.Context, supplyID int64, status string) error

	// Transact runs fn inside one atomic unit of work; any error from fn
	// discards every pending write.
	Transact(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
}
