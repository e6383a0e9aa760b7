package repository

import (
	"context"
	"errors"

	"github.com/andy/billgrid/internal/domain"
)

var (
	// ErrNotFound is returned when a bill or line item does not exist
	ErrNotFound = errors.New("not found")
	// ErrBillLocked is returned for writes against an adjudicated bill
	ErrBillLocked = errors.New("bill is adjudicated and locked")
)

// BillRepository manages bill persistence
type BillRepository interface {
	Create(ctx context.Context, bill *domain.Bill) error
	GetByID(ctx context.Context, id string) (*domain.Bill, error)
	GetByNumber(ctx context.Context, number string) (*domain.Bill, error)
	List(ctx context.Context, stage *domain.Stage) ([]*domain.Bill, error)
	SetStage(ctx context.Context, id string, stage domain.Stage) error
	Delete(ctx context.Context, id string) error
	GetNextBillNumber(ctx context.Context, prefix string, year int) (string, error)
}

// LineItemRepository manages line item persistence with audit trail
type LineItemRepository interface {
	ListByBill(ctx context.Context, billID string) ([]domain.LineItem, error)
	GetByID(ctx context.Context, id string) (*domain.LineItem, error)
	// Create assigns the id and the next line number
	Create(ctx context.Context, item *domain.LineItem) error
	// ApplyPatches writes every patch in one transaction and records history
	ApplyPatches(ctx context.Context, billID string, patches []domain.Patch) error
	Delete(ctx context.Context, billID string, ids []string) error
	// Duplicate appends copies of each source row and returns how many were made
	Duplicate(ctx context.Context, billID string, counts map[string]int) (int, error)
	GetHistory(ctx context.Context, lineItemID string) ([]*domain.LineHistory, error)
	// FindMatches maps line ids of billID to same-service lines on other bills
	FindMatches(ctx context.Context, billID string) (map[string][]domain.DuplicateMatch, error)
}

// CodeRepository manages the code catalogue
type CodeRepository interface {
	Search(ctx context.Context, term string, codeTypes []string, limit int) ([]domain.CodeMatch, error)
	// Describe returns nil when the code is unknown
	Describe(ctx context.Context, code string, codeTypes []string) (*domain.CodeMatch, error)
	Upsert(ctx context.Context, codes []domain.CodeMatch) (int, error)
	Count(ctx context.Context) (int, error)
}
