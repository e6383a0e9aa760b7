package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/andy/billgrid/internal/domain"
	"github.com/andy/billgrid/internal/repository"
)

// LineItemGateway persists grid rows through the line item repository and
// classifies failures as domain.SaveError
type LineItemGateway struct {
	lines  repository.LineItemRepository
	logger *zap.Logger
}

// NewLineItemGateway creates a gateway over the line item repository
func NewLineItemGateway(lines repository.LineItemRepository, logger *zap.Logger) *LineItemGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LineItemGateway{lines: lines, logger: logger.Named("gateway")}
}

func (g *LineItemGateway) Load(ctx context.Context, billID string) ([]domain.LineItem, error) {
	items, err := g.lines.ListByBill(ctx, billID)
	if err != nil {
		return nil, classify("load", billID, err)
	}

	// a failed lookup leaves the rows unflagged rather than failing the load
	matches, err := g.lines.FindMatches(ctx, billID)
	if err != nil {
		g.logger.Warn("duplicate lookup failed", zap.String("bill_id", billID), zap.Error(err))
		return items, nil
	}
	for i := range items {
		m := matches[items[i].ID]
		items[i].Matches = m
		items[i].Duplicate = domain.ClassifyDuplicate(items[i].Fields.Charge, m)
	}
	return items, nil
}

func (g *LineItemGateway) Create(ctx context.Context, billID string, fields domain.LineFields) (domain.LineItem, error) {
	item := domain.LineItem{BillID: billID, Fields: fields}
	if err := g.lines.Create(ctx, &item); err != nil {
		return domain.LineItem{}, classify("create", billID, err)
	}
	g.logger.Debug("line item created",
		zap.String("bill_id", billID),
		zap.String("line_id", item.ID),
		zap.Int("line_number", item.LineNumber),
	)
	return item, nil
}

func (g *LineItemGateway) Update(ctx context.Context, billID string, patches []domain.Patch) error {
	if err := g.lines.ApplyPatches(ctx, billID, patches); err != nil {
		id := ""
		if len(patches) == 1 {
			id = patches[0].ID
		}
		return classify("update", id, err)
	}
	return nil
}

func (g *LineItemGateway) Delete(ctx context.Context, billID string, ids []string) error {
	if err := g.lines.Delete(ctx, billID, ids); err != nil {
		return classify("delete", billID, err)
	}
	return nil
}

func (g *LineItemGateway) Duplicate(ctx context.Context, billID string, counts map[string]int) (int, error) {
	n, err := g.lines.Duplicate(ctx, billID, counts)
	if err != nil {
		return 0, classify("duplicate", billID, err)
	}
	return n, nil
}

// PartialUpdates is true: the repository writes only the patched columns
func (g *LineItemGateway) PartialUpdates() bool {
	return true
}

// History returns the audit trail of one line item
func (g *LineItemGateway) History(ctx context.Context, lineID string) ([]*domain.LineHistory, error) {
	return g.lines.GetHistory(ctx, lineID)
}

var rejectedErrors = []error{
	domain.ErrUnknownField,
	domain.ErrWrongType,
	domain.ErrNegative,
	domain.ErrNotFinite,
	domain.ErrTooLong,
	domain.ErrBadDate,
	domain.ErrBadStatus,
}

func classify(op, id string, err error) error {
	var se *domain.SaveError
	if errors.As(err, &se) {
		return err
	}

	kind := domain.KindTransport
	switch {
	case errors.Is(err, repository.ErrNotFound):
		kind = domain.KindNotFound
	case errors.Is(err, repository.ErrBillLocked):
		kind = domain.KindReadOnly
	default:
		for _, target := range rejectedErrors {
			if errors.Is(err, target) {
				kind = domain.KindRejected
				break
			}
		}
	}
	return domain.NewSaveError(op, kind, id, err)
}
