package service

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/andy/billgrid/internal/domain"
	"github.com/andy/billgrid/internal/repository"
)

// mock implementations
type mockBillRepo struct {
	bills   map[string]*domain.Bill
	stages  []domain.Stage
	deleted []string
	nextNum string
}

func newMockBillRepo(bills ...*domain.Bill) *mockBillRepo {
	m := &mockBillRepo{bills: make(map[string]*domain.Bill), nextNum: "BILL-2026-001"}
	for _, b := range bills {
		m.bills[b.ID] = b
	}
	return m
}

func (m *mockBillRepo) Create(ctx context.Context, bill *domain.Bill) error {
	if bill.ID == "" {
		bill.ID = fmt.Sprintf("bill-%d", len(m.bills)+1)
	}
	m.bills[bill.ID] = bill
	return nil
}
func (m *mockBillRepo) GetByID(ctx context.Context, id string) (*domain.Bill, error) {
	if b, ok := m.bills[id]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("bill %s: %w", id, repository.ErrNotFound)
}
func (m *mockBillRepo) GetByNumber(ctx context.Context, number string) (*domain.Bill, error) {
	for _, b := range m.bills {
		if b.Number == number {
			return b, nil
		}
	}
	return nil, fmt.Errorf("bill %s: %w", number, repository.ErrNotFound)
}
func (m *mockBillRepo) List(ctx context.Context, stage *domain.Stage) ([]*domain.Bill, error) {
	out := make([]*domain.Bill, 0)
	for _, b := range m.bills {
		if stage == nil || b.Stage == *stage {
			out = append(out, b)
		}
	}
	return out, nil
}
func (m *mockBillRepo) SetStage(ctx context.Context, id string, stage domain.Stage) error {
	b, ok := m.bills[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Stage = stage
	m.stages = append(m.stages, stage)
	return nil
}
func (m *mockBillRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.bills, id)
	return nil
}
func (m *mockBillRepo) GetNextBillNumber(ctx context.Context, prefix string, year int) (string, error) {
	return m.nextNum, nil
}

type mockLineRepo struct {
	items    []domain.LineItem
	patches  [][]domain.Patch
	err      error
	history  []*domain.LineHistory
	dupCount int
	matches  map[string][]domain.DuplicateMatch
	matchErr error
}

func (m *mockLineRepo) ListByBill(ctx context.Context, billID string) ([]domain.LineItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.LineItem, 0)
	for _, it := range m.items {
		if it.BillID == billID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	return out, nil
}
func (m *mockLineRepo) GetByID(ctx context.Context, id string) (*domain.LineItem, error) {
	i := slices.IndexFunc(m.items, func(it domain.LineItem) bool { return it.ID == id })
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	it := m.items[i]
	return &it, nil
}
func (m *mockLineRepo) Create(ctx context.Context, item *domain.LineItem) error {
	if m.err != nil {
		return m.err
	}
	item.ID = fmt.Sprintf("line-%d", len(m.items)+1)
	item.LineNumber = len(m.items) + 1
	m.items = append(m.items, *item)
	return nil
}
func (m *mockLineRepo) ApplyPatches(ctx context.Context, billID string, patches []domain.Patch) error {
	m.patches = append(m.patches, patches)
	return m.err
}
func (m *mockLineRepo) Delete(ctx context.Context, billID string, ids []string) error {
	return m.err
}
func (m *mockLineRepo) Duplicate(ctx context.Context, billID string, counts map[string]int) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.dupCount, nil
}
func (m *mockLineRepo) GetHistory(ctx context.Context, lineItemID string) ([]*domain.LineHistory, error) {
	return m.history, nil
}
func (m *mockLineRepo) FindMatches(ctx context.Context, billID string) (map[string][]domain.DuplicateMatch, error) {
	return m.matches, m.matchErr
}

type mockCodeRepo struct {
	upserted []domain.CodeMatch
	codes    map[string]domain.CodeMatch
}

func (m *mockCodeRepo) Search(ctx context.Context, term string, codeTypes []string, limit int) ([]domain.CodeMatch, error) {
	return nil, nil
}
func (m *mockCodeRepo) Describe(ctx context.Context, code string, codeTypes []string) (*domain.CodeMatch, error) {
	if c, ok := m.codes[code]; ok {
		return &c, nil
	}
	return nil, nil
}
func (m *mockCodeRepo) Upsert(ctx context.Context, codes []domain.CodeMatch) (int, error) {
	m.upserted = append(m.upserted, codes...)
	return len(codes), nil
}
func (m *mockCodeRepo) Count(ctx context.Context) (int, error) { return len(m.upserted), nil }

// line builds a persisted line item for rule tests
func line(billID string, n int, fields domain.LineFields) domain.LineItem {
	return domain.LineItem{ID: fmt.Sprintf("line-%d", n), BillID: billID, LineNumber: n, Fields: fields}
}
