package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/andy/billgrid/internal/domain"
	"github.com/andy/billgrid/internal/repository"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want domain.SaveErrorKind
	}{
		{fmt.Errorf("line item x: %w", repository.ErrNotFound), domain.KindNotFound},
		{fmt.Errorf("bill b: %w", repository.ErrBillLocked), domain.KindReadOnly},
		{fmt.Errorf("invalid value for charge: %w", domain.ErrNegative), domain.KindRejected},
		{errors.New("disk I/O error"), domain.KindTransport},
	}
	for _, tt := range tests {
		err := classify("update", "x", tt.err)
		if got := domain.SaveErrorKindOf(err); got != tt.want {
			t.Fatalf("classify(%v) kind = %s, want %s", tt.err, got, tt.want)
		}
		if !errors.Is(err, tt.err) {
			t.Fatalf("classify must keep the cause")
		}
	}

	already := domain.NewSaveError("create", domain.KindRejected, "", errors.New("bad"))
	if classify("update", "", already) != error(already) {
		t.Fatalf("save errors must pass through unchanged")
	}
}

func TestLineItemGateway_CreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	repo := &mockLineRepo{}
	gw := NewLineItemGateway(repo, nil)

	item, err := gw.Create(ctx, "b", domain.LineFields{Charge: domain.Amount(10)})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if item.ID == "" || item.LineNumber != 1 || item.BillID != "b" {
		t.Fatalf("unexpected created item: %+v", item)
	}

	patch := domain.Patch{ID: item.ID, Fields: []domain.Field{domain.FieldCharge}}
	if err := gw.Update(ctx, "b", []domain.Patch{patch}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(repo.patches) != 1 {
		t.Fatalf("expected one batch, got %d", len(repo.patches))
	}
	if !gw.PartialUpdates() {
		t.Fatalf("repository gateway writes partial updates")
	}

	repo.err = fmt.Errorf("line item %s: %w", item.ID, repository.ErrNotFound)
	err = gw.Update(ctx, "b", []domain.Patch{patch})
	var se *domain.SaveError
	if !errors.As(err, &se) || se.Kind != domain.KindNotFound || se.ID != item.ID {
		t.Fatalf("expected not found save error for %s, got %v", item.ID, err)
	}
}

func TestInstrumentedGateway(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	repo := &mockLineRepo{}
	gw := Instrument(NewLineItemGateway(repo, nil), metrics)

	if _, err := gw.Load(ctx, "b"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	patches := []domain.Patch{{ID: "1"}, {ID: "2"}}
	if err := gw.Update(ctx, "b", patches); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	repo.err = repository.ErrBillLocked
	if err := gw.Delete(ctx, "b", []string{"1"}); err == nil {
		t.Fatalf("expected delete to fail")
	}

	if got := testutil.ToFloat64(metrics.Operations.WithLabelValues("load", "ok")); got != 1 {
		t.Fatalf("load ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Operations.WithLabelValues("delete", "read only")); got != 1 {
		t.Fatalf("delete read only = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Patches); got != 2 {
		t.Fatalf("patches = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(metrics.Duration); n != 3 {
		t.Fatalf("expected 3 duration series, got %d", n)
	}
}

func TestLineItemGateway_History(t *testing.T) {
	repo := &mockLineRepo{history: []*domain.LineHistory{
		domain.NewLineHistory("line-1", "charge", "10", "12.5", "edit"),
		domain.NewLineHistory("line-1", "line_number", "2", "1", "resequence"),
	}}
	gw := NewLineItemGateway(repo, nil)

	history, err := gw.History(context.Background(), "line-1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 || history[1].ChangeReason != "resequence" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestLineItemGateway_LoadFlagsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := &mockLineRepo{
		items: []domain.LineItem{
			{ID: "a", BillID: "b", LineNumber: 1, Fields: domain.LineFields{Charge: domain.Amount(120)}},
			{ID: "c", BillID: "b", LineNumber: 2, Fields: domain.LineFields{Charge: domain.Amount(80)}},
			{ID: "d", BillID: "b", LineNumber: 3},
		},
		matches: map[string][]domain.DuplicateMatch{
			"a": {{LineID: "x", BillNumber: "BILL-2026-001", LineNumber: 4, Charge: domain.Amount(120)}},
			"c": {{LineID: "y", BillNumber: "BILL-2026-001", LineNumber: 5, Charge: domain.Amount(95)}},
		},
	}
	gw := NewLineItemGateway(repo, nil)

	items, err := gw.Load(ctx, "b")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []domain.DuplicateStatus{domain.DuplicateExact, domain.DuplicatePotential, domain.DuplicateNone}
	for i, it := range items {
		if it.Duplicate != want[i] {
			t.Fatalf("line %d duplicate = %q, want %q", it.LineNumber, it.Duplicate, want[i])
		}
	}
	if len(items[0].Matches) != 1 || items[0].Matches[0].LineID != "x" {
		t.Fatalf("matches not attached: %+v", items[0].Matches)
	}

	repo.matchErr = errors.New("no such index")
	items, err = gw.Load(ctx, "b")
	if err != nil {
		t.Fatalf("a failed lookup must not fail the load: %v", err)
	}
	if items[0].Duplicate != domain.DuplicateNone {
		t.Fatalf("rows stay unflagged when the lookup fails")
	}
}
