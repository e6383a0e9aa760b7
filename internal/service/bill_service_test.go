package service

import (
	"context"
	"errors"
	"testing"

	"github.com/andy/billgrid/internal/domain"
)

type stubValidator struct {
	res   domain.ValidationResult
	err   error
	calls int
}

func (v *stubValidator) Validate(ctx context.Context, billID string) (domain.ValidationResult, error) {
	v.calls++
	return v.res, v.err
}

func newBill(id string, stage domain.Stage) *domain.Bill {
	b := domain.NewBill("BILL-2026-00" + id)
	b.ID = id
	b.Stage = stage
	return b
}

func TestCreateBill_GeneratesNumber(t *testing.T) {
	repo := newMockBillRepo()
	repo.nextNum = "BILL-2026-007"
	svc := NewBillService(repo, nil, nil)

	bill, err := svc.CreateBill(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateBill failed: %v", err)
	}
	if bill.Number != "BILL-2026-007" {
		t.Fatalf("Number = %q, want BILL-2026-007", bill.Number)
	}
	if bill.Stage != domain.StageKeying {
		t.Fatalf("new bill stage = %s, want keying", bill.Stage)
	}
	if _, ok := repo.bills[bill.ID]; !ok {
		t.Fatalf("bill not persisted")
	}
}

func TestResolveBill(t *testing.T) {
	ctx := context.Background()
	b := newBill("4b3c2f9e-8d1a-4c5b-9f0e-1a2b3c4d5e6f", domain.StageKeying)
	b.Number = "BILL-2026-010"
	svc := NewBillService(newMockBillRepo(b), nil, nil)

	for _, ref := range []string{b.ID, "BILL-2026-010", "bill-2026-010"} {
		got, err := svc.ResolveBill(ctx, ref)
		if err != nil {
			t.Fatalf("ResolveBill(%q) failed: %v", ref, err)
		}
		if got.ID != b.ID {
			t.Fatalf("ResolveBill(%q) = %s", ref, got.ID)
		}
	}

	if _, err := svc.ResolveBill(ctx, "BILL-1999-001"); !errors.Is(err, ErrBillNotFound) {
		t.Fatalf("expected ErrBillNotFound, got %v", err)
	}
}

func TestSetStage_LockedBill(t *testing.T) {
	ctx := context.Background()
	repo := newMockBillRepo(newBill("1", domain.StageAdjudicated))
	svc := NewBillService(repo, nil, nil)

	err := svc.SetStage(ctx, "1", domain.StageKeying)
	if !errors.Is(err, ErrBillLocked) {
		t.Fatalf("expected ErrBillLocked, got %v", err)
	}
	if domain.SaveErrorKindOf(err) != domain.KindReadOnly {
		t.Fatalf("expected read-only kind, got %s", domain.SaveErrorKindOf(err))
	}
	if len(repo.stages) != 0 {
		t.Fatalf("stage must not be written")
	}
}

func TestSetStage_Changes(t *testing.T) {
	ctx := context.Background()
	repo := newMockBillRepo(newBill("1", domain.StageKeying))
	svc := NewBillService(repo, nil, nil)

	if err := svc.SetStage(ctx, "1", domain.StageKeying); err != nil {
		t.Fatalf("SetStage same stage failed: %v", err)
	}
	if len(repo.stages) != 0 {
		t.Fatalf("unchanged stage should not be written")
	}
	if err := svc.SetStage(ctx, "1", domain.StageBillReview); err != nil {
		t.Fatalf("SetStage failed: %v", err)
	}
	if repo.bills["1"].Stage != domain.StageBillReview {
		t.Fatalf("stage = %s, want billReview", repo.bills["1"].Stage)
	}
}

func TestAdjudicate(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked by errors", func(t *testing.T) {
		repo := newMockBillRepo(newBill("1", domain.StageBillReview))
		v := &stubValidator{res: domain.ValidationResult{CanProceed: false}}
		svc := NewBillService(repo, v, nil)

		if _, err := svc.Adjudicate(ctx, "1"); !errors.Is(err, ErrCannotAdjudicate) {
			t.Fatalf("expected ErrCannotAdjudicate, got %v", err)
		}
		if repo.bills["1"].Stage != domain.StageBillReview {
			t.Fatalf("stage must not change")
		}
	})

	t.Run("locks bill", func(t *testing.T) {
		repo := newMockBillRepo(newBill("1", domain.StageBillReview))
		v := &stubValidator{res: domain.ValidationResult{CanProceed: true}}
		svc := NewBillService(repo, v, nil)

		if _, err := svc.Adjudicate(ctx, "1"); err != nil {
			t.Fatalf("Adjudicate failed: %v", err)
		}
		if repo.bills["1"].Stage != domain.StageAdjudicated {
			t.Fatalf("stage = %s, want adjudicated", repo.bills["1"].Stage)
		}
		if err := svc.DeleteBill(ctx, "1"); !errors.Is(err, ErrBillLocked) {
			t.Fatalf("expected adjudicated bill delete to fail, got %v", err)
		}
	})
}
