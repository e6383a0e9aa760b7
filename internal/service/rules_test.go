package service

import (
	"context"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/andy/billgrid/internal/domain"
)

func TestEvaluate_CleanBill(t *testing.T) {
	items := []domain.LineItem{
		line("b", 1, domain.LineFields{Account: "A1", Charge: domain.Amount(100), ApprovedAmount: domain.Amount(80)}),
		line("b", 2, domain.LineFields{Account: "A1", Charge: domain.Amount(50), PatientResp: domain.Amount(10)}),
	}

	res := Evaluate(domain.StageKeying, items, DefaultRuleConfig())

	if !res.CanProceed {
		t.Fatalf("expected clean bill to proceed")
	}
	if len(res.PassedRules) != 5 {
		t.Fatalf("expected all 5 rules to pass, got %v", res.PassedRules)
	}
	if res.TotalCharge != 150 {
		t.Fatalf("TotalCharge = %v, want 150", res.TotalCharge)
	}
	if res.TotalApproved != 90 {
		t.Fatalf("TotalApproved = %v, want 90", res.TotalApproved)
	}
}

func TestEvaluate_Findings(t *testing.T) {
	items := []domain.LineItem{
		line("b", 1, domain.LineFields{ProcedureCode: "99213", Charge: domain.Amount(6000)}),
		line("b", 2, domain.LineFields{Account: "A", ProcedureCode: "99213", Charge: domain.Amount(6000)}),
		line("b", 3, domain.LineFields{Account: "A", ProcedureCode: "99214", Charge: domain.Amount(10)}),
	}

	res := Evaluate(domain.StageBillReview, items, DefaultRuleConfig())

	if res.CanProceed {
		t.Fatalf("missing account must block")
	}

	lines := func(fs []domain.Finding, rule string) []int {
		for _, f := range fs {
			if f.RuleID == rule {
				return f.AffectedLines
			}
		}
		return nil
	}
	if diff := cmp.Diff([]int{1}, lines(res.LineItem, RuleAccountRequired)); diff != "" {
		t.Fatalf("account_required lines (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, lines(res.LineItem, RulePaidAmountRequired)); diff != "" {
		t.Fatalf("paid_amount_required lines (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2}, lines(res.RelationalIntegrity, RuleDuplicateProcedure)); diff != "" {
		t.Fatalf("duplicate_procedures lines (-want +got):\n%s", diff)
	}
	if len(res.ChargeLevel) != 2 {
		t.Fatalf("expected 2 high value findings, got %d", len(res.ChargeLevel))
	}
	if len(res.Warnings) != 1 || res.Warnings[0].RuleID != RuleLargeTotalBill {
		t.Fatalf("expected large_total_bill warning, got %+v", res.Warnings)
	}
	if len(res.PassedRules) != 0 {
		t.Fatalf("expected no passed rules, got %v", res.PassedRules)
	}
}

func TestEvaluate_PaidAmountOnlyInBillReview(t *testing.T) {
	items := []domain.LineItem{line("b", 1, domain.LineFields{Account: "A"})}

	res := Evaluate(domain.StageQuoteView, items, DefaultRuleConfig())
	if !res.CanProceed {
		t.Fatalf("paid amount is not required outside bill review")
	}
	if !slices.Contains(res.PassedRules, RulePaidAmountRequired) {
		t.Fatalf("expected %s to pass, got %v", RulePaidAmountRequired, res.PassedRules)
	}
}

func TestRulesValidator_Validate(t *testing.T) {
	ctx := context.Background()
	bill := domain.NewBill("BILL-2026-001")
	bill.ID = "b"
	bills := newMockBillRepo(bill)
	lines := &mockLineRepo{items: []domain.LineItem{
		line("b", 1, domain.LineFields{Account: "A", Charge: domain.Amount(20)}),
		line("other", 1, domain.LineFields{Charge: domain.Amount(99999)}),
	}}

	v := NewRulesValidator(bills, lines, DefaultRuleConfig(), nil)
	res, err := v.Validate(ctx, "b")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !res.CanProceed || res.TotalCharge != 20 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := v.Validate(ctx, "missing"); err == nil {
		t.Fatalf("expected error for unknown bill")
	}
}
