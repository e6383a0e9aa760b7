package service

import (
	"strings"
	"testing"

	"github.com/andy/billgrid/internal/domain"
)

func TestValidationMarkdown(t *testing.T) {
	bill := domain.NewBill("BILL-2026-004")
	res := domain.ValidationResult{
		LineItem: []domain.Finding{{
			RuleID:        RuleAccountRequired,
			RuleName:      "Account required",
			Severity:      domain.SeverityError,
			Message:       "Account | is required",
			AffectedLines: []int{2, 3},
		}},
		PassedRules: []string{RuleLargeTotalBill},
		TotalCharge: 1234.5,
	}

	md := ValidationMarkdown(bill, res)

	for _, want := range []string{
		"# Validation: BILL-2026-004",
		"**Total charge:** $1,234.50",
		"errors that block adjudication",
		"## Line items",
		"| error | Account required | 2, 3 | Account \\| is required |",
		"- large_total_bill",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "## Warnings") {
		t.Fatalf("empty sections should be omitted")
	}
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown("# Title\n\nbody text", "notty", 40)
	if err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	if !strings.Contains(out, "Title") || !strings.Contains(out, "body text") {
		t.Fatalf("unexpected render output %q", out)
	}
}
