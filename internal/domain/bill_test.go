package domain

import "testing"

func TestParseStage(t *testing.T) {
	tests := map[string]Stage{
		"keying":      StageKeying,
		"Bill Review": StageBillReview,
		"billReview":  StageBillReview,
		"quote":       StageQuoteView,
		"Quote View":  StageQuoteView,
		"adjudicated": StageAdjudicated,
	}
	for in, want := range tests {
		got, err := ParseStage(in)
		if err != nil {
			t.Fatalf("ParseStage(%q) failed: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseStage(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseStage("closed"); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
}

func TestStage_ReadOnlyAndSelectable(t *testing.T) {
	for _, s := range SelectableStages {
		if s.IsReadOnly() {
			t.Fatalf("%s should be editable", s)
		}
	}
	if !StageAdjudicated.IsReadOnly() {
		t.Fatalf("adjudicated must be read-only")
	}
	if StageAdjudicated.IsSelectable() {
		t.Fatalf("adjudicated must not be selectable")
	}
}

func TestBill_Validate(t *testing.T) {
	b := NewBill("BILL-2026-001")
	if err := b.Validate(); err != nil {
		t.Fatalf("valid bill rejected: %v", err)
	}
	if !b.CanEdit() {
		t.Fatalf("new bill should be editable")
	}

	b.Number = " "
	if err := b.Validate(); err == nil {
		t.Fatalf("expected error for blank number")
	}

	b.Number = "BILL-2026-002"
	b.Stage = "archived"
	if err := b.Validate(); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
}
