package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/andy/billgrid/internal/domain"
)

func writeWorkbook(t *testing.T, sheets map[string][][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for name, rows := range sheets {
		if first {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
			first = false
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		for i, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				t.Fatalf("write row: %v", err)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "codes.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

func TestCodeService_Import(t *testing.T) {
	path := writeWorkbook(t, map[string][][]any{
		"Procedures": {
			{"Type", "Code", "Description"},
			{domain.CodeTypeHCPCS, "99213", "Office visit"},
			{domain.CodeTypeHCPCS, "", "missing code"},
			{domain.CodeTypePOS, "11"},
		},
		"Notes": {
			{"Something else"},
			{"ignored"},
		},
	})

	repo := &mockCodeRepo{}
	svc := NewCodeService(repo, nil)

	n, err := svc.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("imported %d codes, want 2", n)
	}
	if repo.upserted[0].CodeName != "99213" || repo.upserted[0].Description != "Office visit" {
		t.Fatalf("unexpected first code: %+v", repo.upserted[0])
	}
	if repo.upserted[1].CodeType != domain.CodeTypePOS || repo.upserted[1].Description != "" {
		t.Fatalf("unexpected second code: %+v", repo.upserted[1])
	}
}

func TestReadCodeWorkbook_NoCodes(t *testing.T) {
	path := writeWorkbook(t, map[string][][]any{"Sheet1": {{"Name", "Value"}}})
	if _, err := ReadCodeWorkbook(path); err == nil {
		t.Fatalf("expected error for workbook without code header")
	}
}

func TestExportWorkbook(t *testing.T) {
	bill := domain.NewBill("BILL-2026-003")
	rows := []domain.LineItem{
		line("b", 1, domain.LineFields{ProcedureCode: "99213", Charge: domain.Amount(100), ApprovedAmount: domain.Amount(80)}),
		line("b", 2, domain.LineFields{Charge: domain.Amount(50.25)}),
		domain.NewDraft("b"),
	}
	rows[1].Validation.Status = domain.StatusError

	path := filepath.Join(t.TempDir(), "out", ExportFileName(bill))
	if err := ExportWorkbook(path, bill, rows); err != nil {
		t.Fatalf("ExportWorkbook failed: %v", err)
	}
	if !strings.HasSuffix(path, "bill-2026-003.xlsx") {
		t.Fatalf("unexpected file name %s", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	got, err := f.GetRows(exportSheet)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	// header, two persisted rows, totals; the draft is skipped
	if len(got) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(got))
	}
	if got[0][0] != "Line" || got[0][len(got[0])-1] != "Status" {
		t.Fatalf("unexpected header %v", got[0])
	}
	if got[2][len(got[2])-1] != string(domain.StatusError) {
		t.Fatalf("expected error status on line 2, got %v", got[2])
	}
	if got[3][0] != "Totals" {
		t.Fatalf("expected totals row, got %v", got[3])
	}

	chargeCol := int(domain.FieldCharge) + 2
	cell, _ := excelize.CoordinatesToCellName(chargeCol, 4)
	total, err := f.GetCellValue(exportSheet, cell)
	if err != nil {
		t.Fatalf("read total: %v", err)
	}
	if total != "150.25" {
		t.Fatalf("charge total = %q, want 150.25", total)
	}
}
