package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/andy/billgrid/internal/domain"
	"github.com/andy/billgrid/internal/grid"
)

const exportSheet = "Line Items"

// ExportFileName returns the default workbook name for a bill
func ExportFileName(bill *domain.Bill) string {
	return strings.ToLower(bill.Number) + ".xlsx"
}

// ExportWorkbook writes the persisted rows of a bill, their validation
// status, and a totals row to an xlsx file
func ExportWorkbook(path string, bill *domain.Bill, rows []domain.LineItem) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := []any{"Line"}
	for _, field := range domain.AllFields {
		header = append(header, field.Spec().Label)
	}
	header = append(header, "Status")
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	r := 2
	for _, item := range rows {
		if item.IsSentinel() {
			continue
		}
		row := []any{item.LineNumber}
		for _, field := range domain.AllFields {
			v := field.Spec().Get(&item.Fields)
			if v == nil {
				v = ""
			}
			row = append(row, v)
		}
		status := item.Validation.Status
		if status == "" {
			status = domain.StatusValid
		}
		row = append(row, string(status))

		cell, _ := excelize.CoordinatesToCellName(1, r)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write line %d: %w", item.LineNumber, err)
		}
		r++
	}

	totals := grid.Footer(rows)
	footer := map[domain.Field]float64{
		domain.FieldCharge:         totals.Charge,
		domain.FieldApprovedAmount: totals.Paid,
		domain.FieldThirdParty:     totals.ThirdParty,
		domain.FieldPatientResp:    totals.PatientResp,
	}
	label, _ := excelize.CoordinatesToCellName(1, r)
	if err := f.SetCellValue(exportSheet, label, "Totals"); err != nil {
		return fmt.Errorf("failed to write totals: %w", err)
	}
	for i, field := range domain.AllFields {
		sum, ok := footer[field]
		if !ok {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(i+2, r)
		if err := f.SetCellValue(exportSheet, cell, sum); err != nil {
			return fmt.Errorf("failed to write totals: %w", err)
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{Title: bill.Number, Subject: bill.Stage.Label()}); err != nil {
		return fmt.Errorf("failed to set document properties: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
