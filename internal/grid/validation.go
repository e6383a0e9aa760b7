package grid

import (
	"slices"

	"github.com/andy/billgrid/internal/domain"
)

// Flatten splits a categorized result into blocking failures and
// warnings. Failures are the error-severity findings of every category;
// warnings are the dedicated warning list plus warning-severity findings.
func Flatten(r domain.ValidationResult) (failures, warnings []domain.Finding) {
	failures = make([]domain.Finding, 0)
	warnings = make([]domain.Finding, 0, len(r.Warnings))
	warnings = append(warnings, r.Warnings...)
	for _, list := range r.Categories() {
		for _, f := range list {
			switch f.Severity {
			case domain.SeverityError:
				failures = append(failures, f)
			case domain.SeverityWarning:
				warnings = append(warnings, f)
			}
		}
	}
	return failures, warnings
}

// BuildStatusMap aggregates findings per line number. An error on any
// finding makes the line an error, otherwise any warning makes it a
// warning.
func BuildStatusMap(r domain.ValidationResult) map[int]domain.RowValidation {
	failures, warnings := Flatten(r)
	out := make(map[int]domain.RowValidation)

	add := func(f domain.Finding, isError bool) {
		seen := make(map[int]struct{}, len(f.AffectedLines))
		for _, line := range f.AffectedLines {
			if line <= 0 {
				continue
			}
			if _, dup := seen[line]; dup {
				continue
			}
			seen[line] = struct{}{}
			v := out[line]
			if isError {
				v.Errors = append(v.Errors, f)
				v.Status = domain.StatusError
			} else {
				v.Warnings = append(v.Warnings, f)
				if v.Status != domain.StatusError {
					v.Status = domain.StatusWarning
				}
			}
			out[line] = v
		}
	}
	for _, f := range failures {
		add(f, true)
	}
	for _, f := range warnings {
		add(f, false)
	}
	return out
}

// ApplyStatusMap returns rows with validation state taken from statuses
// by line number. Rows without an entry, and placeholder rows, are reset
// to valid so a previous pass never leaks into this one.
func ApplyStatusMap(rows []domain.LineItem, statuses map[int]domain.RowValidation) []domain.LineItem {
	out := make([]domain.LineItem, len(rows))
	for i, r := range rows {
		v, ok := statuses[r.LineNumber]
		if !ok || r.IsSentinel() || r.LineNumber <= 0 {
			v = domain.RowValidation{Status: domain.StatusValid}
		}
		r.Validation = domain.RowValidation{
			Status:   v.Status,
			Errors:   slices.Clone(v.Errors),
			Warnings: slices.Clone(v.Warnings),
		}
		if r.Validation.Errors == nil {
			r.Validation.Errors = []domain.Finding{}
		}
		if r.Validation.Warnings == nil {
			r.Validation.Warnings = []domain.Finding{}
		}
		out[i] = r
	}
	return out
}
