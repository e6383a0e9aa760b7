package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billgrid/internal/domain"
)

func sampleResult() domain.ValidationResult {
	return domain.ValidationResult{
		LineItem: []domain.Finding{
			{RuleID: "account_required", Severity: domain.SeverityError, Message: "Account is required", AffectedLines: []int{1, 3}},
			{RuleID: "high_value_line_item", Severity: domain.SeverityWarning, Message: "High value", AffectedLines: []int{3}},
		},
		RelationalIntegrity: []domain.Finding{
			{RuleID: "duplicate_procedures", Severity: domain.SeverityWarning, AffectedLines: []int{2, 2, 4}},
		},
		Warnings: []domain.Finding{
			{RuleID: "large_total_bill", Severity: domain.SeverityWarning, Message: "Large total"},
		},
	}
}

func TestFlatten(t *testing.T) {
	failures, warnings := Flatten(sampleResult())
	require.Len(t, failures, 1)
	assert.Equal(t, "account_required", failures[0].RuleID)
	require.Len(t, warnings, 3)
	assert.Equal(t, "large_total_bill", warnings[0].RuleID)

	failures, warnings = Flatten(domain.ValidationResult{})
	assert.NotNil(t, failures)
	assert.Empty(t, failures)
	assert.Empty(t, warnings)
}

func TestBuildStatusMap(t *testing.T) {
	m := BuildStatusMap(sampleResult())

	assert.Equal(t, domain.StatusError, m[1].Status)
	assert.Equal(t, domain.StatusWarning, m[2].Status)
	assert.Len(t, m[2].Warnings, 1, "a line listed twice in one finding counts once")
	assert.Equal(t, domain.StatusError, m[3].Status, "errors beat warnings")
	assert.Len(t, m[3].Errors, 1)
	assert.Len(t, m[3].Warnings, 1)
	assert.Equal(t, domain.StatusWarning, m[4].Status)
	_, ok := m[5]
	assert.False(t, ok)
}

func TestApplyStatusMap_IdempotentAndOverwriting(t *testing.T) {
	rows := []domain.LineItem{
		persisted("a", 1, 10),
		persisted("b", 2, 10),
		persisted("c", 3, 10),
		persisted("e", 5, 10),
		domain.NewDraft(testBill),
	}
	statuses := BuildStatusMap(sampleResult())

	once := ApplyStatusMap(rows, statuses)
	twice := ApplyStatusMap(once, statuses)
	assert.Equal(t, once, twice)

	got := make([]domain.ValidationStatus, len(once))
	for i, r := range once {
		got[i] = r.Validation.Status
	}
	assert.Equal(t, []domain.ValidationStatus{
		domain.StatusError, domain.StatusWarning, domain.StatusError, domain.StatusValid, domain.StatusValid,
	}, got)

	cleared := ApplyStatusMap(once, BuildStatusMap(domain.ValidationResult{CanProceed: true}))
	for _, r := range cleared {
		assert.Equal(t, domain.StatusValid, r.Validation.Status)
		assert.Empty(t, r.Validation.Errors)
		assert.Empty(t, r.Validation.Warnings)
	}
}

func TestParseAffectedLines(t *testing.T) {
	assert.Equal(t, []int{1, 3}, domain.ParseAffectedLines("1, 3,x"))
	assert.Empty(t, domain.ParseAffectedLines(""))
	assert.Equal(t, "1, 3", domain.FormatAffectedLines([]int{1, 3}))
}
