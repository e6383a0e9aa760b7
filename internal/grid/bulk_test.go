package grid

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billgrid/internal/domain"
)

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.005, 1.01},
		{2.675, 2.68},
		{0.125, 0.13},
		{-1.005, -1.01},
		{200, 200},
		{199.994, 199.99},
		{0, 0},
	}
	for _, tt := range tests {
		if got := RoundHalfUp(tt.in, 2); got != tt.want {
			t.Errorf("RoundHalfUp(%v, 2) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPaymentOp_Validate(t *testing.T) {
	assert.NoError(t, Percentage(0).Validate())
	assert.NoError(t, Percentage(100).Validate())
	assert.ErrorIs(t, Percentage(100.5).Validate(), ErrInvalidPercent)
	assert.ErrorIs(t, Percentage(-1).Validate(), ErrInvalidPercent)
	assert.NoError(t, FixedAmount(0).Validate())
	assert.ErrorIs(t, FixedAmount(-0.01).Validate(), ErrNegativeAmount)
}

func TestScope_Validate(t *testing.T) {
	assert.NoError(t, All().validate(100))
	assert.NoError(t, Following(100).validate(100))
	assert.ErrorIs(t, Following(0).validate(100), ErrInvalidScope)
	assert.ErrorIs(t, Following(101).validate(100), ErrInvalidScope)

	s, err := ParseScope("Following", 3)
	require.NoError(t, err)
	assert.Equal(t, Following(3), s)
	_, err = ParseScope("sideways", 0)
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func gridRows() []domain.LineItem {
	rows := []domain.LineItem{
		persisted("a", 1, 100),
		persisted("b", 2, 250),
		{ID: "c", BillID: testBill, LineNumber: 3, Fields: domain.LineFields{Description: "no charge"}},
		persisted("d", 4, 40),
		domain.NewPending(testBill, domain.LineFields{Charge: domain.Amount(999)}, 1),
		domain.NewDraft(testBill),
	}
	rows[1].Fields.ApprovedAmount = domain.Amount(0)
	rows[3].Fields.ApprovedAmount = domain.Amount(12)
	rows[3].Fields.Account = "ACC-1"
	return rows
}

func patchIDs(patches []domain.Patch) []string {
	out := make([]string, len(patches))
	for i, p := range patches {
		out[i] = p.ID
	}
	return out
}

func TestTargets(t *testing.T) {
	rows := gridRows()
	blankAccount := func(r domain.LineItem) bool { return domain.FieldAccount.Spec().Blank(&r.Fields) }

	tests := []struct {
		name   string
		scope  Scope
		anchor string
		want   []string
	}{
		{"all excludes placeholders", All(), "", []string{"a", "b", "c", "d"}},
		{"blank", Blank(), "", []string{"a", "b", "c"}},
		{"following includes anchor", Following(2), "b", []string{"b", "c"}},
		{"following clamps at the end", Following(10), "c", []string{"c", "d"}},
		{"following with missing anchor", Following(2), "zzz", nil},
		{"following anchored on draft", Following(2), domain.DraftID, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make([]string, 0)
			for _, r := range Targets(rows, tt.scope, tt.anchor, blankAccount) {
				got = append(got, r.ID)
			}
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("targets mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlanPayment_PercentageAllRows(t *testing.T) {
	patches, err := PlanPayment(gridRows(), domain.FieldApprovedAmount, Percentage(80), All(), "", true)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, patchIDs(patches))

	got := make([]float64, len(patches))
	for i, p := range patches {
		require.Equal(t, []domain.Field{domain.FieldApprovedAmount}, p.Fields)
		got[i] = *p.Values.ApprovedAmount
	}
	assert.Equal(t, []float64{80, 200, 0, 32}, got)
	assert.Equal(t, 250.0, *patches[1].Values.Charge, "siblings travel unchanged")
}

func TestPlanPayment_BlankRowsCoerceToZero(t *testing.T) {
	patches, err := PlanPayment(gridRows(), domain.FieldApprovedAmount, FixedAmount(25.555), Blank(), "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, patchIDs(patches))
	for _, p := range patches {
		assert.Equal(t, 25.56, *p.Values.ApprovedAmount)
		assert.Equal(t, domain.AllFields, p.Fields)
	}
}

func TestPlanPayment_Rejections(t *testing.T) {
	_, err := PlanPayment(gridRows(), domain.FieldCharge, Percentage(80), All(), "", true)
	assert.ErrorIs(t, err, ErrNotPaymentField)

	_, err = PlanPayment(gridRows(), domain.FieldPatientResp, Percentage(120), All(), "", true)
	assert.ErrorIs(t, err, ErrInvalidPercent)

	_, err = PlanPayment(gridRows(), domain.FieldThirdParty, Percentage(50), Following(1), "missing", true)
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestPlanAssignment(t *testing.T) {
	rows := gridRows()

	patches, err := PlanAssignment(rows, domain.FieldAccount, "ACC-9", Blank(), "", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, patchIDs(patches))
	assert.Equal(t, "ACC-9", patches[0].Values.Account)
	assert.Empty(t, rows[0].Fields.Account, "planning never mutates rows")

	_, err = PlanAssignment(rows, domain.FieldServiceStartDate, "not a date", All(), "", true)
	assert.ErrorIs(t, err, domain.ErrBadDate)

	patches, err = PlanAssignment(rows, domain.FieldQuantity, 0, Following(1), "d", true)
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, 0.0, *patches[0].Values.Quantity)
}
