package grid

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andy/billgrid/internal/domain"
)

func rowByID(t *testing.T, c *Controller, id string) domain.LineItem {
	t.Helper()
	for _, r := range c.Rows() {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("row %s not found", id)
	return domain.LineItem{}
}

func lineNumbers(rows []domain.LineItem) []int {
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		if !r.IsSentinel() {
			out = append(out, r.LineNumber)
		}
	}
	return out
}

func TestNew_RequiresGateway(t *testing.T) {
	_, err := New(context.Background(), testBill, Options{})
	assert.ErrorIs(t, err, ErrNoGateway)
}

func TestController_LoadAppendsDraft(t *testing.T) {
	h := newHarness(t, newFakeGateway(100, 250))

	rows := h.c.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"line-1", "line-2"}, realIDs(rows))
	assert.True(t, rows[2].IsDraft)
	assert.Equal(t, "$250.00", rows[1].Computed.Charge)
	assert.Equal(t, domain.StageKeying, h.c.Stage())
}

func TestController_LoadFailureNotifies(t *testing.T) {
	gw := newFakeGateway(100)
	gw.loadErr = errors.New("connection refused")
	h := newHarness(t, gw)

	assert.Empty(t, realIDs(h.c.Rows()))
	assert.Equal(t, "Failed to load line items: connection refused", h.notices.last().Message)
}

func TestController_DraftPromotion(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))

	cmd, err := h.c.SetField(domain.DraftID, domain.FieldCharge, "250")
	require.NoError(t, err)
	require.NotNil(t, cmd)

	rows := h.c.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, domain.PendingID, rows[1].ID)
	assert.Equal(t, 250.0, *rows[1].Fields.Charge)
	assert.True(t, rows[2].IsDraft)
	assert.False(t, rows[2].Fields.HasAnyData(), "a fresh draft replaces the promoted one at once")

	h.c.Drive(cmd)

	rows = h.c.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"line-1", "line-2"}, realIDs(rows))
	assert.Equal(t, []int{1, 2}, lineNumbers(rows))
	assert.True(t, rows[2].IsDraft)
	assert.Equal(t, "Line item 2 created", h.notices.last().Message)
	require.Len(t, h.gw.creates, 1)
	assert.Equal(t, 250.0, *h.gw.creates[0].Charge)
}

func TestController_DraftMedicareAloneDoesNotPromote(t *testing.T) {
	h := newHarness(t, newFakeGateway())

	cmd, err := h.c.SetField(domain.DraftID, domain.FieldMedicareStatus, "yes")
	require.NoError(t, err)
	assert.Nil(t, cmd)

	draft := rowByID(t, h.c, domain.DraftID)
	assert.Equal(t, domain.MedicareYes, draft.Fields.MedicareStatus)
	assert.Empty(t, h.gw.creates)
}

func TestController_DraftPromotionFailureRestoresDraft(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))
	h.gw.createErr = errors.New("insert failed")

	cmd, err := h.c.SetField(domain.DraftID, domain.FieldDescription, "Visit")
	require.NoError(t, err)
	h.c.Drive(cmd)

	rows := h.c.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "Visit", rows[1].Fields.Description)
	assert.True(t, rows[1].IsDraft)
	assert.Equal(t, "Failed to create line item: insert failed", h.notices.last().Message)
	assert.Equal(t, NoticeError, h.notices.last().Level)

	// the next edit retries with everything typed so far
	h.gw.createErr = nil
	cmd, err = h.c.SetField(domain.DraftID, domain.FieldAccount, "ACC-7")
	require.NoError(t, err)
	h.c.Drive(cmd)

	assert.Equal(t, []string{"line-1", "line-2"}, realIDs(h.c.Rows()))
	stored := h.gw.stored("line-2")
	assert.Equal(t, "Visit", stored.Fields.Description)
	assert.Equal(t, "ACC-7", stored.Fields.Account)
}

func TestController_ConcurrentPromotionsKeepOrder(t *testing.T) {
	h := newHarness(t, newFakeGateway())

	first, err := h.c.SetField(domain.DraftID, domain.FieldDescription, "first")
	require.NoError(t, err)
	second, err := h.c.SetField(domain.DraftID, domain.FieldDescription, "second")
	require.NoError(t, err)
	require.Len(t, h.c.store.Pending(), 2)

	// completions arrive out of order
	h.c.Drive(second)
	h.c.Drive(first)

	rows := h.c.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "second", rows[1].Fields.Description)
	assert.Equal(t, "first", rows[0].Fields.Description)
	assert.Empty(t, h.c.store.Pending())
}

func TestMergeDraft(t *testing.T) {
	current := domain.LineFields{Description: "typed later", MedicareStatus: domain.MedicareTBD}
	snapshot := domain.LineFields{
		Description:    "original",
		Charge:         domain.Amount(5),
		MedicareStatus: domain.MedicareYes,
	}

	got := mergeDraft(current, snapshot)
	assert.Equal(t, "typed later", got.Description)
	require.NotNil(t, got.Charge)
	assert.Equal(t, 5.0, *got.Charge)
	assert.Equal(t, domain.MedicareYes, got.MedicareStatus)
}

func TestController_DraftWithoutBill(t *testing.T) {
	notices := &noticeLog{}
	c, err := New(context.Background(), "", Options{Gateway: newFakeGateway(), Notifier: notices})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	cmd, err := c.SetField(domain.DraftID, domain.FieldDescription, "x")
	assert.ErrorIs(t, err, ErrNoBill)
	assert.Nil(t, cmd)
	assert.Equal(t, "Bill ID not available", notices.last().Message)
	assert.Equal(t, "x", rowByID(t, c, domain.DraftID).Fields.Description)
}

func TestController_AutosaveSendsOnlyTouchedColumns(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))

	cmd, err := h.c.SetField("line-1", domain.FieldAccount, "ACC-1")
	require.NoError(t, err)
	assert.Equal(t, "ACC-1", rowByID(t, h.c, "line-1").Fields.Account, "edit is applied before the save")

	h.c.Drive(cmd)
	require.Len(t, h.gw.updates, 1)
	patch := h.gw.updates[0][0]
	assert.Equal(t, []domain.Field{domain.FieldAccount}, patch.Fields)
	assert.Equal(t, 100.0, *patch.Values.Charge)
	assert.Equal(t, "ACC-1", h.gw.stored("line-1").Fields.Account)
	assert.Equal(t, 100.0, *h.gw.stored("line-1").Fields.Charge)
}

func TestController_AutosaveFullRecordGateway(t *testing.T) {
	gw := newFakeGateway(100)
	gw.partial = false
	h := newHarness(t, gw)

	cmd, err := h.c.SetField("line-1", domain.FieldQuantity, 2)
	require.NoError(t, err)
	h.c.Drive(cmd)

	patch := h.gw.updates[0][0]
	assert.Equal(t, domain.AllFields, patch.Fields)
	assert.Equal(t, 2.0, *h.gw.stored("line-1").Fields.Quantity)
	assert.Equal(t, 100.0, *h.gw.stored("line-1").Fields.Charge)
}

func TestController_AutosaveUnchangedValueSkipsSave(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))

	cmd, err := h.c.SetField("line-1", domain.FieldCharge, "$100.00")
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestController_AutosaveFailureReverts(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))
	h.gw.updateErr = domain.NewSaveError("update", domain.KindRejected, "line-1", errors.New("value rejected"))

	cmd, err := h.c.SetField("line-1", domain.FieldDescription, "Lab work")
	require.NoError(t, err)
	h.c.Drive(cmd)

	assert.Empty(t, rowByID(t, h.c, "line-1").Fields.Description)
	assert.Equal(t, "Failed to save Description: value rejected", h.notices.last().Message)
}

func TestController_StaleSaveFailureKeepsNewerEdit(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))
	h.gw.updateErr = domain.NewSaveError("update", domain.KindRejected, "line-1", errors.New("locked"))

	first, err := h.c.SetField("line-1", domain.FieldCharge, 150)
	require.NoError(t, err)
	second, err := h.c.SetField("line-1", domain.FieldCharge, 175)
	require.NoError(t, err)

	h.c.Drive(first)
	assert.Equal(t, 175.0, *rowByID(t, h.c, "line-1").Fields.Charge, "an older failure never clobbers a newer edit")

	h.c.Drive(second)
	assert.Equal(t, 100.0, *rowByID(t, h.c, "line-1").Fields.Charge, "the last failure restores the stored value")
	assert.Equal(t, 100.0, *h.gw.stored("line-1").Fields.Charge)
}

func TestController_SaveFailureRestoresNewestStoredValue(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))

	first, err := h.c.SetField("line-1", domain.FieldCharge, 150)
	require.NoError(t, err)
	second, err := h.c.SetField("line-1", domain.FieldCharge, 175)
	require.NoError(t, err)

	h.c.Drive(first)
	h.gw.updateErr = domain.NewSaveError("update", domain.KindRejected, "line-1", errors.New("locked"))
	h.c.Drive(second)

	assert.Equal(t, 150.0, *rowByID(t, h.c, "line-1").Fields.Charge)
	assert.Equal(t, 150.0, *h.gw.stored("line-1").Fields.Charge)
}

func TestController_ReloadKeepsUnconfirmedEdit(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))

	save, err := h.c.SetField("line-1", domain.FieldDescription, "Lab work")
	require.NoError(t, err)

	bulk, err := h.c.ApplyBulk(domain.FieldAccount, "ACC", All(), "")
	require.NoError(t, err)
	h.c.Drive(bulk)

	row := rowByID(t, h.c, "line-1")
	assert.Equal(t, "Lab work", row.Fields.Description, "the reload lands before the save")
	assert.Equal(t, "ACC", row.Fields.Account)

	h.c.Drive(save)
	h.c.Drive(h.c.Load())
	assert.Equal(t, "Lab work", rowByID(t, h.c, "line-1").Fields.Description)
	assert.Equal(t, "Lab work", h.gw.stored("line-1").Fields.Description)
}

func TestController_FailedSaveAfterReloadRestoresLoadedValue(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))

	save, err := h.c.SetField("line-1", domain.FieldDescription, "Lab work")
	require.NoError(t, err)

	bulk, err := h.c.ApplyBulk(domain.FieldDescription, "Visit", All(), "")
	require.NoError(t, err)
	h.c.Drive(bulk)
	assert.Equal(t, "Lab work", rowByID(t, h.c, "line-1").Fields.Description)

	h.gw.updateErr = domain.NewSaveError("update", domain.KindRejected, "line-1", errors.New("value rejected"))
	h.c.Drive(save)
	assert.Equal(t, "Visit", rowByID(t, h.c, "line-1").Fields.Description)
}

func TestController_NotFoundSaveReloads(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))
	loads := h.gw.loads
	h.gw.updateErr = domain.NewSaveError("update", domain.KindNotFound, "line-1", errors.New("line item not found"))

	cmd, err := h.c.SetField("line-1", domain.FieldAccount, "X")
	require.NoError(t, err)
	h.c.Drive(cmd)

	assert.Equal(t, loads+1, h.gw.loads)
	assert.Empty(t, rowByID(t, h.c, "line-1").Fields.Account)
}

func TestController_ProcedureCodeSavesDescriptionTogether(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))

	cmd, err := h.c.SetField("line-1", domain.FieldProcedureCode, "99213")
	require.NoError(t, err)
	h.c.Drive(cmd)

	require.Len(t, h.gw.updates, 1)
	patch := h.gw.updates[0][0]
	assert.Equal(t, []domain.Field{domain.FieldProcedureCode, domain.FieldDescription}, patch.Fields)

	row := rowByID(t, h.c, "line-1")
	assert.Equal(t, "Office visit, established patient", row.Fields.Description)
	assert.Contains(t, row.Computed.Tooltip, "CPT/HCPCS/NDC: 99213 - Office visit, established patient")
	assert.Equal(t, "Office visit, established patient", h.gw.stored("line-1").Fields.Description)
}

func TestController_UnknownProcedureCodeSavesAlone(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))

	cmd, err := h.c.SetField("line-1", domain.FieldProcedureCode, "CUSTOM-9")
	require.NoError(t, err)
	h.c.Drive(cmd)

	require.Len(t, h.gw.updates, 1)
	assert.Equal(t, []domain.Field{domain.FieldProcedureCode}, h.gw.updates[0][0].Fields)
	assert.Contains(t, rowByID(t, h.c, "line-1").Computed.Tooltip, "CUSTOM-9 - No description available")
}

func TestController_SelectCodeOnDraftPromotes(t *testing.T) {
	h := newHarness(t, newFakeGateway())

	cmd, err := h.c.SelectCode(domain.DraftID, domain.FieldProcedureCode, domain.CodeMatch{
		CodeName:    "99213",
		Description: "Office visit",
	})
	require.NoError(t, err)
	h.c.Drive(cmd)

	require.Len(t, h.gw.creates, 1)
	assert.Equal(t, "99213", h.gw.creates[0].ProcedureCode)
	assert.Equal(t, "Office visit", h.gw.creates[0].Description)
	assert.EqualValues(t, 0, h.lookup.calls.Load(), "picked descriptions are cached")

	_, err = h.c.SelectCode(domain.DraftID, domain.FieldCharge, domain.CodeMatch{CodeName: "1"})
	assert.ErrorIs(t, err, ErrNotCodeField)
}

func TestController_DuplicateFlagsFromLoad(t *testing.T) {
	gw := newFakeGateway(100, 200)
	gw.rows[0].Duplicate = domain.DuplicateExact
	gw.rows[0].Matches = []domain.DuplicateMatch{{BillNumber: "BILL-2026-001", LineNumber: 3, Charge: domain.Amount(100)}}
	h := newHarness(t, gw)

	assert.Equal(t, "Exact Duplicate", rowByID(t, h.c, "line-1").Computed.Duplicate)
	assert.Empty(t, rowByID(t, h.c, "line-2").Computed.Duplicate)
	assert.Equal(t, domain.DuplicateSummary{TotalLineItems: 2, Exact: 1}, h.c.Duplicates())

	cmd, err := h.c.SetField("line-1", domain.FieldAccount, "ACC")
	require.NoError(t, err)
	h.c.Drive(cmd)
	assert.Equal(t, domain.DuplicateExact, rowByID(t, h.c, "line-1").Duplicate, "edits keep the flag until the next load")
}

func TestController_SelectionIgnoresPlaceholders(t *testing.T) {
	h := newHarness(t, newFakeGateway(1, 2))

	assert.False(t, h.c.Select(domain.DraftID, true))
	h.c.SelectAll(true)
	assert.Equal(t, []string{"line-1", "line-2"}, h.c.SelectedIDs())
	h.c.SelectAll(false)
	assert.Empty(t, h.c.SelectedIDs())
}

func TestController_PaymentBulk(t *testing.T) {
	gw := newFakeGateway(100, 250)
	gw.seed(domain.LineFields{Description: "no charge"})
	h := newHarness(t, gw)

	cmd, err := h.c.ApplyPayment(domain.FieldApprovedAmount, Percentage(80), All(), "")
	require.NoError(t, err)
	assert.Nil(t, rowByID(t, h.c, "line-1").Fields.ApprovedAmount, "nothing changes before the batch succeeds")

	h.c.Drive(cmd)
	require.Len(t, h.gw.updates, 1, "one batch for all rows")

	got := make([]float64, 0)
	for _, r := range h.c.Rows() {
		if !r.IsSentinel() {
			got = append(got, *r.Fields.ApprovedAmount)
		}
	}
	if diff := cmp.Diff([]float64{80, 200, 0}, got); diff != "" {
		t.Errorf("approved amounts mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Updated 3 row(s)", h.notices.last().Message)
	assert.Equal(t, 280.0, h.c.Footer().Paid)
	assert.Equal(t, 70.0, h.c.Footer().Adjustments)
}

func TestController_BulkFailureLeavesStoreUntouched(t *testing.T) {
	h := newHarness(t, newFakeGateway(100))
	h.gw.updateErr = errors.New("timeout")
	version := h.c.Version()

	cmd, err := h.c.ApplyBulk(domain.FieldAccount, "ACC", All(), "")
	require.NoError(t, err)
	h.c.Drive(cmd)

	assert.Equal(t, version, h.c.Version())
	assert.Equal(t, "Failed to update rows: timeout", h.notices.last().Message)
}

func TestController_BulkBlankScopeFillsEmptyCells(t *testing.T) {
	gw := newFakeGateway()
	gw.seed(domain.LineFields{RemarkCode1: "X"})
	gw.seed(domain.LineFields{})
	gw.seed(domain.LineFields{})
	h := newHarness(t, gw)

	cmd, err := h.c.ApplyBulk(domain.FieldRemarkCode1, "A1", Blank(), "")
	require.NoError(t, err)
	h.c.Drive(cmd)

	require.Len(t, h.gw.updates, 1)
	assert.Len(t, h.gw.updates[0], 2, "filled cells are not written")
	got := make([]string, 0, 3)
	for _, r := range h.c.Rows() {
		if !r.IsSentinel() {
			got = append(got, r.Fields.RemarkCode1)
		}
	}
	if diff := cmp.Diff([]string{"X", "A1", "A1"}, got); diff != "" {
		t.Errorf("remark codes mismatch (-want +got):\n%s", diff)
	}
}

func TestController_PlaceholderIDsNeverReachGateway(t *testing.T) {
	h := newHarness(t, newFakeGateway(100, 200))

	create, err := h.c.SetField(domain.DraftID, domain.FieldCharge, "50")
	require.NoError(t, err)
	_, err = h.c.SetField(domain.PendingID, domain.FieldAccount, "X")
	assert.ErrorIs(t, err, ErrSentinelRow)

	h.c.SelectAll(true)
	bulk, err := h.c.ApplyBulk(domain.FieldAccount, "ACC", All(), "")
	require.NoError(t, err)
	pay, err := h.c.ApplyPayment(domain.FieldApprovedAmount, Percentage(80), All(), "")
	require.NoError(t, err)
	dup, err := h.c.DuplicateSelected(nil, false)
	require.NoError(t, err)

	h.c.Drive(bulk)
	h.c.Drive(pay)
	h.c.Drive(dup)
	h.c.Drive(create)

	h.c.Select("line-1", true)
	del, err := h.c.DeleteSelected()
	require.NoError(t, err)
	h.c.Drive(del)

	require.NotEmpty(t, h.gw.updates)
	for _, batch := range h.gw.updates {
		for _, p := range batch {
			assert.False(t, domain.IsSentinelID(p.ID), "update sent for %s", p.ID)
		}
	}
	for _, ids := range h.gw.deletes {
		for _, id := range ids {
			assert.False(t, domain.IsSentinelID(id), "delete sent for %s", id)
		}
	}
	require.Len(t, h.gw.creates, 1)
	assert.Equal(t, 50.0, *h.gw.creates[0].Charge)
}

func TestController_AccountsRestrictedToConfiguredList(t *testing.T) {
	gw := newFakeGateway(100)
	settings := DefaultSettings()
	settings.Accounts = []string{"ACC-1", "ACC-2"}
	c, err := New(context.Background(), testBill, Options{Gateway: gw, Logger: zap.NewNop(), Settings: settings})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	c.Drive(c.Load())

	_, err = c.SetField("line-1", domain.FieldAccount, "ACC-9")
	assert.ErrorIs(t, err, ErrUnknownAccount)
	_, err = c.ApplyBulk(domain.FieldAccount, "nope", All(), "")
	assert.ErrorIs(t, err, ErrUnknownAccount)
	assert.Empty(t, gw.updates)

	cmd, err := c.SetField("line-1", domain.FieldAccount, "acc-2")
	require.NoError(t, err)
	c.Drive(cmd)
	assert.Equal(t, "ACC-2", gw.stored("line-1").Fields.Account, "the configured spelling is stored")

	cmd, err = c.SetField("line-1", domain.FieldAccount, "")
	require.NoError(t, err)
	c.Drive(cmd)
	assert.Empty(t, gw.stored("line-1").Fields.Account, "clearing is always allowed")

	_, err = c.SetField("line-1", domain.FieldDescription, "anything")
	assert.NoError(t, err)
}

func TestController_BulkWithoutTargets(t *testing.T) {
	gw := newFakeGateway()
	gw.seed(domain.LineFields{Account: "A"})
	h := newHarness(t, gw)

	cmd, err := h.c.ApplyBulk(domain.FieldAccount, "B", Blank(), "")
	require.NoError(t, err)
	assert.Nil(t, cmd)
	assert.Equal(t, "No rows to update", h.notices.last().Message)

	_, err = h.c.ApplyBulk(domain.FieldAccount, "B", Following(101), "line-1")
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestController_DeleteResequences(t *testing.T) {
	h := newHarness(t, newFakeGateway(10, 20, 30, 40))
	h.c.Select("line-2", true)
	h.c.Select("line-3", true)

	cmd, err := h.c.DeleteSelected()
	require.NoError(t, err)
	h.c.Drive(cmd)

	rows := h.c.Rows()
	assert.Equal(t, []string{"line-1", "line-4"}, realIDs(rows))
	assert.Equal(t, []int{1, 2}, lineNumbers(rows))
	assert.Equal(t, 2, h.gw.stored("line-4").LineNumber)
	assert.Empty(t, h.c.SelectedIDs())

	require.Len(t, h.gw.updates, 1)
	reseq := h.gw.updates[0]
	require.Len(t, reseq, 1, "only rows whose number changed are written")
	assert.Equal(t, "line-4", reseq[0].ID)
	assert.Equal(t, 2, reseq[0].LineNumber)
	assert.Empty(t, reseq[0].Fields)
	assert.Contains(t, h.notices.messages(), "Deleted 2 line item(s)")
}

func TestController_ResequenceFailureKeepsDelete(t *testing.T) {
	h := newHarness(t, newFakeGateway(10, 20, 30))
	h.gw.updateErr = errors.New("deadlock")
	h.c.Select("line-1", true)

	cmd, err := h.c.DeleteSelected()
	require.NoError(t, err)
	h.c.Drive(cmd)

	assert.Equal(t, []string{"line-2", "line-3"}, realIDs(h.c.Rows()))
	assert.Equal(t, "Failed to resequence line items: deadlock", h.notices.last().Message)
	assert.Equal(t, NoticeWarning, h.notices.last().Level)
}

func TestController_DeleteWithoutSelection(t *testing.T) {
	h := newHarness(t, newFakeGateway(10))
	h.c.Select(domain.DraftID, true)

	cmd, err := h.c.DeleteSelected()
	require.NoError(t, err)
	assert.Nil(t, cmd)
	assert.Equal(t, "No saved items to delete", h.notices.last().Message)
	assert.Empty(t, h.gw.deletes)
}

func TestController_Duplicate(t *testing.T) {
	h := newHarness(t, newFakeGateway(10, 20))
	h.c.Select("line-1", true)

	_, err := h.c.DuplicateSelected(map[string]int{"line-1": 6}, false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	_, err = h.c.DuplicateSelected(map[string]int{"line-1": 101}, true)
	assert.ErrorIs(t, err, ErrTooManyDuplicates)

	cmd, err := h.c.DuplicateSelected(nil, false)
	require.NoError(t, err)
	h.c.Drive(cmd)

	rows := h.c.Rows()
	assert.Equal(t, []string{"line-1", "line-2", "line-3"}, realIDs(rows))
	assert.Equal(t, 10.0, *rowByID(t, h.c, "line-3").Fields.Charge)
	assert.Empty(t, h.c.SelectedIDs())
	assert.Equal(t, "Created 1 duplicate line item(s)", h.notices.last().Message)
}

func TestController_ValidationMapsStatuses(t *testing.T) {
	h := newHarness(t, newFakeGateway(10, 20, 30))
	h.valid.result = domain.ValidationResult{
		LineItem: []domain.Finding{
			{RuleID: "account_required", Severity: domain.SeverityError, AffectedLines: []int{2}},
		},
		Warnings: []domain.Finding{
			{RuleID: "high_value_line_item", Severity: domain.SeverityWarning, AffectedLines: []int{3}},
		},
	}

	cmd, err := h.c.Validate()
	require.NoError(t, err)
	h.c.Drive(cmd)

	statuses := make([]domain.ValidationStatus, 0)
	for _, r := range h.c.Rows() {
		statuses = append(statuses, r.Validation.Status)
	}
	assert.Equal(t, []domain.ValidationStatus{
		domain.StatusValid, domain.StatusError, domain.StatusWarning, domain.StatusValid,
	}, statuses)

	h.valid.err = errors.New("rules engine down")
	cmd, err = h.c.Validate()
	require.NoError(t, err)
	h.c.Drive(cmd)
	assert.Equal(t, domain.StatusError, rowByID(t, h.c, "line-2").Validation.Status, "a failed call leaves statuses alone")
	assert.Equal(t, "Validation failed: rules engine down", h.notices.last().Message)
}

func TestController_StageChanges(t *testing.T) {
	h := newHarness(t, newFakeGateway(10))

	_, err := h.c.SetStage(domain.StageAdjudicated)
	assert.ErrorIs(t, err, ErrStageNotSelectable)

	cmd, err := h.c.SetStage(domain.StageBillReview)
	require.NoError(t, err)
	assert.Equal(t, domain.StageBillReview, h.c.Stage())
	h.c.Drive(cmd)
	assert.Equal(t, []domain.Stage{domain.StageBillReview}, h.stages.sets)

	h.stages.setErr = errors.New("write failed")
	cmd, err = h.c.SetStage(domain.StageQuoteView)
	require.NoError(t, err)
	h.c.Drive(cmd)
	assert.Equal(t, domain.StageBillReview, h.c.Stage(), "a failed write restores the previous stage")
	assert.Equal(t, "Failed to update stage: write failed", h.notices.last().Message)
}

func TestController_AdjudicatedIsReadOnly(t *testing.T) {
	gw := newFakeGateway(10)
	h := newHarness(t, gw)
	h.stages.stage = domain.StageAdjudicated
	h.c.Drive(h.c.Load())

	require.True(t, h.c.ReadOnly())
	_, err := h.c.SetField("line-1", domain.FieldCharge, 1)
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = h.c.SetField(domain.DraftID, domain.FieldCharge, 1)
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = h.c.ApplyPayment(domain.FieldApprovedAmount, Percentage(80), All(), "")
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = h.c.DeleteSelected()
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = h.c.SetStage(domain.StageKeying)
	assert.ErrorIs(t, err, ErrReadOnly)

	_, err = h.c.Validate()
	assert.NoError(t, err, "validation stays available")
}

func TestController_CommitAdjudication(t *testing.T) {
	h := newHarness(t, newFakeGateway(10))
	h.valid.result = domain.ValidationResult{
		CanProceed: false,
		LineItem: []domain.Finding{
			{RuleID: "account_required", Severity: domain.SeverityError, AffectedLines: []int{1}},
		},
	}

	cmd, err := h.c.CommitAdjudication()
	require.NoError(t, err)
	h.c.Drive(cmd)
	assert.Equal(t, domain.StageKeying, h.c.Stage())
	assert.Empty(t, h.stages.sets)
	assert.True(t, strings.HasPrefix(h.notices.last().Message, "Failed to adjudicate bill"))
	assert.Equal(t, domain.StatusError, rowByID(t, h.c, "line-1").Validation.Status)

	h.valid.result = domain.ValidationResult{CanProceed: true}
	cmd, err = h.c.CommitAdjudication()
	require.NoError(t, err)
	h.c.Drive(cmd)
	assert.Equal(t, domain.StageAdjudicated, h.c.Stage())
	assert.Equal(t, []domain.Stage{domain.StageAdjudicated}, h.stages.sets)

	_, err = h.c.SetField("line-1", domain.FieldAccount, "A")
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestController_SearchDebounce(t *testing.T) {
	h := newHarness(t, newFakeGateway())

	assert.Nil(t, h.c.Search(domain.FieldProcedureCode, "9"), "below the minimum length")

	stale := h.c.Search(domain.FieldProcedureCode, "99")
	fresh := h.c.Search(domain.FieldProcedureCode, "992")
	require.NotNil(t, stale)
	require.NotNil(t, fresh)
	assert.True(t, h.c.SearchResults().Loading)

	h.c.Drive(stale)
	h.c.Drive(fresh)

	state := h.c.SearchResults()
	assert.False(t, state.Loading)
	assert.Equal(t, "992", state.Term)
	require.Len(t, state.Results, 1)
	assert.Equal(t, "99213", state.Results[0].CodeName)
	assert.EqualValues(t, 1, h.lookup.searches.Load(), "superseded searches never reach the lookup")
}

func TestController_CloseIgnoresLateCompletions(t *testing.T) {
	h := newHarness(t, newFakeGateway())

	cmd, err := h.c.SetField(domain.DraftID, domain.FieldDescription, "late")
	require.NoError(t, err)
	search := h.c.Search(domain.FieldRevenueCode, "04")

	h.c.Close()
	h.c.Drive(cmd)
	h.c.Drive(search)

	assert.Len(t, h.c.store.Pending(), 1, "completion after close is ignored")
	assert.Equal(t, int32(0), h.lookup.searches.Load())

	_, err = h.c.SetField(domain.DraftID, domain.FieldDescription, "more")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, h.c.Load())
}
