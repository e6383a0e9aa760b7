package grid

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/andy/billgrid/internal/domain"
)

// editDraft applies an edit to the draft row. When the edit leaves the
// draft holding data it is promoted: the values move to a pending row, a
// fresh draft takes its place and the create call is returned.
func (c *Controller) editDraft(apply func(*domain.LineFields) error) (tea.Cmd, error) {
	draft, ok := c.store.Draft()
	if !ok {
		c.store.ReplaceDraft(domain.NewDraft(c.billID))
		draft, _ = c.store.Draft()
	}
	fields := draft.Fields
	if err := apply(&fields); err != nil {
		return nil, err
	}
	if err := c.store.SetFields(domain.DraftID, fields); err != nil {
		return nil, err
	}
	if !fields.HasAnyData() {
		return nil, nil
	}
	if c.billID == "" {
		c.notify(NoticeError, "Error", "Bill ID not available")
		return nil, ErrNoBill
	}
	return c.promote(fields), nil
}

func (c *Controller) promote(fields domain.LineFields) tea.Cmd {
	c.tickets++
	ticket := c.tickets
	c.snapshots[ticket] = fields

	c.store.ReplaceDraft(domain.NewDraft(c.billID))
	c.store.InsertBeforeDraft(domain.NewPending(c.billID, fields, ticket))
	c.logger.Debug("promoting draft row", zap.Uint64("ticket", ticket))

	gw, ctx, billID := c.gateway, c.ctx, c.billID
	return func() tea.Msg {
		rec, err := gw.Create(ctx, billID, fields)
		return createdMsg{ticket: ticket, record: rec, err: err}
	}
}

func (c *Controller) handleCreated(m createdMsg) tea.Cmd {
	snapshot, ok := c.snapshots[m.ticket]
	delete(c.snapshots, m.ticket)

	if m.err != nil {
		c.store.RemovePending(m.ticket)
		if ok {
			c.restoreDraft(snapshot)
		}
		c.logger.Warn("failed to create line item", zap.Error(m.err))
		c.notify(NoticeError, "Error", "Failed to create line item: "+domain.Message(m.err))
		return nil
	}

	rec := m.record
	rec.IsDraft = false
	if rec.Validation.Status == "" {
		rec.Validation = domain.RowValidation{Status: domain.StatusValid}
	}
	if !c.store.ReplacePending(m.ticket, rec) {
		if _, exists := c.store.Get(rec.ID); !exists {
			c.store.InsertBeforeDraft(rec)
		}
	}
	c.notify(NoticeSuccess, "Success", fmt.Sprintf("Line item %d created", rec.LineNumber))
	return c.enrichCmd()
}

// restoreDraft puts a failed snapshot back into the draft. Anything typed
// into the replacement draft meanwhile is kept; the snapshot only fills
// blanks.
func (c *Controller) restoreDraft(snapshot domain.LineFields) {
	current := domain.NewDraft(c.billID)
	if d, ok := c.store.Draft(); ok {
		current = d
	}
	current.Fields = mergeDraft(current.Fields, snapshot)
	c.store.ReplaceDraft(current)
}

func mergeDraft(current, snapshot domain.LineFields) domain.LineFields {
	out := current
	for _, f := range domain.AllFields {
		spec := f.Spec()
		keep := !spec.Blank(&out)
		if f == domain.FieldMedicareStatus {
			keep = out.MedicareStatus != "" && out.MedicareStatus != domain.MedicareTBD
		}
		if keep {
			continue
		}
		_ = spec.Set(&out, spec.Get(&snapshot))
	}
	return out
}
