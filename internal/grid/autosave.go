package grid

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/andy/billgrid/internal/domain"
)

// fieldSave records what one save sent and what it replaced. A failed
// save only reverts when the row still holds sent.
type fieldSave struct {
	field domain.Field
	sent  any
	prev  any
}

type cellKey struct {
	id    string
	field domain.Field
}

// track registers an optimistic edit. The first unconfirmed edit on a
// cell remembers what it replaced as the stored value.
func (c *Controller) track(id string, s fieldSave) {
	k := cellKey{id: id, field: s.field}
	if c.inflight[k] == 0 {
		c.confirmed[k] = s.prev
	}
	c.inflight[k]++
}

// settle releases a tracked edit and returns the newest value known to be
// stored for the cell.
func (c *Controller) settle(id string, s fieldSave, stored bool) any {
	k := cellKey{id: id, field: s.field}
	if stored {
		c.confirmed[k] = s.sent
	}
	known, ok := c.confirmed[k]
	if !ok {
		known = s.prev
	}
	c.inflight[k]--
	if c.inflight[k] <= 0 {
		delete(c.inflight, k)
		delete(c.confirmed, k)
	}
	return known
}

// unconfirmed lists, per row, the cells a reload must not overwrite. The
// loaded values become the new stored baseline for those cells.
func (c *Controller) unconfirmed(records []domain.LineItem) map[string][]domain.Field {
	if len(c.inflight) == 0 {
		return nil
	}
	keep := make(map[string][]domain.Field)
	for k := range c.inflight {
		keep[k.id] = append(keep[k.id], k.field)
	}
	for i := range records {
		for _, f := range keep[records[i].ID] {
			c.confirmed[cellKey{id: records[i].ID, field: f}] = f.Spec().Get(&records[i].Fields)
		}
	}
	return keep
}

// saveField applies an edit optimistically and returns the persistence
// call. The procedure code is looked up first so its description can be
// stored in the same write.
func (c *Controller) saveField(id string, f domain.Field, v any) (tea.Cmd, error) {
	prev, err := c.store.UpdateField(id, f, v)
	if err != nil {
		return nil, err
	}
	row, _ := c.store.Get(id)
	sent := f.Spec().Get(&row.Fields)
	if sent == prev {
		return nil, nil
	}
	save := fieldSave{field: f, sent: sent, prev: prev}
	c.track(id, save)

	code, _ := sent.(string)
	switch {
	case f == domain.FieldProcedureCode && strings.TrimSpace(code) != "":
		return c.describeProcedureCmd(id, code, save), nil
	case f.IsCode() && strings.TrimSpace(code) != "":
		return tea.Batch(c.saveCmd(id, save), c.describeCmd(f, code)), nil
	}
	return c.saveCmd(id, save), nil
}

// saveCode applies a picked code. The description is already known, so the
// procedure code and its description go out together right away.
func (c *Controller) saveCode(id string, f domain.Field, match domain.CodeMatch) (tea.Cmd, error) {
	prev, err := c.store.UpdateField(id, f, match.CodeName)
	if err != nil {
		return nil, err
	}
	row, _ := c.store.Get(id)
	saves := []fieldSave{{field: f, sent: f.Spec().Get(&row.Fields), prev: prev}}

	if f == domain.FieldProcedureCode && match.Description != "" {
		prevDesc, err := c.store.UpdateField(id, domain.FieldDescription, match.Description)
		if err != nil {
			return nil, err
		}
		row, _ = c.store.Get(id)
		saves = append(saves, fieldSave{
			field: domain.FieldDescription,
			sent:  domain.FieldDescription.Spec().Get(&row.Fields),
			prev:  prevDesc,
		})
	}
	for _, s := range saves {
		c.track(id, s)
	}
	return c.saveCmd(id, saves...), nil
}

func (c *Controller) saveCmd(id string, saves ...fieldSave) tea.Cmd {
	row, ok := c.store.Get(id)
	if !ok {
		return nil
	}
	touched := make([]domain.Field, len(saves))
	names := make([]string, len(saves))
	for i, s := range saves {
		touched[i] = s.field
		names[i] = s.field.String()
	}
	patch := newPatch(id, row.Fields, c.gateway.PartialUpdates(), touched...)
	patch.Reason = "edit " + strings.Join(names, ", ")

	gw, ctx, billID := c.gateway, c.ctx, c.billID
	return func() tea.Msg {
		err := gw.Update(ctx, billID, []domain.Patch{patch})
		return fieldSavedMsg{id: id, saves: saves, err: err}
	}
}

func (c *Controller) handleFieldSaved(m fieldSavedMsg) tea.Cmd {
	if m.err == nil {
		for _, s := range m.saves {
			c.settle(m.id, s, true)
		}
		return nil
	}
	kind := domain.SaveErrorKindOf(m.err)
	c.logger.Warn("failed to save line item",
		zap.String("line_item_id", m.id),
		zap.Stringer("kind", kind),
		zap.Error(m.err),
	)

	for _, s := range m.saves {
		known := c.settle(m.id, s, false)
		row, ok := c.store.Get(m.id)
		if !ok {
			continue
		}
		spec := s.field.Spec()
		if spec.Get(&row.Fields) != s.sent {
			// a newer edit owns the cell
			continue
		}
		if _, err := c.store.UpdateField(m.id, s.field, known); err != nil {
			c.logger.Error("failed to revert field", zap.String("field", s.field.String()), zap.Error(err))
		}
	}

	label := "line item"
	if len(m.saves) > 0 {
		label = m.saves[0].field.Spec().Label
	}
	c.notify(NoticeError, "Error", fmt.Sprintf("Failed to save %s: %s", label, domain.Message(m.err)))

	if kind == domain.KindNotFound || kind == domain.KindReadOnly {
		return c.loadCmd(followNone)
	}
	return nil
}

func (c *Controller) describeProcedureCmd(id, code string, save fieldSave) tea.Cmd {
	cache, ctx := c.cache, c.ctx
	return func() tea.Msg {
		desc, found, err := cache.Describe(ctx, domain.FieldProcedureCode, code)
		return procedureDescribedMsg{id: id, code: code, save: save, description: desc, found: found, err: err}
	}
}

func (c *Controller) handleProcedureDescribed(m procedureDescribedMsg) tea.Cmd {
	row, ok := c.store.Get(m.id)
	if !ok || row.Fields.ProcedureCode != m.code {
		// superseded by a newer edit, which carries its own save
		c.settle(m.id, m.save, false)
		return nil
	}
	if m.err != nil {
		c.logger.Warn("failed to describe procedure code", zap.String("code", m.code), zap.Error(m.err))
	}
	saves := []fieldSave{m.save}
	if m.found && m.description != "" && row.Fields.Description != m.description {
		prevDesc, err := c.store.UpdateField(m.id, domain.FieldDescription, m.description)
		if err == nil {
			row, _ = c.store.Get(m.id)
			desc := fieldSave{
				field: domain.FieldDescription,
				sent:  domain.FieldDescription.Spec().Get(&row.Fields),
				prev:  prevDesc,
			}
			c.track(m.id, desc)
			saves = append(saves, desc)
		}
	}
	c.store.Rederive()
	return c.saveCmd(m.id, saves...)
}

func (c *Controller) describeCmd(f domain.Field, code string) tea.Cmd {
	cache, ctx := c.cache, c.ctx
	return func() tea.Msg {
		_, _, err := cache.Describe(ctx, f, code)
		var errs []error
		if err != nil {
			errs = append(errs, err)
		}
		return enrichedMsg{errs: errs}
	}
}

func (c *Controller) enrichCmd() tea.Cmd {
	rows := c.store.Rows()
	cache, ctx, workers := c.cache, c.ctx, c.settings.EnrichmentWorkers
	return func() tea.Msg {
		return enrichedMsg{errs: cache.Warm(ctx, rows, workers)}
	}
}

func (c *Controller) handleEnriched(m enrichedMsg) tea.Cmd {
	for _, err := range m.errs {
		c.logger.Debug("code enrichment failed", zap.Error(err))
	}
	c.store.Rederive()
	return nil
}
