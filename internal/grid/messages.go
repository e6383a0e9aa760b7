package grid

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/andy/billgrid/internal/domain"
)

// followUp is work to run once a reload lands
type followUp int

const (
	followNone followUp = iota
	followResequence
	followClearSelection
)

type loadedMsg struct {
	rows     []domain.LineItem
	stage    domain.Stage
	stageErr error
	err      error
	next     followUp
}

type createdMsg struct {
	ticket uint64
	record domain.LineItem
	err    error
}

type fieldSavedMsg struct {
	id    string
	saves []fieldSave
	err   error
}

type procedureDescribedMsg struct {
	id          string
	code        string
	save        fieldSave
	description string
	found       bool
	err         error
}

type enrichedMsg struct {
	errs []error
}

type bulkAppliedMsg struct {
	count int
	err   error
}

type deletedMsg struct {
	ids []string
	err error
}

type resequencedMsg struct {
	count int
	err   error
}

type duplicatedMsg struct {
	count int
	err   error
}

type validatedMsg struct {
	result domain.ValidationResult
	err    error
}

type stageSavedMsg struct {
	stage domain.Stage
	prev  domain.Stage
	err   error
}

type adjudicatedMsg struct {
	result *domain.ValidationResult
	err    error
}

type searchResultsMsg struct {
	seq     uint64
	field   domain.Field
	term    string
	results []domain.CodeMatch
	err     error
}

func (c *Controller) loadCmd(next followUp) tea.Cmd {
	gw, st, ctx, billID := c.gateway, c.stages, c.ctx, c.billID
	return func() tea.Msg {
		if billID == "" {
			return loadedMsg{err: ErrNoBill, next: next}
		}
		rows, err := gw.Load(ctx, billID)
		msg := loadedMsg{rows: rows, err: err, next: next}
		if err == nil && st != nil {
			msg.stage, msg.stageErr = st.Stage(ctx, billID)
		}
		return msg
	}
}

func (c *Controller) handleLoaded(m loadedMsg) tea.Cmd {
	if m.err != nil {
		c.logger.Error("failed to load line items", zap.Error(m.err))
		c.notify(NoticeError, "Error", "Failed to load line items: "+domain.Message(m.err))
		return nil
	}
	if m.stageErr != nil {
		c.logger.Warn("failed to load bill stage", zap.Error(m.stageErr))
	} else if m.stage != "" {
		c.stage = m.stage
	}

	c.store.ReplaceAllKeeping(m.rows, c.unconfirmed(m.rows))
	c.logger.Debug("line items loaded", zap.Int("rows", len(m.rows)))

	switch m.next {
	case followResequence:
		if cmd := c.resequenceCmd(); cmd != nil {
			return tea.Batch(c.enrichCmd(), cmd)
		}
		c.store.ClearSelection()
	case followClearSelection:
		c.store.ClearSelection()
	}
	return c.enrichCmd()
}

func (c *Controller) handleBulkApplied(m bulkAppliedMsg) tea.Cmd {
	if m.err != nil {
		c.logger.Error("bulk update failed", zap.Int("rows", m.count), zap.Error(m.err))
		c.notify(NoticeError, "Error", "Failed to update rows: "+domain.Message(m.err))
		return nil
	}
	c.notify(NoticeSuccess, "Success", fmt.Sprintf("Updated %d row(s)", m.count))
	return c.loadCmd(followNone)
}

func (c *Controller) handleDeleted(m deletedMsg) tea.Cmd {
	if m.err != nil {
		c.logger.Error("failed to delete line items", zap.Strings("ids", m.ids), zap.Error(m.err))
		c.notify(NoticeError, "Error", "Failed to delete line items: "+domain.Message(m.err))
		return nil
	}
	c.store.Remove(m.ids)
	c.notify(NoticeSuccess, "Success", fmt.Sprintf("Deleted %d line item(s)", len(m.ids)))
	return c.loadCmd(followResequence)
}

// resequenceCmd renumbers persisted rows 1..n in display order, writing
// only rows whose number changed
func (c *Controller) resequenceCmd() tea.Cmd {
	patches := make([]domain.Patch, 0)
	for i, r := range c.store.Real() {
		want := i + 1
		if r.LineNumber == want {
			continue
		}
		p := newPatch(r.ID, r.Fields, c.gateway.PartialUpdates())
		p.LineNumber = want
		p.Reason = "resequence"
		patches = append(patches, p)
	}
	if len(patches) == 0 {
		return nil
	}
	gw, ctx, billID := c.gateway, c.ctx, c.billID
	return func() tea.Msg {
		return resequencedMsg{count: len(patches), err: gw.Update(ctx, billID, patches)}
	}
}

func (c *Controller) handleResequenced(m resequencedMsg) tea.Cmd {
	if m.err != nil {
		c.logger.Error("failed to resequence line items", zap.Error(m.err))
		c.notify(NoticeWarning, "Warning", "Failed to resequence line items: "+domain.Message(m.err))
	}
	return c.loadCmd(followClearSelection)
}

func (c *Controller) handleDuplicated(m duplicatedMsg) tea.Cmd {
	if m.err != nil {
		c.logger.Error("failed to duplicate line items", zap.Error(m.err))
		c.notify(NoticeError, "Error", "Failed to duplicate line items: "+domain.Message(m.err))
		return nil
	}
	c.notify(NoticeSuccess, "Success", fmt.Sprintf("Created %d duplicate line item(s)", m.count))
	return c.loadCmd(followClearSelection)
}

func (c *Controller) handleValidated(m validatedMsg) tea.Cmd {
	if m.err != nil {
		c.logger.Error("validation failed", zap.Error(m.err))
		c.notify(NoticeError, "Error", "Validation failed: "+domain.Message(m.err))
		return nil
	}
	c.applyValidation(m.result)
	failures, warnings := Flatten(m.result)
	switch {
	case len(failures) > 0:
		c.notify(NoticeError, "Validation", fmt.Sprintf("%d error(s), %d warning(s)", len(failures), len(warnings)))
	case len(warnings) > 0:
		c.notify(NoticeWarning, "Validation", fmt.Sprintf("Passed with %d warning(s)", len(warnings)))
	default:
		c.notify(NoticeSuccess, "Validation", "All validation rules passed")
	}
	return nil
}

func (c *Controller) applyValidation(res domain.ValidationResult) {
	c.lastValidation = &res
	c.validations++
	c.store.ApplyValidation(BuildStatusMap(res))
}

func (c *Controller) handleStageSaved(m stageSavedMsg) tea.Cmd {
	if m.err == nil {
		c.notify(NoticeSuccess, "Success", "Stage set to "+m.stage.Label())
		return nil
	}
	if c.stage == m.stage {
		c.stage = m.prev
	}
	c.logger.Warn("failed to save stage", zap.String("stage", string(m.stage)), zap.Error(m.err))
	c.notify(NoticeError, "Error", "Failed to update stage: "+domain.Message(m.err))
	return nil
}

func (c *Controller) handleAdjudicated(m adjudicatedMsg) tea.Cmd {
	if m.result != nil {
		c.applyValidation(*m.result)
	}
	if m.err != nil {
		c.notify(NoticeError, "Error", "Failed to adjudicate bill: "+domain.Message(m.err))
		return nil
	}
	c.stage = domain.StageAdjudicated
	c.timers.Cancel(searchTimer)
	c.notify(NoticeSuccess, "Success", "Bill adjudicated")
	return nil
}

func (c *Controller) handleSearchResults(m searchResultsMsg) tea.Cmd {
	if m.seq != c.searchSeq {
		return nil
	}
	c.search = SearchState{Field: m.field, Term: m.term, Results: m.results, Err: m.err}
	if m.err != nil {
		c.logger.Warn("code search failed", zap.String("term", m.term), zap.Error(m.err))
		return nil
	}
	for _, r := range m.results {
		if r.Description != "" {
			c.cache.Put(m.field, r.CodeName, r.Description)
		}
	}
	return nil
}
