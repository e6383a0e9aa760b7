package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/billgrid/internal/app"
	"github.com/andy/billgrid/internal/domain"
	"github.com/andy/billgrid/internal/grid"
	"github.com/andy/billgrid/internal/service"
)

type gridMode int

const (
	gridModeNavigate   gridMode = iota
	gridModeEdit                // inline cell editing, with the code picker on code columns
	gridModeBulkValue           // value for a bulk assignment
	gridModePayment             // percentage or amount for a payment operation
	gridModeScope               // all / blank / following
	gridModeScopeCount          // row count for a following scope
	gridModeDuplicate           // copies per selected row
	gridModeConfirm             // y/n before a destructive or large operation
	gridModeStage               // stage picker
	gridModeReport              // validation report
)

type confirmAction int

const (
	confirmDelete confirmAction = iota
	confirmDuplicate
	confirmAdjudicate
)

const maxNotices = 4

// columnWidths by field kind
var columnWidths = map[domain.Kind]int{
	domain.KindDate:     10,
	domain.KindCode:     8,
	domain.KindText:     24,
	domain.KindQuantity: 5,
	domain.KindCurrency: 11,
	domain.KindAccount:  10,
	domain.KindStatus:   10,
}

type exportedMsg struct {
	path string
	err  error
}

// GridModel is the inline line item editor for one bill
type GridModel struct {
	app  *app.App
	bill *domain.Bill
	ctrl *grid.Controller

	width      int
	height     int
	row        int
	col        int
	offset     int
	colOffset  int
	maxVisible int

	mode       gridMode
	input      textinput.Model
	pickCursor int // -1 until the user moves into the code picker
	notices    []grid.Notice

	// Bulk and payment dialogs
	bulkField domain.Field
	bulkValue string
	payment   *grid.PaymentOp

	// Duplicate and confirmations
	dupCounts   map[string]int
	confirm     confirmAction
	confirmText string
	stageCursor int

	// Validation report
	report         viewport.Model
	awaitingReport bool
	reportOnError  bool
	reportSeen     uint64
}

// NewGridModel opens a controller for bill
func NewGridModel(a *app.App, bill *domain.Bill) (*GridModel, error) {
	m := &GridModel{
		app:        a,
		bill:       bill,
		maxVisible: 12,
		pickCursor: -1,
	}
	ctrl, err := a.NewGrid(context.Background(), bill.ID, grid.NotifierFunc(m.addNotice))
	if err != nil {
		return nil, fmt.Errorf("failed to open bill %s: %w", bill.Number, err)
	}
	m.ctrl = ctrl
	m.report = viewport.New(80, 20)
	return m, nil
}

func (m *GridModel) Init() tea.Cmd {
	return m.ctrl.Load()
}

// Close releases the controller
func (m *GridModel) Close() {
	m.ctrl.Close()
}

// Owns reports whether msg is a controller completion
func (m *GridModel) Owns(msg tea.Msg) bool {
	return m.ctrl.Owns(msg)
}

// Saving reports whether any new row is still waiting for its id
func (m *GridModel) Saving() bool {
	for _, r := range m.ctrl.Rows() {
		if r.IsPending() {
			return true
		}
	}
	return false
}

// IsCapturingInput returns true while a dialog or cell editor is open
func (m *GridModel) IsCapturingInput() bool {
	return m.mode != gridModeNavigate && m.mode != gridModeReport
}

func (m *GridModel) setSize(width, height int) {
	m.width, m.height = width, height
	m.maxVisible = max(height-24, 5)
	m.report.Width = max(width-10, 20)
	m.report.Height = max(height-14, 5)
}

func (m *GridModel) addNotice(n grid.Notice) {
	m.notices = append(m.notices, n)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func (m *GridModel) fail(err error) {
	m.addNotice(grid.Notice{Level: grid.NoticeError, Title: "Error", Message: err.Error()})
}

// handle feeds a controller completion back and refreshes derived view state
func (m *GridModel) handle(msg tea.Msg) tea.Cmd {
	cmd := m.ctrl.Handle(msg)
	m.clampCursor()

	if m.awaitingReport && m.ctrl.ValidationCount() > m.reportSeen {
		m.awaitingReport = false
		m.reportSeen = m.ctrl.ValidationCount()
		if res, ok := m.ctrl.LastValidation(); ok && (!m.reportOnError || !res.CanProceed) {
			m.showReport(res)
		}
	}
	if m.ctrl.ReadOnly() && m.IsCapturingInput() {
		m.mode = gridModeNavigate
	}
	return cmd
}

func (m *GridModel) showReport(res domain.ValidationResult) {
	md := service.ValidationMarkdown(m.bill, res)
	out, err := service.RenderMarkdown(md, "dark", m.report.Width)
	if err != nil {
		out = md
	}
	m.report.SetContent(out)
	m.report.GotoTop()
	m.mode = gridModeReport
}

func (m *GridModel) rows() []domain.LineItem {
	return m.ctrl.Rows()
}

func (m *GridModel) field() domain.Field {
	return domain.AllFields[m.col]
}

func (m *GridModel) currentRow() (domain.LineItem, bool) {
	rows := m.rows()
	if m.row < 0 || m.row >= len(rows) {
		return domain.LineItem{}, false
	}
	return rows[m.row], true
}

func (m *GridModel) clampCursor() {
	n := len(m.rows())
	m.row = clamp(m.row, 0, max(n-1, 0))
	if m.row < m.offset {
		m.offset = m.row
	}
	if m.row >= m.offset+m.maxVisible {
		m.offset = m.row - m.maxVisible + 1
	}
	m.col = clamp(m.col, 0, len(domain.AllFields)-1)
	if m.col < m.colOffset {
		m.colOffset = m.col
	}
}

// run executes a controller operation, reporting synchronous errors as notices
func (m *GridModel) run(cmd tea.Cmd, err error) tea.Cmd {
	if err != nil {
		m.fail(err)
		return nil
	}
	return cmd
}

func (m *GridModel) newInput(placeholder, value string, width int) tea.Cmd {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 255
	ti.Width = width
	ti.SetValue(value)
	m.input = ti
	return m.input.Focus()
}

func (m *GridModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RefreshDataMsg:
		return m, m.ctrl.Load()
	case exportedMsg:
		if msg.err != nil {
			m.fail(msg.err)
		} else {
			m.addNotice(grid.Notice{Level: grid.NoticeSuccess, Title: "Export", Message: "Exported to " + msg.path})
		}
		return m, nil
	}

	switch m.mode {
	case gridModeEdit:
		return m, m.updateEdit(msg)
	case gridModeBulkValue, gridModePayment, gridModeScopeCount, gridModeDuplicate:
		return m, m.updateDialog(msg)
	case gridModeScope:
		return m, m.updateScope(msg)
	case gridModeConfirm:
		return m, m.updateConfirm(msg)
	case gridModeStage:
		return m, m.updateStage(msg)
	case gridModeReport:
		return m, m.updateReport(msg)
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	return m, m.updateNavigate(keyMsg)
}

func (m *GridModel) updateNavigate(msg tea.KeyMsg) tea.Cmd {
	rows := m.rows()
	km := DefaultKeyMap

	switch {
	case key.Matches(msg, km.Back):
		return func() tea.Msg { return SwitchScreenMsg{Screen: ScreenBills} }
	case key.Matches(msg, km.Up):
		m.row--
	case key.Matches(msg, km.Down):
		m.row++
	case key.Matches(msg, km.Left):
		m.col--
	case key.Matches(msg, km.Right):
		m.col++
	case key.Matches(msg, km.Home):
		m.col = 0
	case key.Matches(msg, km.End):
		m.col = len(domain.AllFields) - 1
	case key.Matches(msg, km.PageUp):
		m.row -= m.maxVisible
	case key.Matches(msg, km.PageDown):
		m.row += m.maxVisible

	case key.Matches(msg, km.Edit):
		return m.startEdit()

	case key.Matches(msg, km.Clear):
		if r, ok := m.currentRow(); ok {
			return m.run(m.ctrl.SetField(r.ID, m.field(), nil))
		}

	case key.Matches(msg, km.Toggle):
		if r, ok := m.currentRow(); ok {
			m.ctrl.Select(r.ID, !r.Selected)
			m.row++
		}

	case key.Matches(msg, km.SelectAll):
		m.ctrl.SelectAll(len(m.ctrl.SelectedIDs()) == 0)

	case key.Matches(msg, km.Delete):
		if m.ctrl.ReadOnly() {
			m.fail(grid.ErrReadOnly)
			return nil
		}
		if len(m.ctrl.SelectedIDs()) == 0 {
			if r, ok := m.currentRow(); ok {
				m.ctrl.Select(r.ID, true)
			}
		}
		n := len(m.ctrl.SelectedIDs())
		if n == 0 {
			return m.run(m.ctrl.DeleteSelected())
		}
		m.askConfirm(confirmDelete, fmt.Sprintf("Delete %d line item(s)? (y/n)", n))

	case key.Matches(msg, km.Duplicate):
		if m.ctrl.ReadOnly() {
			m.fail(grid.ErrReadOnly)
			return nil
		}
		if len(m.ctrl.SelectedIDs()) == 0 {
			if r, ok := m.currentRow(); ok {
				m.ctrl.Select(r.ID, true)
			}
		}
		m.mode = gridModeDuplicate
		return m.newInput("1", "1", 6)

	case key.Matches(msg, km.Bulk):
		if m.ctrl.ReadOnly() {
			m.fail(grid.ErrReadOnly)
			return nil
		}
		m.bulkField = m.field()
		m.payment = nil
		m.mode = gridModeBulkValue
		return m.newInput(m.bulkField.Spec().Label, "", 30)

	case key.Matches(msg, km.Payment):
		if m.ctrl.ReadOnly() {
			m.fail(grid.ErrReadOnly)
			return nil
		}
		f := m.field()
		if !f.IsPayment() {
			m.fail(fmt.Errorf("payment operations apply to %s, %s and %s",
				domain.FieldApprovedAmount.Spec().Label,
				domain.FieldThirdParty.Spec().Label,
				domain.FieldPatientResp.Spec().Label))
			return nil
		}
		m.bulkField = f
		m.mode = gridModePayment
		pct := strconv.FormatFloat(m.app.Config.Grid.DefaultPaymentPercent, 'f', -1, 64) + "%"
		return m.newInput("80% or 25.00", pct, 12)

	case key.Matches(msg, km.Validate):
		cmd, err := m.ctrl.Validate()
		if err == nil {
			m.awaitingReport, m.reportOnError = true, false
		}
		return m.run(cmd, err)

	case key.Matches(msg, km.Stage):
		if m.ctrl.ReadOnly() {
			m.fail(grid.ErrReadOnly)
			return nil
		}
		m.stageCursor = 0
		for i, s := range domain.SelectableStages {
			if s == m.ctrl.Stage() {
				m.stageCursor = i
			}
		}
		m.mode = gridModeStage

	case key.Matches(msg, km.Adjudicate):
		if m.ctrl.ReadOnly() {
			m.fail(grid.ErrReadOnly)
			return nil
		}
		m.askConfirm(confirmAdjudicate, "Adjudicate this bill? Line items will become read-only. (y/n)")

	case key.Matches(msg, km.Export):
		return m.exportCmd()

	case key.Matches(msg, km.Reload):
		return m.ctrl.Load()

	default:
		// Typing on a cell starts editing with that character
		if msg.Type == tea.KeyRunes && len(msg.Runes) > 0 && isCellStarter(msg.Runes[0]) {
			if cmd := m.startEdit(); m.mode == gridModeEdit {
				m.input.SetValue(string(msg.Runes))
				m.input.CursorEnd()
				return tea.Batch(cmd, m.search())
			}
		}
	}

	m.row = clamp(m.row, 0, max(len(rows)-1, 0))
	m.clampCursor()
	return nil
}

// isCellStarter reports whether r begins an edit instead of running a command
func isCellStarter(r rune) bool {
	return (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '/'
}

func (m *GridModel) startEdit() tea.Cmd {
	if m.ctrl.ReadOnly() {
		m.fail(grid.ErrReadOnly)
		return nil
	}
	r, ok := m.currentRow()
	if !ok {
		return nil
	}
	if r.IsPending() {
		m.addNotice(grid.Notice{Level: grid.NoticeInfo, Title: "Saving", Message: "Row is still being saved"})
		return nil
	}
	f := m.field()
	spec := f.Spec()
	m.mode = gridModeEdit
	m.pickCursor = -1
	return m.newInput(spec.Label, spec.Format(&r.Fields), max(columnWidths[spec.Kind]+10, 20))
}

func (m *GridModel) search() tea.Cmd {
	f := m.field()
	if !f.IsCode() {
		return nil
	}
	m.pickCursor = -1
	return m.ctrl.Search(f, m.input.Value())
}

func (m *GridModel) updateEdit(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	}

	f := m.field()
	results := m.ctrl.SearchResults().Results

	switch keyMsg.String() {
	case "esc":
		m.ctrl.Search(f, "")
		m.mode = gridModeNavigate
		return nil

	case "up":
		if f.IsCode() && m.pickCursor >= 0 {
			m.pickCursor--
		}
		return nil

	case "down":
		if f.IsCode() && m.pickCursor < len(results)-1 {
			m.pickCursor++
		}
		return nil

	case "enter", "tab":
		r, ok := m.currentRow()
		m.mode = gridModeNavigate
		if !ok {
			return nil
		}
		var cmd tea.Cmd
		if f.IsCode() && m.pickCursor >= 0 && m.pickCursor < len(results) {
			cmd = m.run(m.ctrl.SelectCode(r.ID, f, results[m.pickCursor]))
		} else {
			m.ctrl.Search(f, "")
			cmd = m.run(m.ctrl.SetField(r.ID, f, m.input.Value()))
		}
		if keyMsg.String() == "tab" {
			m.col++
		}
		m.clampCursor()
		return cmd
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		return tea.Batch(cmd, m.search())
	}
	return cmd
}

func (m *GridModel) updateDialog(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	}

	switch keyMsg.String() {
	case "esc":
		m.mode = gridModeNavigate
		return nil
	case "enter":
		return m.submitDialog()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *GridModel) submitDialog() tea.Cmd {
	value := strings.TrimSpace(m.input.Value())

	switch m.mode {
	case gridModeBulkValue:
		if err := m.bulkField.Spec().Validate(value); err != nil {
			m.fail(err)
			return nil
		}
		m.bulkValue = value
		m.mode = gridModeScope

	case gridModePayment:
		op, err := parsePaymentOp(value)
		if err != nil {
			m.fail(err)
			return nil
		}
		m.payment = &op
		m.mode = gridModeScope

	case gridModeScopeCount:
		n, err := strconv.Atoi(value)
		if err != nil {
			m.fail(fmt.Errorf("row count must be a whole number"))
			return nil
		}
		m.mode = gridModeNavigate
		return m.applyScope(grid.Following(n))

	case gridModeDuplicate:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			m.fail(fmt.Errorf("copies must be a positive whole number"))
			return nil
		}
		m.dupCounts = make(map[string]int)
		for _, id := range m.ctrl.SelectedIDs() {
			m.dupCounts[id] = n
		}
		m.mode = gridModeNavigate
		cmd, err := m.ctrl.DuplicateSelected(m.dupCounts, false)
		if errors.Is(err, grid.ErrConfirmationRequired) {
			m.askConfirm(confirmDuplicate, fmt.Sprintf("Create %d copies? (y/n)", n*len(m.dupCounts)))
			return nil
		}
		return m.run(cmd, err)
	}
	return nil
}

// parsePaymentOp reads "80%" as a percentage and anything else as an amount
func parsePaymentOp(s string) (grid.PaymentOp, error) {
	var op grid.PaymentOp
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil {
			return op, fmt.Errorf("invalid percentage %q", s)
		}
		op = grid.Percentage(v)
	} else {
		v, err := domain.ParseAmount(s)
		if err != nil || v == nil {
			return op, fmt.Errorf("invalid amount %q", s)
		}
		op = grid.FixedAmount(*v)
	}
	return op, op.Validate()
}

func (m *GridModel) updateScope(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch keyMsg.String() {
	case "a":
		m.mode = gridModeNavigate
		return m.applyScope(grid.All())
	case "b":
		m.mode = gridModeNavigate
		return m.applyScope(grid.Blank())
	case "f":
		m.mode = gridModeScopeCount
		return m.newInput("rows", "1", 6)
	case "esc":
		m.mode = gridModeNavigate
	}
	return nil
}

func (m *GridModel) applyScope(scope grid.Scope) tea.Cmd {
	anchor := ""
	if r, ok := m.currentRow(); ok {
		anchor = r.ID
	}
	if m.payment != nil {
		op := *m.payment
		m.payment = nil
		return m.run(m.ctrl.ApplyPayment(m.bulkField, op, scope, anchor))
	}
	return m.run(m.ctrl.ApplyBulk(m.bulkField, m.bulkValue, scope, anchor))
}

func (m *GridModel) askConfirm(action confirmAction, text string) {
	m.confirm = action
	m.confirmText = text
	m.mode = gridModeConfirm
}

func (m *GridModel) updateConfirm(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	m.mode = gridModeNavigate
	if keyMsg.String() != "y" {
		// Any other key cancels
		return nil
	}

	switch m.confirm {
	case confirmDelete:
		return m.run(m.ctrl.DeleteSelected())
	case confirmDuplicate:
		return m.run(m.ctrl.DuplicateSelected(m.dupCounts, true))
	case confirmAdjudicate:
		cmd, err := m.ctrl.CommitAdjudication()
		if err == nil {
			m.awaitingReport, m.reportOnError = true, true
		}
		return m.run(cmd, err)
	}
	return nil
}

func (m *GridModel) updateStage(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch {
	case key.Matches(keyMsg, DefaultKeyMap.Back):
		m.mode = gridModeNavigate
	case key.Matches(keyMsg, DefaultKeyMap.Up):
		if m.stageCursor > 0 {
			m.stageCursor--
		}
	case key.Matches(keyMsg, DefaultKeyMap.Down):
		if m.stageCursor < len(domain.SelectableStages)-1 {
			m.stageCursor++
		}
	case key.Matches(keyMsg, DefaultKeyMap.Select):
		m.mode = gridModeNavigate
		return m.run(m.ctrl.SetStage(domain.SelectableStages[m.stageCursor]))
	}
	return nil
}

func (m *GridModel) updateReport(msg tea.Msg) tea.Cmd {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && (key.Matches(keyMsg, DefaultKeyMap.Back) || keyMsg.String() == "enter") {
		m.mode = gridModeNavigate
		return nil
	}
	var cmd tea.Cmd
	m.report, cmd = m.report.Update(msg)
	return cmd
}

func (m *GridModel) exportCmd() tea.Cmd {
	bill, rows := m.bill, m.rows()
	path := filepath.Join(m.app.Config.Export.OutputDir, service.ExportFileName(bill))
	return func() tea.Msg {
		return exportedMsg{path: path, err: service.ExportWorkbook(path, bill, rows)}
	}
}

// visibleColumns returns the column range that fits the screen, scrolling
// the offset so the cursor column is shown
func (m *GridModel) visibleColumns() (int, int) {
	avail := m.width - 24
	if avail < 40 {
		avail = 40
	}
	fits := func(from, to int) bool {
		w := 0
		for i := from; i <= to; i++ {
			w += columnWidths[domain.AllFields[i].Spec().Kind] + 1
		}
		return w <= avail
	}
	for m.col > m.colOffset && !fits(m.colOffset, m.col) {
		m.colOffset++
	}
	end := m.colOffset
	for end+1 < len(domain.AllFields) && fits(m.colOffset, end+1) {
		end++
	}
	return m.colOffset, end
}

func cellText(r domain.LineItem, f domain.Field) (string, bool) {
	spec := f.Spec()
	switch spec.Kind {
	case domain.KindDate:
		return domain.FormatDate(spec.Format(&r.Fields)), false
	case domain.KindCurrency:
		v, _ := spec.Get(&r.Fields).(float64)
		if spec.Blank(&r.Fields) {
			return "", true
		}
		return domain.FormatMoney(v), true
	case domain.KindQuantity:
		return spec.Format(&r.Fields), true
	}
	return spec.Format(&r.Fields), false
}

func (m *GridModel) View() string {
	switch m.mode {
	case gridModeReport:
		return titleStyle.Render("Validation Report") + "\n\n" +
			m.report.View() + "\n\n" +
			helpStyle.Render("  j/k: scroll  esc: close")
	case gridModeStage:
		return m.viewStage()
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Bill " + m.bill.Number))
	b.WriteString("  " + stageStyle.Render(m.ctrl.Stage().Label()))
	if m.ctrl.ReadOnly() {
		b.WriteString("  " + readOnlyStyle.Render("READ ONLY"))
	}
	if sel := len(m.ctrl.SelectedIDs()); sel > 0 {
		b.WriteString(subtitleStyle.Render(fmt.Sprintf("  %d selected", sel)))
	}
	b.WriteString("\n\n")

	b.WriteString(m.viewTable())
	b.WriteString("\n")
	b.WriteString(m.viewTotals())
	b.WriteString("\n\n")
	b.WriteString(m.viewDetail())
	b.WriteString(m.viewNotices())
	b.WriteString("\n")
	b.WriteString(m.viewHelp())
	return b.String()
}

func (m *GridModel) viewTable() string {
	first, last := m.visibleColumns()
	rows := m.rows()

	var b strings.Builder
	header := "      " + fit("#", 4) + " "
	for i := first; i <= last; i++ {
		spec := domain.AllFields[i].Spec()
		label := fit(spec.Label, columnWidths[spec.Kind])
		if i == m.col {
			label = rowCursorStyle.Render(label)
		} else {
			label = subtitleStyle.Render(label)
		}
		header += label + " "
	}
	b.WriteString(header + "\n")

	end := min(m.offset+m.maxVisible, len(rows))
	for ri := m.offset; ri < end; ri++ {
		b.WriteString(m.viewRow(rows[ri], ri, first, last) + "\n")
	}
	if m.offset > 0 {
		b.WriteString(subtitleStyle.Render("  ... more above") + "\n")
	}
	if end < len(rows) {
		b.WriteString(subtitleStyle.Render("  ... more below") + "\n")
	}
	return b.String()
}

func (m *GridModel) viewRow(r domain.LineItem, ri, first, last int) string {
	mark := "[ ]"
	switch {
	case r.IsDraft:
		mark = " + "
	case r.IsPending():
		mark = " … "
	case r.Selected:
		mark = "[x]"
	}

	glyph := " "
	rowStyle := lipgloss.NewStyle()
	switch {
	case r.IsDraft:
		rowStyle = draftRowStyle
	case r.IsPending():
		rowStyle = pendingRowStyle
	case r.Validation.Status == domain.StatusError:
		glyph, rowStyle = "✗", errorRowStyle
	case r.Validation.Status == domain.StatusWarning:
		glyph, rowStyle = "!", warningRowStyle
	case r.Duplicate != domain.DuplicateNone:
		glyph = "="
	}

	num := ""
	if r.LineNumber > 0 {
		num = strconv.Itoa(r.LineNumber)
	}
	prefix := fmt.Sprintf("%s %s %s ", mark, glyph, fitRight(num, 4))
	if ri == m.row {
		prefix = rowCursorStyle.Render(prefix)
	} else {
		prefix = rowStyle.Render(prefix)
	}

	line := prefix
	for i := first; i <= last; i++ {
		f := domain.AllFields[i]
		w := columnWidths[f.Spec().Kind]
		text, right := cellText(r, f)
		if ri == m.row && i == m.col && m.mode == gridModeEdit {
			text, right = m.input.Value()+"▏", false
		}
		if right {
			text = fitRight(text, w)
		} else {
			text = fit(text, w)
		}
		switch {
		case ri == m.row && i == m.col:
			text = cellCursorStyle.Render(text)
		case ri == m.row:
			text = rowCursorStyle.Render(text)
		default:
			text = rowStyle.Render(text)
		}
		line += text + " "
	}
	return line
}

func (m *GridModel) viewTotals() string {
	t := m.ctrl.Footer()
	out := totalsStyle.Render(fmt.Sprintf(
		"  %d line(s)   Charge %s   Paid %s   Adjustments %s   3rd Party %s   Patient %s",
		t.Lines,
		domain.FormatMoney(t.Charge),
		domain.FormatMoney(t.Paid),
		domain.FormatMoney(t.Adjustments),
		domain.FormatMoney(t.ThirdParty),
		domain.FormatMoney(t.PatientResp),
	))
	if dup := m.ctrl.Duplicates(); dup.HasWarnings() {
		out += "\n" + warningRowStyle.Render("  Duplicates: "+dup.Message())
	}
	return out
}

// viewDetail shows the active dialog, or the current row's codes and findings
func (m *GridModel) viewDetail() string {
	var b strings.Builder

	switch m.mode {
	case gridModeEdit:
		spec := m.field().Spec()
		b.WriteString(fmt.Sprintf("  %s: %s\n", spec.Label, m.input.View()))
		if m.field().IsCode() {
			b.WriteString(m.viewPicker())
		}
		b.WriteString(m.viewAccounts(m.field()))
		return b.String() + "\n"
	case gridModeBulkValue:
		b.WriteString(fmt.Sprintf("  Set %s on many rows: %s\n", m.bulkField.Spec().Label, m.input.View()))
		b.WriteString(m.viewAccounts(m.bulkField))
		return b.String() + "\n"
	case gridModePayment:
		b.WriteString(fmt.Sprintf("  %s from charge (80%% or 25.00): %s\n", m.bulkField.Spec().Label, m.input.View()))
		return b.String() + "\n"
	case gridModeScope:
		b.WriteString(helpStyle.Render("  Apply to: [a]ll rows  [b]lank rows  [f]ollowing rows from the cursor  esc: cancel"))
		return b.String() + "\n\n"
	case gridModeScopeCount:
		b.WriteString(fmt.Sprintf("  Rows starting at the cursor (max %d): %s\n", m.ctrl.Settings().FollowingMax, m.input.View()))
		return b.String() + "\n"
	case gridModeDuplicate:
		b.WriteString(fmt.Sprintf("  Copies of each of %d selected row(s): %s\n", len(m.ctrl.SelectedIDs()), m.input.View()))
		return b.String() + "\n"
	case gridModeConfirm:
		b.WriteString(lipgloss.NewStyle().Foreground(warningColor).Render("  " + m.confirmText))
		return b.String() + "\n\n"
	}

	r, ok := m.currentRow()
	if !ok {
		return ""
	}
	if r.Computed.Tooltip != "" {
		b.WriteString(subtitleStyle.Render("  "+strings.ReplaceAll(r.Computed.Tooltip, "\n", "\n  ")) + "\n")
	}
	for _, f := range r.Validation.Errors {
		b.WriteString(errorRowStyle.Render("  ✗ "+f.Message) + "\n")
	}
	for _, f := range r.Validation.Warnings {
		b.WriteString(warningRowStyle.Render("  ! "+f.Message) + "\n")
	}
	if r.Duplicate != domain.DuplicateNone {
		b.WriteString(warningRowStyle.Render("  = "+r.Computed.Duplicate+" of "+describeMatches(r.Matches)) + "\n")
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	return b.String()
}

func (m *GridModel) viewAccounts(f domain.Field) string {
	accounts := m.ctrl.Accounts()
	if f != domain.FieldAccount || len(accounts) == 0 {
		return ""
	}
	return helpStyle.Render("  Accounts: "+strings.Join(accounts, ", ")) + "\n"
}

func (m *GridModel) viewPicker() string {
	st := m.ctrl.SearchResults()
	switch {
	case st.Loading:
		return subtitleStyle.Render("  Searching...") + "\n"
	case st.Err != nil:
		return errorRowStyle.Render("  Search failed: "+st.Err.Error()) + "\n"
	case len(st.Results) == 0:
		if len([]rune(st.Term)) >= m.ctrl.Settings().SearchMinChars {
			return subtitleStyle.Render("  No matching codes") + "\n"
		}
		return ""
	}

	var b strings.Builder
	for i, r := range st.Results {
		line := fmt.Sprintf("%-10s %s", r.CodeName, truncateStr(r.Description, 60))
		if i == m.pickCursor {
			b.WriteString("  " + selectedStyle.Render(line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func (m *GridModel) viewNotices() string {
	var b strings.Builder
	for _, n := range m.notices {
		b.WriteString(noticeStyle(string(n.Level)).Render("  "+n.Message) + "\n")
	}
	return b.String()
}

func (m *GridModel) viewHelp() string {
	if m.ctrl.ReadOnly() {
		return helpStyle.Render("  arrows: move  space: select  v: validate  x: export  r: reload  esc: bills")
	}
	switch m.mode {
	case gridModeEdit:
		if m.field().IsCode() {
			return helpStyle.Render("  type to search  ↑/↓: pick code  enter: save  tab: save and next  esc: cancel")
		}
		return helpStyle.Render("  enter: save  tab: save and next  esc: cancel")
	case gridModeNavigate:
		return helpStyle.Render("  arrows: move  enter: edit  del: clear  space: select  a: all  d: delete  D: duplicate\n" +
			"  B: bulk  P: payment  v: validate  s: stage  A: adjudicate  x: export  r: reload  esc: bills")
	}
	return helpStyle.Render("  enter: confirm  esc: cancel")
}

func (m *GridModel) viewStage() string {
	var s string
	s += titleStyle.Render("Set Stage") + "\n\n"
	for i, st := range domain.SelectableStages {
		indicator := "  "
		if i == m.stageCursor {
			indicator = "> "
		}
		line := indicator + st.Label()
		if st == m.ctrl.Stage() {
			line += subtitleStyle.Render("  (current)")
		}
		if i == m.stageCursor {
			s += lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(line) + "\n"
		} else {
			s += line + "\n"
		}
	}
	s += "\n" + subtitleStyle.Render("  Adjudicated is reached with 'A' from the grid.")
	s += "\n\n" + helpStyle.Render("  j/k: navigate  enter: select  esc: cancel")
	return s
}
