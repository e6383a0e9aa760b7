package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/billgrid/internal/app"
	"github.com/andy/billgrid/internal/domain"
)

type billsMode int

const (
	billsModeList billsMode = iota
	billsModeConfirmDelete
)

// stage filters cycled with 'f'; nil shows every bill
var billFilters = []*domain.Stage{
	nil,
	stagePtr(domain.StageKeying),
	stagePtr(domain.StageBillReview),
	stagePtr(domain.StageQuoteView),
	stagePtr(domain.StageAdjudicated),
}

func stagePtr(s domain.Stage) *domain.Stage { return &s }

// BillsModel lists bills and opens one in the grid
type BillsModel struct {
	app        *app.App
	bills      []*domain.Bill
	cursor     int
	offset     int
	maxVisible int
	filter     int
	loading    bool
	err        error
	statusMsg  string
	mode       billsMode
}

type billsDataMsg struct {
	bills []*domain.Bill
	err   error
}

type billCreatedMsg struct {
	bill *domain.Bill
	err  error
}

type billDeletedMsg struct {
	number string
	err    error
}

// NewBillsModel creates a new bills screen model
func NewBillsModel(a *app.App) tea.Model {
	return &BillsModel{
		app:        a,
		maxVisible: 15,
		loading:    true,
	}
}

// IsCapturingInput returns true while the delete confirmation is shown
func (m *BillsModel) IsCapturingInput() bool {
	return m.mode == billsModeConfirmDelete
}

func (m *BillsModel) Init() tea.Cmd {
	return m.loadBills()
}

func (m *BillsModel) loadBills() tea.Cmd {
	stage := billFilters[m.filter]
	return func() tea.Msg {
		bills, err := m.app.BillService.ListBills(context.Background(), stage)
		return billsDataMsg{bills: bills, err: err}
	}
}

func (m *BillsModel) createBill() tea.Cmd {
	prefix := m.app.Config.Grid.BillPrefix
	return func() tea.Msg {
		bill, err := m.app.BillService.CreateBill(context.Background(), prefix)
		return billCreatedMsg{bill: bill, err: err}
	}
}

func (m *BillsModel) deleteBill(bill *domain.Bill) tea.Cmd {
	return func() tea.Msg {
		err := m.app.BillService.DeleteBill(context.Background(), bill.ID)
		return billDeletedMsg{number: bill.Number, err: err}
	}
}

func (m *BillsModel) current() *domain.Bill {
	if m.cursor < 0 || m.cursor >= len(m.bills) {
		return nil
	}
	return m.bills[m.cursor]
}

func (m *BillsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RefreshDataMsg:
		m.loading = true
		return m, m.loadBills()

	case billsDataMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.bills = msg.bills
			m.cursor = clamp(m.cursor, 0, max(len(m.bills)-1, 0))
			m.offset = clamp(m.offset, 0, m.cursor)
		}
		return m, nil

	case billCreatedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		bill := msg.bill
		return m, tea.Batch(m.loadBills(), func() tea.Msg { return OpenBillMsg{Bill: bill} })

	case billDeletedMsg:
		m.mode = billsModeList
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.statusMsg = fmt.Sprintf("Bill %s deleted", msg.number)
		m.loading = true
		return m, m.loadBills()

	case tea.KeyMsg:
		if m.mode == billsModeConfirmDelete {
			if msg.String() == "y" {
				if bill := m.current(); bill != nil {
					return m, m.deleteBill(bill)
				}
			}
			// Any other key cancels
			m.mode = billsModeList
			return m, nil
		}
		if m.loading {
			return m, nil
		}

		m.statusMsg = ""
		m.err = nil

		switch {
		case key.Matches(msg, DefaultKeyMap.Up):
			if m.cursor > 0 {
				m.cursor--
				if m.cursor < m.offset {
					m.offset = m.cursor
				}
			}
		case key.Matches(msg, DefaultKeyMap.Down):
			if m.cursor < len(m.bills)-1 {
				m.cursor++
				if m.cursor >= m.offset+m.maxVisible {
					m.offset = m.cursor - m.maxVisible + 1
				}
			}
		case key.Matches(msg, DefaultKeyMap.New):
			return m, m.createBill()
		case key.Matches(msg, DefaultKeyMap.Select):
			if bill := m.current(); bill != nil {
				return m, func() tea.Msg { return OpenBillMsg{Bill: bill} }
			}
		case key.Matches(msg, DefaultKeyMap.Delete):
			bill := m.current()
			if bill == nil {
				return m, nil
			}
			if !bill.CanEdit() {
				m.err = fmt.Errorf("cannot delete: bill %s is adjudicated", bill.Number)
				return m, nil
			}
			m.mode = billsModeConfirmDelete
		case msg.String() == "f":
			m.filter = (m.filter + 1) % len(billFilters)
			m.cursor, m.offset = 0, 0
			m.loading = true
			return m, m.loadBills()
		}
	}

	return m, nil
}

func (m *BillsModel) View() string {
	if m.loading {
		return "Loading bills..."
	}
	if m.mode == billsModeConfirmDelete {
		return m.viewConfirmDelete()
	}
	return m.viewList()
}

func (m *BillsModel) viewConfirmDelete() string {
	bill := m.current()
	var s string
	s += titleStyle.Render("Delete Bill") + "\n\n"
	s += fmt.Sprintf("  %s  %s  %d line(s)  %s\n\n",
		bill.Number, bill.Stage.Label(), bill.LineCount, domain.FormatMoney(bill.TotalCharge))
	s += lipgloss.NewStyle().Foreground(warningColor).Render("  Delete this bill and all of its line items? (y/n)") + "\n"
	return s
}

func (m *BillsModel) viewList() string {
	var s string

	s += titleStyle.Render("Bills")
	if stage := billFilters[m.filter]; stage != nil {
		s += subtitleStyle.Render("  (" + stage.Label() + ")")
	}
	s += "\n"

	if m.err != nil {
		s += lipgloss.NewStyle().Foreground(errorColor).
			Render(fmt.Sprintf("  Error: %v", m.err)) + "\n"
	}
	if m.statusMsg != "" {
		s += lipgloss.NewStyle().Foreground(successColor).
			Render("  "+m.statusMsg) + "\n"
	}

	if len(m.bills) == 0 {
		s += "\n" + subtitleStyle.Render("  No bills yet. Press 'n' to create one.")
		s += "\n\n" + helpStyle.Render("  n: new bill  f: filter stage")
		return s
	}

	s += "\n" + subtitleStyle.Render(fmt.Sprintf(
		"  %-18s  %-12s  %6s  %14s  %s",
		"Number", "Stage", "Lines", "Charge", "Updated",
	)) + "\n"

	end := min(m.offset+m.maxVisible, len(m.bills))
	for i := m.offset; i < end; i++ {
		bill := m.bills[i]
		line := fmt.Sprintf("%-18s  %-12s  %6d  %14s  %s",
			truncateStr(bill.Number, 18),
			bill.Stage.Label(),
			bill.LineCount,
			domain.FormatMoney(bill.TotalCharge),
			bill.UpdatedAt.Local().Format("Jan 2 15:04"),
		)
		switch {
		case i == m.cursor:
			s += "  " + selectedStyle.Render(line) + "\n"
		case bill.Stage.IsReadOnly():
			s += "  " + lipgloss.NewStyle().Foreground(mutedColor).Render(line) + "\n"
		default:
			s += "  " + line + "\n"
		}
	}

	if m.offset > 0 {
		s += subtitleStyle.Render("  ... more above") + "\n"
	}
	if end < len(m.bills) {
		s += subtitleStyle.Render("  ... more below") + "\n"
	}

	s += "\n" + helpStyle.Render("  j/k: navigate  enter: open  n: new bill  d: delete  f: filter stage")
	return s
}
