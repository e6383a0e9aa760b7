package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/billgrid/internal/app"
)

// Screen represents the current active screen
type Screen int

const (
	ScreenBills Screen = iota
	ScreenGrid
	ScreenCodes
	ScreenSettings
)

// String returns the screen name
func (s Screen) String() string {
	switch s {
	case ScreenBills:
		return "Bills"
	case ScreenGrid:
		return "Line Items"
	case ScreenCodes:
		return "Codes"
	case ScreenSettings:
		return "Settings"
	default:
		return "Unknown"
	}
}

// Model is the root Bubble Tea model
type Model struct {
	app           *app.App
	currentScreen Screen
	width         int
	height        int

	// Screen models (lazy initialized)
	bills    tea.Model
	grid     *GridModel
	codes    tea.Model
	settings tea.Model

	// First-run state
	checkedFirstRun bool

	// Error state
	err     error
	quitMsg string // shown when quit is blocked
}

// New creates a new root model
func New(a *app.App) Model {
	return Model{
		app:           a,
		currentScreen: ScreenBills,
		bills:         NewBillsModel(a),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.checkFirstRun(),
	}
	if m.bills != nil {
		cmds = append(cmds, m.bills.Init())
	}
	return tea.Batch(cmds...)
}

// checkFirstRun checks if the code catalogue has been imported
func (m *Model) checkFirstRun() tea.Cmd {
	return func() tea.Msg {
		n, err := m.app.CodeService.Count(context.Background())
		if err != nil {
			return firstRunCheckMsg{hasCodes: true} // assume yes on error
		}
		return firstRunCheckMsg{hasCodes: n > 0}
	}
}

// initScreen lazy-initializes a screen on first visit,
// and sends a RefreshDataMsg on subsequent visits so screens reload data.
func (m *Model) initScreen(screen Screen) tea.Cmd {
	switch screen {
	case ScreenBills:
		if m.bills == nil {
			m.bills = NewBillsModel(m.app)
			return m.bills.Init()
		}
		return func() tea.Msg { return RefreshDataMsg{} }
	case ScreenCodes:
		if m.codes == nil {
			m.codes = NewCodesModel(m.app)
			return m.codes.Init()
		}
		return nil
	case ScreenSettings:
		if m.settings == nil {
			m.settings = NewSettingsModel(m.app)
			return m.settings.Init()
		}
		return nil
	}
	return nil
}

// InputCapturer is implemented by screens that capture keyboard input (e.g. text forms).
// When active, global navigation keys (B, C, Q) are suppressed.
type InputCapturer interface {
	IsCapturingInput() bool
}

func (m *Model) screen(s Screen) tea.Model {
	switch s {
	case ScreenBills:
		return m.bills
	case ScreenGrid:
		if m.grid == nil {
			return nil
		}
		return m.grid
	case ScreenCodes:
		return m.codes
	case ScreenSettings:
		return m.settings
	}
	return nil
}

// activeScreenCapturingInput returns true if the current screen is capturing text input
func (m *Model) activeScreenCapturingInput() bool {
	if ic, ok := m.screen(m.currentScreen).(InputCapturer); ok {
		return ic.IsCapturingInput()
	}
	return false
}

// closeGrid releases the open bill, if any
func (m *Model) closeGrid() {
	if m.grid != nil {
		m.grid.Close()
		m.grid = nil
	}
}

// Update implements tea.Model - routes keys to screens
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Grid completions belong to the open bill whatever screen is showing
	if m.grid != nil && m.grid.Owns(msg) {
		return m, m.grid.handle(msg)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.grid != nil {
			m.grid.setSize(msg.Width, msg.Height)
		}
		return m, nil

	case tea.KeyMsg:
		// Clear quit warning on any keypress
		m.quitMsg = ""

		// Skip global navigation when a screen is capturing text input
		if !m.activeScreenCapturingInput() {
			switch {
			case key.Matches(msg, DefaultKeyMap.Quit):
				if m.grid != nil && m.grid.Saving() {
					m.quitMsg = "Line items are still being saved. Try again in a moment."
					return m, nil
				}
				m.closeGrid()
				return m, tea.Quit

			case key.Matches(msg, DefaultKeyMap.Bills):
				m.currentScreen = ScreenBills
				return m, m.initScreen(ScreenBills)

			case key.Matches(msg, DefaultKeyMap.Codes):
				m.currentScreen = ScreenCodes
				return m, m.initScreen(ScreenCodes)

			case key.Matches(msg, DefaultKeyMap.Settings):
				m.currentScreen = ScreenSettings
				return m, m.initScreen(ScreenSettings)
			}
		}

	case firstRunCheckMsg:
		if !m.checkedFirstRun && !msg.hasCodes {
			m.checkedFirstRun = true
			m.currentScreen = ScreenCodes
			initCmd := m.initScreen(ScreenCodes)
			openFormCmd := func() tea.Msg { return OpenImportFormMsg{} }
			return m, tea.Batch(initCmd, openFormCmd)
		}
		m.checkedFirstRun = true
		return m, nil

	case OpenBillMsg:
		m.closeGrid()
		g, err := NewGridModel(m.app, msg.Bill)
		if err != nil {
			m.err = err
			return m, nil
		}
		g.setSize(m.width, m.height)
		m.grid = g
		m.currentScreen = ScreenGrid
		return m, g.Init()

	case SwitchScreenMsg:
		m.currentScreen = msg.Screen
		return m, m.initScreen(msg.Screen)

	case ErrorMsg:
		m.err = msg.Err
		return m, nil
	}

	// Route message to current screen
	var cmd tea.Cmd
	switch m.currentScreen {
	case ScreenBills:
		if m.bills != nil {
			m.bills, cmd = m.bills.Update(msg)
		}
	case ScreenGrid:
		if m.grid != nil {
			_, cmd = m.grid.Update(msg)
		}
	case ScreenCodes:
		if m.codes != nil {
			m.codes, cmd = m.codes.Update(msg)
		}
	case ScreenSettings:
		if m.settings != nil {
			m.settings, cmd = m.settings.Update(msg)
		}
	}

	return m, cmd
}

// View implements tea.Model - renders header + current screen + footer
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	// Header
	title := m.currentScreen.String()
	if m.currentScreen == ScreenGrid && m.grid != nil {
		title = fmt.Sprintf("%s - %s", title, m.grid.bill.Number)
	}
	header := headerStyle.Render(fmt.Sprintf("billgrid - %s", title))

	// Footer with navigation keys
	nav := "[B]ills  [C]odes  [,] Settings  [Q]uit"
	if m.grid != nil && m.currentScreen != ScreenGrid {
		nav = "[B]ills  [C]odes  [,] Settings  [Q]uit  (bill " + m.grid.bill.Number + " open)"
	}
	footer := footerStyle.Render(nav)

	// Current screen content
	content := "Loading..."
	if s := m.screen(m.currentScreen); s != nil {
		content = s.View()
	}

	// Error/warning display
	errorDisplay := ""
	if m.quitMsg != "" {
		errorDisplay = lipgloss.NewStyle().
			Foreground(warningColor).
			Render(fmt.Sprintf("\n%s", m.quitMsg))
	} else if m.err != nil {
		errorDisplay = lipgloss.NewStyle().
			Foreground(errorColor).
			Render(fmt.Sprintf("\nError: %s", m.err.Error()))
	}

	// Divider line between header and content
	innerWidth := m.width - 6 // account for border (2) + padding (4)
	if innerWidth < 20 {
		innerWidth = 20
	}
	dividerWidth := innerWidth - 12
	if dividerWidth < 10 {
		dividerWidth = 10
	}
	divider := lipgloss.NewStyle().Foreground(borderColor).Render(
		strings.Repeat("─", dividerWidth),
	)

	body := fmt.Sprintf("%s\n%s\n\n%s%s\n\n%s\n%s", header, divider, content, errorDisplay, divider, footer)

	// Wrap in border, sized to terminal
	frame := appBorderStyle.
		Width(innerWidth).
		Height(m.height - 4) // leave room for border top/bottom
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, frame.Render(body))
}

// Run starts the TUI
func Run(a *app.App) error {
	p := tea.NewProgram(New(a), tea.WithAltScreen())
	final, err := p.Run()
	if m, ok := final.(Model); ok {
		m.closeGrid()
	}
	return err
}
