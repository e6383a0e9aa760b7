package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/billgrid/internal/app"
	"github.com/andy/billgrid/internal/domain"
)

type codesMode int

const (
	codesModeBrowse codesMode = iota
	codesModeSearch
	codesModeImport
)

const codeSearchLimit = 20

// CodesModel browses and imports the code catalogue
type CodesModel struct {
	app     *app.App
	mode    codesMode
	input   textinput.Model // search box
	path    textinput.Model // import form
	results []domain.CodeMatch
	cursor  int
	count   int
	seq     int
	err     error

	statusMsg string
}

type codesCountMsg struct {
	count int
	err   error
}

type codesSearchMsg struct {
	seq     int
	results []domain.CodeMatch
	err     error
}

type codesImportedMsg struct {
	count int
	err   error
}

// NewCodesModel creates a new codes screen
func NewCodesModel(a *app.App) tea.Model {
	ti := textinput.New()
	ti.Placeholder = "code or description"
	ti.CharLimit = 64
	ti.Width = 40
	return &CodesModel{app: a, input: ti, path: textinput.New()}
}

// IsCapturingInput returns true while the search box or import form is focused
func (m *CodesModel) IsCapturingInput() bool {
	return m.mode != codesModeBrowse
}

func (m *CodesModel) Init() tea.Cmd {
	return m.loadCount()
}

func (m *CodesModel) loadCount() tea.Cmd {
	return func() tea.Msg {
		n, err := m.app.CodeService.Count(context.Background())
		return codesCountMsg{count: n, err: err}
	}
}

func (m *CodesModel) search(term string) tea.Cmd {
	m.seq++
	seq := m.seq
	if len([]rune(strings.TrimSpace(term))) < m.app.Config.Grid.SearchMinChars {
		m.results = nil
		return nil
	}
	return func() tea.Msg {
		res, err := m.app.CodeService.Search(context.Background(), term, nil, codeSearchLimit)
		return codesSearchMsg{seq: seq, results: res, err: err}
	}
}

func (m *CodesModel) importWorkbook(path string) tea.Cmd {
	return func() tea.Msg {
		n, err := m.app.CodeService.Import(context.Background(), path)
		return codesImportedMsg{count: n, err: err}
	}
}

func (m *CodesModel) openImport() tea.Cmd {
	ti := textinput.New()
	ti.Placeholder = "/path/to/codes.xlsx"
	ti.CharLimit = 256
	ti.Width = 60
	m.path = ti
	m.mode = codesModeImport
	m.statusMsg = ""
	return m.path.Focus()
}

func (m *CodesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case OpenImportFormMsg:
		return m, m.openImport()

	case codesCountMsg:
		m.err = msg.err
		m.count = msg.count
		return m, nil

	case codesSearchMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.err = msg.err
		m.results = msg.results
		m.cursor = 0
		return m, nil

	case codesImportedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.mode = codesModeBrowse
		m.statusMsg = fmt.Sprintf("Imported %d code(s)", msg.count)
		return m, m.loadCount()
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.mode {
	case codesModeSearch:
		switch keyMsg.String() {
		case "esc", "enter":
			m.mode = codesModeBrowse
			m.input.Blur()
			return m, nil
		}
		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() != before {
			return m, tea.Batch(cmd, m.search(m.input.Value()))
		}
		return m, cmd

	case codesModeImport:
		switch keyMsg.String() {
		case "esc":
			m.mode = codesModeBrowse
			m.err = nil
			return m, nil
		case "enter":
			path := strings.TrimSpace(m.path.Value())
			if path == "" {
				m.err = fmt.Errorf("workbook path is required")
				return m, nil
			}
			m.err = nil
			return m, m.importWorkbook(path)
		}
		var cmd tea.Cmd
		m.path, cmd = m.path.Update(msg)
		return m, cmd
	}

	m.statusMsg = ""
	switch {
	case keyMsg.String() == "/" || key.Matches(keyMsg, DefaultKeyMap.Select):
		m.mode = codesModeSearch
		return m, m.input.Focus()
	case keyMsg.String() == "i":
		return m, m.openImport()
	case key.Matches(keyMsg, DefaultKeyMap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, DefaultKeyMap.Down):
		if m.cursor < len(m.results)-1 {
			m.cursor++
		}
	}
	return m, nil
}

func (m *CodesModel) View() string {
	var s string

	if m.mode == codesModeImport {
		s += titleStyle.Render("Import Codes") + "\n\n"
		s += "  Workbook sheets need a header row of Type | Code | Description.\n\n"
		s += "  " + m.path.View() + "\n\n"
		if m.err != nil {
			s += lipgloss.NewStyle().Foreground(errorColor).
				Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
		}
		s += helpStyle.Render("  enter: import  esc: cancel")
		return s
	}

	s += titleStyle.Render("Code Catalogue")
	s += subtitleStyle.Render(fmt.Sprintf("  %d code(s)", m.count)) + "\n"
	if m.statusMsg != "" {
		s += lipgloss.NewStyle().Foreground(successColor).Render("  "+m.statusMsg) + "\n"
	}
	if m.err != nil {
		s += lipgloss.NewStyle().Foreground(errorColor).
			Render(fmt.Sprintf("  Error: %v", m.err)) + "\n"
	}

	s += "\n  Search: " + m.input.View() + "\n\n"

	if len(m.results) == 0 {
		if m.count == 0 {
			s += subtitleStyle.Render("  The catalogue is empty. Press 'i' to import a workbook.") + "\n"
		} else {
			s += subtitleStyle.Render("  Type at least a few characters to search.") + "\n"
		}
	} else {
		s += subtitleStyle.Render(fmt.Sprintf("  %-16s  %-10s  %s", "Type", "Code", "Description")) + "\n"
		for i, r := range m.results {
			line := fmt.Sprintf("%-16s  %-10s  %s", truncateStr(r.CodeType, 16), r.CodeName, truncateStr(r.Description, 60))
			if i == m.cursor {
				s += "  " + selectedStyle.Render(line) + "\n"
			} else {
				s += "  " + line + "\n"
			}
		}
	}

	if m.mode == codesModeSearch {
		s += "\n" + helpStyle.Render("  type to search  enter/esc: done")
	} else {
		s += "\n" + helpStyle.Render("  /: search  j/k: navigate  i: import workbook")
	}
	return s
}
