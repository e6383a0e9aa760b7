package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/billgrid/internal/app"
	"github.com/andy/billgrid/internal/config"
)

type settingsMode int

const (
	settingsModeView settingsMode = iota
	settingsModeEdit
)

// setting is one editable config value
type setting struct {
	label       string
	placeholder string
	width       int
	value       func(*config.Config) string
	// apply parses s into cfg
	apply func(cfg *config.Config, s string) error
}

var editableSettings = []setting{
	{
		label: "Bill Number Prefix", placeholder: "BILL", width: 20,
		value: func(c *config.Config) string { return c.Grid.BillPrefix },
		apply: func(c *config.Config, s string) error {
			if s == "" {
				return errors.New("bill prefix is required")
			}
			c.Grid.BillPrefix = s
			return nil
		},
	},
	{
		label: "Default Payment (%)", placeholder: "80", width: 10,
		value: func(c *config.Config) string { return strconv.FormatFloat(c.Grid.DefaultPaymentPercent, 'f', -1, 64) },
		apply: func(c *config.Config, s string) error {
			pct, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
			if err != nil || pct < 0 || pct > 100 {
				return errors.New("payment percentage must be between 0 and 100")
			}
			c.Grid.DefaultPaymentPercent = pct
			return nil
		},
	},
	{
		label: "Confirm Duplicates Above", placeholder: "5", width: 10,
		value: func(c *config.Config) string { return strconv.Itoa(c.Grid.DuplicateConfirm) },
		apply: func(c *config.Config, s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > c.Grid.DuplicateMax {
				return fmt.Errorf("duplicate threshold must be between 1 and %d", c.Grid.DuplicateMax)
			}
			c.Grid.DuplicateConfirm = n
			return nil
		},
	},
	{
		label: "Code Search Delay", placeholder: "300ms", width: 10,
		value: func(c *config.Config) string { return c.Grid.SearchDebounce.String() },
		apply: func(c *config.Config, s string) error {
			d, err := time.ParseDuration(s)
			if err != nil || d < 0 {
				return errors.New("search delay must be a duration such as 300ms")
			}
			c.Grid.SearchDebounce = d
			return nil
		},
	},
	{
		label: "Export Directory", placeholder: "/path/to/exports", width: 60,
		value: func(c *config.Config) string { return c.Export.OutputDir },
		apply: func(c *config.Config, s string) error {
			if s == "" {
				return errors.New("export directory is required")
			}
			c.Export.OutputDir = s
			return nil
		},
	},
	{
		label: "Log Level", placeholder: "info", width: 10,
		value: func(c *config.Config) string { return c.Log.Level },
		apply: func(c *config.Config, s string) error {
			c.Log.Level = strings.ToLower(s)
			return nil
		},
	},
}

type settingsSavedMsg struct {
	err error
}

// SettingsModel shows the configuration and edits the grid, export and log settings
type SettingsModel struct {
	app    *app.App
	mode   settingsMode
	inputs []textinput.Model
	focus  int
	err    error
	saved  bool
}

// NewSettingsModel creates a new settings screen
func NewSettingsModel(a *app.App) tea.Model {
	return &SettingsModel{app: a}
}

// IsCapturingInput returns true when the edit form is active
func (m *SettingsModel) IsCapturingInput() bool {
	return m.mode == settingsModeEdit
}

func (m *SettingsModel) Init() tea.Cmd {
	return nil
}

func (m *SettingsModel) startEdit() tea.Cmd {
	m.inputs = make([]textinput.Model, len(editableSettings))
	for i, s := range editableSettings {
		ti := textinput.New()
		ti.Placeholder = s.placeholder
		ti.Width = s.width
		ti.CharLimit = 256
		ti.SetValue(s.value(m.app.Config))
		m.inputs[i] = ti
	}
	m.mode = settingsModeEdit
	m.focus = 0
	m.err = nil
	m.saved = false
	return m.inputs[0].Focus()
}

// save applies every field to a copy of the config; the running config only
// changes once all fields parse
func (m *SettingsModel) save() tea.Cmd {
	next := *m.app.Config
	for i, s := range editableSettings {
		if err := s.apply(&next, strings.TrimSpace(m.inputs[i].Value())); err != nil {
			m.focusField(i)
			return func() tea.Msg { return settingsSavedMsg{err: fmt.Errorf("%s: %w", s.label, err)} }
		}
	}

	if err := m.app.SetLogLevel(next.Log.Level); err != nil {
		m.err = err
		return nil
	}
	*m.app.Config = next

	return func() tea.Msg {
		if err := m.app.Config.EnsureDirectories(); err != nil {
			return settingsSavedMsg{err: fmt.Errorf("failed to create export directory: %w", err)}
		}
		if err := m.app.SaveConfig(); err != nil {
			return settingsSavedMsg{err: fmt.Errorf("failed to save config: %w", err)}
		}
		return settingsSavedMsg{}
	}
}

func (m *SettingsModel) focusField(i int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = (i + len(m.inputs)) % len(m.inputs)
	return m.inputs[m.focus].Focus()
}

func (m *SettingsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case settingsSavedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.mode = settingsModeView
			m.saved = true
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode == settingsModeView {
			m.saved = false
			if msg.String() == "enter" || msg.String() == "e" {
				return m, m.startEdit()
			}
			return m, nil
		}

		switch msg.String() {
		case "esc":
			m.mode = settingsModeView
			m.err = nil
			return m, nil
		case "tab", "down":
			return m, m.focusField(m.focus + 1)
		case "shift+tab", "up":
			return m, m.focusField(m.focus - 1)
		case "ctrl+s":
			return m, m.save()
		case "enter":
			if m.focus == len(m.inputs)-1 {
				return m, m.save()
			}
			return m, m.focusField(m.focus + 1)
		}
	}

	if m.mode != settingsModeEdit {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *SettingsModel) View() string {
	if m.mode == settingsModeEdit {
		return m.viewForm()
	}
	return m.viewSettings()
}

func (m *SettingsModel) viewSettings() string {
	cfg := m.app.Config
	labelStyle := lipgloss.NewStyle().Bold(true).Width(26)
	valueStyle := lipgloss.NewStyle().Foreground(primaryColor)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Settings") + "\n\n")
	if m.saved {
		b.WriteString(lipgloss.NewStyle().Foreground(successColor).
			Render("  Settings saved. Grid changes apply to bills opened from now on.") + "\n\n")
	}

	section := func(title string, rows [][2]string) {
		b.WriteString(subtitleStyle.Render("  "+title) + "\n")
		for _, r := range rows {
			b.WriteString("  " + labelStyle.Render(r[0]+":") + " " + valueStyle.Render(r[1]) + "\n")
		}
		b.WriteString("\n")
	}

	editable := make([][2]string, 0, len(editableSettings))
	for _, s := range editableSettings {
		editable = append(editable, [2]string{s.label, s.value(cfg)})
	}
	section("Editable", editable)

	fixed := [][2]string{
		{"Maximum Duplicates", strconv.Itoa(cfg.Grid.DuplicateMax)},
		{"Maximum Following Rows", strconv.Itoa(cfg.Grid.FollowingMax)},
		{"Description Cache Size", strconv.Itoa(cfg.Grid.DescriptionCacheSize)},
		{"Database", cfg.Database.Path},
		{"Log File", cfg.Log.File},
	}
	if cfg.Metrics.Addr != "" {
		fixed = append(fixed, [2]string{"Metrics", "http://" + cfg.Metrics.Addr + "/metrics"})
	}
	section("From config file", fixed)

	b.WriteString(helpStyle.Render("  enter: edit settings"))
	return b.String()
}

func (m *SettingsModel) viewForm() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Edit Settings") + "\n\n")

	for i, s := range editableSettings {
		label := subtitleStyle.Render("  " + s.label)
		if i == m.focus {
			label = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render("> " + s.label)
		}
		b.WriteString(label + "\n  " + m.inputs[i].View() + "\n\n")
	}

	if m.err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(errorColor).
			Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n")
	}

	b.WriteString(helpStyle.Render("  tab/shift+tab: navigate fields  ctrl+s: save  enter: next/save  esc: cancel"))
	return b.String()
}
