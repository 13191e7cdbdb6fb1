package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/cinebridge/cli/reader"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewStatsSessions:
		content = m.renderStatsSessions()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsSessions() string {
	data, ok := m.data.(*reader.SessionStats)
	if !ok {
		return "Invalid data type for stats_sessions"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session Statistics"))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Sessions", data.Sessions, highlightColor),
		m.renderStatBox("Encrypted", data.Encrypted, primaryColor),
		m.renderStatBox("Records", data.Records, mutedColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderStatBox("Ready", data.Ready, successColor),
		m.renderStatBox("Resolve Failed", data.ResolveFailed, errorColor),
		m.renderStatBox("Failed", data.Failed, errorColor),
		m.renderStatBox("Destroyed", data.Destroyed, warningColor),
	))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Avg Ready:"),
		ValueStyle.Render(fmt.Sprintf("%dms", data.AvgReadyMs))))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Manifest Bytes:"),
		ValueStyle.Render(fmt.Sprintf("%d", data.ManifestBytes))))
	if data.FirstSeen != nil && data.LastSeen != nil {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Range:"),
			ValueStyle.Render(data.FirstSeen.Format("2006-01-02 15:04:05")+" .. "+data.LastSeen.Format("2006-01-02 15:04:05"))))
	}

	if len(data.ByErrorKind) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Errors by Kind"))
		b.WriteString("\n")
		kinds := make([]string, 0, len(data.ByErrorKind))
		for k := range data.ByErrorKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			b.WriteString(fmt.Sprintf("%s %s\n",
				LabelStyle.Render("  "+k+":"),
				ErrorStyle.Render(fmt.Sprintf("%d", data.ByErrorKind[k]))))
		}
	}

	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
