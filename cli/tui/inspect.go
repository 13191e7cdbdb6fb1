package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/cinebridge/cli/reader"
)

// InspectModel is a Bubble Tea model for the manifest inspect view.
// Master playlists list their variants with a movable cursor.
type InspectModel struct {
	viewType string
	data     any
	cursor   int
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < m.variantCount()-1 {
				m.cursor++
			}
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewInspectManifest:
		content = m.renderInspectManifest()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := "Press q or Ctrl+C to quit"
	if m.variantCount() > 1 {
		help = "↑/↓ select variant • q quit"
	}
	return content + "\n" + HelpStyle.Render(help)
}

func (m InspectModel) variantCount() int {
	data, ok := m.data.(*reader.ManifestReport)
	if !ok {
		return 0
	}
	return len(data.Variants)
}

func (m InspectModel) renderInspectManifest() string {
	data, ok := m.data.(*reader.ManifestReport)
	if !ok {
		return "Invalid data type for inspect_manifest"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Manifest"))
	b.WriteString("\n\n")

	source := "plain"
	if data.Encrypted {
		source = "encrypted"
	}
	state := "live"
	if data.Closed {
		state = "closed"
	}

	rows := [][]string{
		{"URL", data.URL},
		{"Source", source},
		{"Kind", data.Kind},
		{"Version", fmt.Sprintf("%d", data.Version)},
		{"Size", fmt.Sprintf("%d bytes", data.Bytes)},
		{"Resolved In", fmt.Sprintf("%dms", data.ResolvedMs)},
	}
	if data.Kind == "media" {
		rows = append(rows,
			[]string{"Segments", fmt.Sprintf("%d", data.Segments)},
			[]string{"Target", fmt.Sprintf("%.3fs", data.TargetDuration)},
			[]string{"Duration", fmt.Sprintf("%.3fs", data.TotalDuration)},
			[]string{"State", state},
		)
	}

	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		var value string
		switch row[0] {
		case "Source", "State":
			value = OutcomeStyle(row[1]).Render(row[1])
		default:
			value = ValueStyle.Render(row[1])
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}

	if len(data.Variants) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Variants"))
		b.WriteString("\n")
		for i, v := range data.Variants {
			line := fmt.Sprintf("%-10s %9d bps  %-10s %s", v.Resolution, v.Bandwidth, v.Codecs, v.URI)
			if i == m.cursor {
				b.WriteString(SelectedStyle.Render("> " + line))
			} else {
				b.WriteString(ValueStyle.Render("  " + line))
			}
			b.WriteString("\n")
		}
	}

	return BoxStyle.Render(b.String())
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "previous variant"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "next variant"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
