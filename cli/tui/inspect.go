package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/inkfold-io/rebind/epub"
	"github.com/inkfold-io/rebind/policy"
)

// EntryRow is one archive entry in the inspect view.
type EntryRow struct {
	Path  string
	Size  int
	IsDir bool
	Kind  policy.Kind
	Cover bool
}

// RowsFromManifest flattens a decoded archive into inspect rows, in
// manifest order.
func RowsFromManifest(m *epub.Manifest) []EntryRow {
	rows := make([]EntryRow, 0, m.Len())
	for _, e := range m.Entries() {
		rows = append(rows, EntryRow{
			Path:  e.Path,
			Size:  len(e.Data),
			IsDir: e.IsDir,
			Kind:  policy.KindForPath(e.Path),
			Cover: !e.IsDir && policy.IsCover(e.Path),
		})
	}
	return rows
}

// InspectModel is a Bubble Tea model listing archive entries.
type InspectModel struct {
	name string
	rows []EntryRow

	offset   int
	height   int
	width    int
	quitting bool
}

// NewInspectModel creates an inspect model for the named archive.
func NewInspectModel(name string, rows []EntryRow) InspectModel {
	return InspectModel{name: name, rows: rows, height: 24}
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
		case msg.String() == "down", msg.String() == "j":
			if m.offset < len(m.rows)-1 {
				m.offset++
			}
		case msg.String() == "up", msg.String() == "k":
			if m.offset > 0 {
				m.offset--
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

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Archive " + m.name))
	b.WriteString("\n\n")

	visible := m.rows
	pageSize := m.height - 10
	if pageSize > 0 && m.offset < len(visible) {
		end := m.offset + pageSize
		if end > len(visible) {
			end = len(visible)
		}
		visible = visible[m.offset:end]
	}

	for _, row := range visible {
		b.WriteString(renderEntryRow(row))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(fmt.Sprintf("%d entries · j/k to scroll · q to quit", len(m.rows))))
	return BoxStyle.Render(b.String())
}

func renderEntryRow(row EntryRow) string {
	if row.IsDir {
		return LabelStyle.Render("dir") + " " + ValueStyle.Render(row.Path+"/")
	}

	tag := string(row.Kind)
	style := ValueStyle
	switch {
	case row.Cover:
		tag = "cover"
		style = WarningStyle
	case row.Kind != policy.KindOther:
		style = SuccessStyle
	}

	return LabelStyle.Render(tag) + " " +
		style.Render(row.Path) + " " +
		lipgloss.NewStyle().Foreground(mutedColor).Render(formatBytes(int64(row.Size)))
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(name string, rows []EntryRow) error {
	model := NewInspectModel(name, rows)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(name string, rows []EntryRow) string {
	model := NewInspectModel(name, rows)
	model.width = 80
	model.height = 1000
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
