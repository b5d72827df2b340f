package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/inkfold-io/rebind/runtime"
)

// ProgressMsg carries a completion percentage in [0,100] into the model.
type ProgressMsg float64

// DoneMsg signals the operation finished, successfully or not.
type DoneMsg struct {
	Report *runtime.Report
	Err    error
}

// CompressModel is a Bubble Tea model showing live compression progress
// and, on completion, the operation summary.
type CompressModel struct {
	input   string
	format  string
	quality int

	bar     progress.Model
	percent float64
	report  *runtime.Report
	err     error
	done    bool

	width    int
	quitting bool

	// cancel, when set, is invoked if the user quits mid-operation.
	cancel func()
}

// NewCompressModel creates a compress progress model.
func NewCompressModel(input, format string, quality int, cancel func()) CompressModel {
	return CompressModel{
		input:   input,
		format:  format,
		quality: quality,
		bar:     progress.New(progress.WithDefaultGradient()),
		cancel:  cancel,
	}
}

// Init implements tea.Model.
func (m CompressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m CompressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := msg.Width - 8
		if w > 60 {
			w = 60
		}
		if w > 0 {
			m.bar.Width = w
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil

	case ProgressMsg:
		m.percent = float64(msg)
		return m, nil

	case DoneMsg:
		m.done = true
		m.percent = 100
		m.report = msg.Report
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m CompressModel) View() string {
	if m.quitting && !m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Compressing " + m.input))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Format:"), ValueStyle.Render(m.format)))
	b.WriteString(fmt.Sprintf("%s %s\n\n", LabelStyle.Render("Quality:"), ValueStyle.Render(fmt.Sprintf("%d", m.quality))))
	b.WriteString(m.bar.ViewAs(m.percent / 100))
	b.WriteString(fmt.Sprintf("  %.0f%%\n", m.percent))

	if m.done {
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(ErrorStyle.Render("Failed: " + m.err.Error()))
			b.WriteString("\n")
		} else if m.report != nil {
			b.WriteString("\n")
			b.WriteString(renderReportStats(m.report))
			b.WriteString("\n")
		}
		return BoxStyle.Render(b.String())
	}

	help := HelpStyle.Render("Press q or Ctrl+C to cancel")
	return BoxStyle.Render(b.String()) + "\n" + help
}

// renderReportStats renders the completion summary as stat boxes.
func renderReportStats(r *runtime.Report) string {
	outcome := OutcomeStyle(string(r.Outcome)).Render(string(r.Outcome))

	boxes := []string{
		statBox("Outcome", outcome),
		statBox("Files", fmt.Sprintf("%d", r.Files)),
		statBox("Transcoded", fmt.Sprintf("%d", r.Transcoded)),
		statBox("Failed", fmt.Sprintf("%d", r.Failed)),
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, boxes...)

	sizes := []string{
		statBox("Input", formatBytes(int64(r.ArchiveBytesIn))),
		statBox("Output", formatBytes(int64(r.ArchiveBytesOut))),
		statBox("Saved", savingsPercent(r.ArchiveBytesIn, r.ArchiveBytesOut)),
		statBox("Duration", fmt.Sprintf("%dms", r.DurationMs)),
	}
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, sizes...)

	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func statBox(label, value string) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		StatLabelStyle.Render(label),
		StatValueStyle.Render(value),
	)
	return StatBoxStyle.Render(content)
}

// formatBytes renders a byte count in a human-readable unit.
func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// savingsPercent renders the size reduction as a percentage of the input.
func savingsPercent(in, out int) string {
	if in <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(in-out)/float64(in)*100)
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// NewCompressProgram wraps the model in a tea.Program. The caller drives
// it with Send(ProgressMsg) and Send(DoneMsg) from the operation's
// progress callback.
func NewCompressProgram(m CompressModel) *tea.Program {
	return tea.NewProgram(m)
}
