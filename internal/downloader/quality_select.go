package downloader

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Quality level codes to their display labels.
var qualityLabels = map[int]string{
	127: "8K",
	126: "Dolby Vision",
	125: "HDR",
	120: "4K",
	116: "1080P 60fps",
	112: "1080P+",
	80:  "1080P",
	74:  "720P 60fps",
	64:  "720P",
	32:  "480P",
	16:  "360P",
	6:   "240P",
}

func qualityLabel(qn int) string {
	if label, ok := qualityLabels[qn]; ok {
		return label
	}
	return "unknown"
}

var (
	qualityTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#0B0B0B")).
				Background(lipgloss.Color("#7FDBFF")).
				Bold(true).
				Padding(0, 1)

	qualityHelpStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#A6ADC8")).
				Faint(true)

	qualityHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#F8F8F2")).
				Bold(true)

	qualitySelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#0B0B0B")).
				Background(lipgloss.Color("#00F5D4")).
				Bold(true)

	qualityRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EAEAEA"))
)

// showQualities lists the quality ladder the current login can access.
// On a terminal it opens an interactive browser; otherwise it prints a
// plain table. Enumeration is informational: the default resolution path
// always takes the platform-chosen representation.
func showQualities(qualities []int, printer *Printer) error {
	if len(qualities) == 0 {
		printer.Log(LogWarn, "no qualities reported for this video")
		return nil
	}

	if fi, err := os.Stdout.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		for _, qn := range qualities {
			fmt.Printf("%4d  %s\n", qn, qualityLabel(qn))
		}
		return nil
	}

	model := newQualityModel(qualities)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("quality browser: %w", err)
	}
	return nil
}

type qualityModel struct {
	viewport  viewport.Model
	qualities []int
	cursor    int
	quitting  bool
}

func newQualityModel(qualities []int) *qualityModel {
	vp := viewport.New(48, min(len(qualities)+2, 16))
	vp.Style = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7FDBFF"))

	m := &qualityModel{
		viewport:  vp,
		qualities: qualities,
	}
	m.viewport.SetContent(m.content())
	return m
}

func (m *qualityModel) content() string {
	var b strings.Builder
	b.WriteString(qualityHeaderStyle.Render("  qn   quality"))
	b.WriteString("\n")
	for i, qn := range m.qualities {
		line := fmt.Sprintf("%4d   %s", qn, qualityLabel(qn))
		if i == m.cursor {
			line = qualitySelectedStyle.Render(line)
		} else {
			line = qualityRowStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *qualityModel) Init() tea.Cmd {
	return nil
}

func (m *qualityModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "enter", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.qualities)-1 {
				m.cursor++
			}
		}
		m.viewport.SetContent(m.content())
	case tea.WindowSizeMsg:
		m.viewport.Width = min(msg.Width-2, 60)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *qualityModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(qualityTitleStyle.Render("Available qualities"))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(qualityHelpStyle.Render("↑/↓ browse · q quit"))
	return b.String()
}
