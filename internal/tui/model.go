package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/fleetwatch/pkg/flight"
)

type snapshotMsg flight.Snapshot

type feedErrMsg struct{ err error }

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var columns = []table.Column{
	{Title: "ID", Width: 5},
	{Title: "FLIGHT", Width: 9},
	{Title: "TAIL", Width: 8},
	{Title: "STATUS", Width: 9},
	{Title: "LAT", Width: 8},
	{Title: "LON", Width: 9},
	{Title: "ALT", Width: 7},
	{Title: "SPD", Width: 5},
	{Title: "HDG", Width: 5},
}

// Model is the bubbletea model of the live view.
type Model struct {
	feed    Feed
	source  string
	table   table.Model
	latest  *flight.Snapshot
	updates int
	err     error
	width   int
}

// NewModel creates a model reading from feed. source labels the header.
func NewModel(feed Feed, source string) Model {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))

	t := table.New(
		table.WithColumns(columns),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(10),
		table.WithStyles(styles),
	)
	return Model{feed: feed, source: source, table: t}
}

// waitForSnapshot reads the next snapshot off the feed.
func waitForSnapshot(feed Feed) tea.Cmd {
	return func() tea.Msg {
		snap, err := feed.Next()
		if err != nil {
			return feedErrMsg{err}
		}
		return snapshotMsg(snap)
	}
}

func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.feed)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		// title, status, help and the table header
		if h := msg.Height - 6; h > 3 {
			m.table.SetHeight(h)
		}
	case snapshotMsg:
		snap := flight.Snapshot(msg)
		m.latest = &snap
		m.updates++
		m.table.SetRows(rows(snap.Flights))
		return m, waitForSnapshot(m.feed)
	case feedErrMsg:
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("fleetwatch · " + m.source))
	b.WriteString("\n")

	switch {
	case m.latest == nil:
		b.WriteString(statusStyle.Render("Waiting for first snapshot..."))
	default:
		b.WriteString(statusStyle.Render(fmt.Sprintf("%d active flights at %s (%d updates)",
			len(m.latest.Flights), m.latest.Timestamp.Format(time.RFC3339), m.updates)))
	}
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Feed lost: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("↑/↓ scroll • q quit"))
	return b.String()
}

// rows renders flights as table rows. Unknown values show as "-".
func rows(flights []flight.FlightJSON) []table.Row {
	out := make([]table.Row, 0, len(flights))
	for _, f := range flights {
		out = append(out, table.Row{
			fmt.Sprintf("%d", f.ID),
			str(f.FlightID),
			str(f.TailNumber),
			string(f.Status),
			num(f.CurrentPositionLat, "%.3f"),
			num(f.CurrentPositionLon, "%.3f"),
			num(f.Altitude, "%.0f"),
			num(f.Speed, "%.0f"),
			num(f.Heading, "%03.0f"),
		})
	}
	return out
}

func str(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func num(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

// Run shows the live view until the user quits.
func Run(feed Feed, source string) error {
	defer feed.Close()
	_, err := tea.NewProgram(NewModel(feed, source), tea.WithAltScreen()).Run()
	return err
}
