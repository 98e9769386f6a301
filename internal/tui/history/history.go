package history

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"sparqlbench/internal/runner"
	"sparqlbench/internal/storage"
	"sparqlbench/internal/tui/result"
	"sparqlbench/internal/tui/styles"
)

// Model browses stored runs. Enter opens the selected run.
type Model struct {
	Records []storage.Record
	Table   table.Model
	Detail  bool

	Width  int
	Height int
}

func NewModel(records []storage.Record) Model {
	columns := []table.Column{
		{Title: "Time", Width: 20},
		{Title: "Endpoint", Width: 30},
		{Title: "Outcome", Width: 12},
		{Title: "Secs", Width: 6},
		{Title: "Writes/s", Width: 10},
		{Title: "Reads/s", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.ColorBorder).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(styles.ColorPrimary).
		Bold(false)
	t.SetStyles(s)
	t.SetRows(Rows(records))

	return Model{Records: records, Table: t}
}

// Rows renders one table row per record.
func Rows(records []storage.Record) []table.Row {
	rows := make([]table.Row, len(records))
	for i, rec := range records {
		outcome := string(rec.Outcome)
		if !rec.Valid && rec.Outcome != runner.OutcomeInvalid {
			outcome += "*"
		}
		rows[i] = table.Row{
			rec.Timestamp.Format(time.RFC822),
			rec.Endpoint,
			outcome,
			fmt.Sprintf("%d", rec.Seconds),
			fmt.Sprintf("%.2f", rec.WriteRate),
			fmt.Sprintf("%.2f", rec.ReadRate),
		}
	}
	return rows
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		if h := msg.Height - 6; h > 3 {
			m.Table.SetHeight(h)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			m.Detail = len(m.Records) > 0
			return m, nil
		case "esc":
			m.Detail = false
			return m, nil
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

// Selected returns the record under the cursor.
func (m Model) Selected() (storage.Record, bool) {
	i := m.Table.Cursor()
	if i < 0 || i >= len(m.Records) {
		return storage.Record{}, false
	}
	return m.Records[i], true
}

func (m Model) View() string {
	if m.Detail {
		if rec, ok := m.Selected(); ok {
			return styles.Subtle.Render("Run "+rec.ID) + "\n\n" +
				result.NewModel(rec.Result, nil).View() + "\n" +
				styles.RenderKey("esc", "back")
		}
	}
	if len(m.Records) == 0 {
		return styles.Subtle.Render("No runs recorded yet.")
	}
	return styles.Title.Render("🗂  Run history") + "\n" +
		styles.Box.Render(m.Table.View()) + "\n" +
		lipgloss.JoinHorizontal(lipgloss.Center,
			styles.RenderKey("enter", "details"), "  ", styles.RenderKey("q", "quit"))
}

// Run opens the history browser.
func Run(records []storage.Record) error {
	if _, err := tea.NewProgram(NewModel(records), tea.WithAltScreen()).Run(); err != nil {
		return errors.Wrap(err, "running history browser")
	}
	return nil
}
