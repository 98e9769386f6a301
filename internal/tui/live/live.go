package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sparqlbench/internal/observer"
	"sparqlbench/internal/runner"
	"sparqlbench/internal/tui/components"
	"sparqlbench/internal/tui/styles"
)

// Model renders the per-second observer reports of a running benchmark.
type Model struct {
	Cfg      runner.Config
	Report   observer.Report
	Reports  int
	Progress progress.Model
	Table    table.Model

	WriteLine components.Sparkline
	ReadLine  components.Sparkline

	Width  int
	Height int
}

func NewModel(cfg runner.Config) Model {
	columns := []table.Column{
		{Title: "Kind", Width: 18},
		{Title: "Role", Width: 12},
		{Title: "Runs", Width: 9},
		{Title: "Fail", Width: 6},
		{Title: "Avg ms", Width: 8},
		{Title: "Min ms", Width: 8},
		{Title: "Max ms", Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.ColorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.ColorPrimary)
	s.Selected = s.Cell
	t.SetStyles(s)

	return Model{
		Cfg:       cfg,
		Progress:  progress.New(progress.WithGradient("#7D56F4", "#04B575")),
		Table:     t,
		WriteLine: components.NewSparkline(40, "Writes/s", styles.Active),
		ReadLine:  components.NewSparkline(40, "Reads/s", styles.Warn),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

// Percent is the share of the benchmark phase already observed.
func (m Model) Percent() float64 {
	var pct float64
	switch {
	case m.Cfg.ByQueryRuns > 0:
		pct = float64(m.Report.QueryExecutions) / float64(m.Cfg.ByQueryRuns)
	case m.Cfg.RunPeriod > 0:
		pct = float64(time.Duration(m.Report.Seconds)*time.Second) / float64(m.Cfg.RunPeriod)
	}
	if pct > 1 {
		pct = 1
	}
	return pct
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case observer.Report:
		m.Report = msg
		m.Reports++
		m.WriteLine.Add(msg.WriteRate)
		m.ReadLine.Add(msg.ReadRate)
		m.Table.SetRows(rows(msg))
		return m, m.Progress.SetPercent(m.Percent())

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4

		half := (msg.Width / 2) - 8
		if half < 10 {
			half = 10
		}
		m.WriteLine.Width = half
		m.ReadLine.Width = half
		if h := msg.Height - 16; h > 3 {
			m.Table.SetHeight(h)
		}
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func rows(r observer.Report) []table.Row {
	out := make([]table.Row, 0, len(r.Snapshots))
	for _, s := range r.Snapshots {
		out = append(out, table.Row{
			s.Kind.Name,
			s.Kind.Role.String(),
			fmt.Sprintf("%d", s.Runs),
			fmt.Sprintf("%d", s.Failures),
			fmt.Sprintf("%d", s.AvgMs),
			fmt.Sprintf("%d", s.MinMs),
			fmt.Sprintf("%d", s.MaxMs),
		})
	}
	return out
}

func (m Model) View() string {
	s := strings.Builder{}

	if m.Reports == 0 {
		s.WriteString(styles.Subtle.Render(fmt.Sprintf("Warming up for %s...", m.Cfg.Warmup)))
		s.WriteString("\n\n")
	}

	r := m.Report
	header := fmt.Sprintf("Seconds: %d", r.Seconds)
	if r.ByQueryRuns {
		header = fmt.Sprintf("Query executions: %d / %d", r.QueryExecutions, m.Cfg.ByQueryRuns)
	}
	writes := fmt.Sprintf("EDITORIAL %d agents\n%d ops  %d failed", r.WriteAgents, r.Write.Runs, r.Write.Failures)
	reads := fmt.Sprintf("AGGREGATION %d agents\n%d queries  %d failed", r.ReadAgents, r.Read.Runs, r.Read.Failures)
	status := header + "\n" + styles.Validity(r.Valid, r.Waiting)
	if r.Throttled {
		status += "\n" + styles.Warn.Render("editorial throttled")
	}

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(status),
		styles.Box.Render(writes),
		styles.Box.Render(reads),
	))
	s.WriteString("\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.WriteLine.View()),
		styles.Box.Render(m.ReadLine.View()),
	))
	s.WriteString("\n")

	s.WriteString(styles.Box.Render(m.Table.View()))
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())

	return s.String()
}
