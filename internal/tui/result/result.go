package result

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"sparqlbench/internal/runner"
	"sparqlbench/internal/tui/styles"
)

// Model shows the final result once the run has stopped.
type Model struct {
	Result runner.Result
	Err    error

	Width  int
	Height int
}

func NewModel(res runner.Result, err error) Model {
	return Model{Result: res, Err: err}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}
	return m, nil
}

func (m Model) View() string {
	s := strings.Builder{}
	res := m.Result

	s.WriteString(styles.Title.Render("📊 Benchmark Complete"))
	s.WriteString("\n\n")

	s.WriteString(styles.Active.Render("Overview"))
	s.WriteString("\n")
	overview := fmt.Sprintf(
		"Outcome:     %s\nValidity:    %s\nSeconds run: %d\nWrites/s:    %.4f\nReads/s:     %.4f",
		res.Outcome, styles.Validity(res.Valid, false), res.Seconds, res.WriteRate(), res.ReadRate(),
	)
	s.WriteString(styles.Box.Render(overview))
	s.WriteString("\n\n")

	s.WriteString(styles.Active.Render("Latency (ms)"))
	s.WriteString("\n")
	var lines []string
	for _, snap := range res.Snapshots {
		p := res.Percentiles[snap.Kind.Name]
		lines = append(lines, fmt.Sprintf("%-16s runs %-7d P50 %-8.2f P90 %-8.2f P99 %-8.2f max %d",
			snap.Kind.Name, snap.Runs, p.P50, p.P90, p.P99, snap.MaxMs))
	}
	s.WriteString(styles.Box.Render(strings.Join(lines, "\n")))

	if m.Err != nil {
		s.WriteString("\n\n")
		s.WriteString(styles.Error.Render(m.Err.Error()))
	}

	s.WriteString("\n\n")
	s.WriteString(styles.Subtle.Render("Press q to quit"))

	return s.String()
}
