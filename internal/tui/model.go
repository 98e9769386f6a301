package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"sparqlbench/internal/cli"
	"sparqlbench/internal/observer"
	"sparqlbench/internal/runner"
	"sparqlbench/internal/tui/live"
	"sparqlbench/internal/tui/result"
	"sparqlbench/internal/tui/styles"
)

type doneMsg struct {
	res runner.Result
	err error
}

type reportsClosedMsg struct{}

// Model is the dashboard program: the live view while the run is going, then
// the final result.
type Model struct {
	Live   live.Model
	Result result.Model

	reports <-chan observer.Report
	done    <-chan doneMsg
	cancel  context.CancelFunc

	Finished bool
	Stopping bool
}

func NewModel(cfg runner.Config, reports <-chan observer.Report, done <-chan doneMsg, cancel context.CancelFunc) Model {
	return Model{
		Live:    live.NewModel(cfg),
		reports: reports,
		done:    done,
		cancel:  cancel,
	}
}

func waitForReport(ch <-chan observer.Report) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return reportsClosedMsg{}
		}
		return r
	}
}

func waitForDone(ch <-chan doneMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForReport(m.reports), waitForDone(m.done))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.Finished {
				return m, tea.Quit
			}
			// Stop the run and quit once it reports back.
			m.Stopping = true
			m.cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Live, _ = m.Live.Update(msg)
		m.Result, _ = m.Result.Update(msg)
		return m, nil

	case observer.Report:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(msg)
		return m, tea.Batch(cmd, waitForReport(m.reports))

	case reportsClosedMsg:
		return m, nil

	case doneMsg:
		m.Finished = true
		m.Result = result.NewModel(msg.res, msg.err)
		m.Result.Width, m.Result.Height = m.Live.Width, m.Live.Height
		if m.Stopping {
			return m, tea.Quit
		}
		return m, nil

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	if m.Finished {
		return m.Result.View()
	}

	s := strings.Builder{}
	cfg := m.Live.Cfg
	s.WriteString(styles.Title.Render("🚀 sparqlbench"))
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render(fmt.Sprintf("Endpoint: %s | Agents: %d aggregation / %d editorial",
		cfg.QueryURL, cfg.AggregationAgents, cfg.EditorialAgents)))
	s.WriteString("\n\n")
	s.WriteString(m.Live.View())
	s.WriteString("\n")
	if m.Stopping {
		s.WriteString(styles.Warn.Render("Stopping agents..."))
	} else {
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, styles.RenderKey("q", "stop run")))
	}
	return s.String()
}

// Run executes the session behind the dashboard. Quitting the dashboard stops the run.
func Run(ctx context.Context, s *cli.Session) (runner.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reports := s.Runner.Subscribe()
	done := make(chan doneMsg, 1)
	go func() {
		res, err := s.Run(ctx)
		done <- doneMsg{res: res, err: err}
	}()

	final, err := tea.NewProgram(NewModel(s.Cfg, reports, done, cancel), tea.WithAltScreen()).Run()
	if err != nil {
		cancel()
		d := <-done
		return d.res, errors.Wrap(err, "running dashboard")
	}
	fm, ok := final.(Model)
	if !ok || !fm.Finished {
		cancel()
		d := <-done
		return d.res, d.err
	}
	return fm.Result.Result, fm.Result.Err
}
