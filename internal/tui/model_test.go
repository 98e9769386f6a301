package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparqlbench/internal/allocation"
	"sparqlbench/internal/observer"
	"sparqlbench/internal/runner"
	"sparqlbench/internal/stats"
)

func newTestModel(cancel context.CancelFunc) Model {
	cfg := runner.Config{QueryURL: "http://localhost/sparql", RunPeriod: 10 * time.Second, AggregationAgents: 2}
	return NewModel(cfg, make(chan observer.Report), make(chan doneMsg), cancel)
}

var tick = observer.Report{
	Seconds:    5,
	ReadAgents: 2,
	Snapshots:  []stats.Snapshot{{Kind: allocation.Kind{Name: "query1.txt", Role: allocation.RoleRead}, Runs: 50}},
	Read:       stats.Totals{Runs: 50},
	ReadRate:   10,
	Valid:      true,
}

func TestModel_ReportUpdatesLiveView(t *testing.T) {
	m := newTestModel(func() {})
	next, cmd := m.Update(tick)
	require.NotNil(t, cmd)
	m = next.(Model)

	assert.Equal(t, 1, m.Live.Reports)
	assert.InDelta(t, 0.5, m.Live.Percent(), 1e-9)
	assert.Equal(t, 10.0, m.Live.ReadLine.Last())
	assert.Len(t, m.Live.Table.Rows(), 1)
	assert.Contains(t, m.View(), "query1.txt")
	assert.Contains(t, m.View(), "VALID")
}

func TestModel_QuitStopsRunFirst(t *testing.T) {
	cancelled := false
	m := newTestModel(func() { cancelled = true })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.True(t, cancelled)
	assert.True(t, m.Stopping)
	assert.Contains(t, m.View(), "Stopping agents")

	next, cmd = m.Update(doneMsg{res: runner.Result{Outcome: runner.OutcomeInterrupted}})
	m = next.(Model)
	assert.True(t, m.Finished)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_ShowsResultAfterRun(t *testing.T) {
	m := newTestModel(func() {})
	next, cmd := m.Update(doneMsg{res: runner.Result{Outcome: runner.OutcomeInvalid, Seconds: 51}, err: runner.ErrResultInvalid})
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.True(t, m.Finished)
	view := m.View()
	assert.Contains(t, view, "Benchmark Complete")
	assert.Contains(t, view, "invalid")
	assert.Contains(t, view, "benchmark results are not valid")

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestLive_PercentByQueryRuns(t *testing.T) {
	m := newTestModel(func() {})
	m.Live.Cfg.ByQueryRuns = 200
	r := tick
	r.ByQueryRuns = true
	r.QueryExecutions = 300
	next, _ := m.Update(r)
	assert.Equal(t, 1.0, next.(Model).Live.Percent())
}
