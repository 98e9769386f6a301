package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparqlbench/internal/allocation"
	"sparqlbench/internal/runner"
	"sparqlbench/internal/stats"
)

var result = runner.Result{
	Seconds:    4,
	Executions: 40,
	Snapshots: []stats.Snapshot{
		{Kind: allocation.Kind{Name: "insert.txt", Role: allocation.RoleWrite}, Runs: 8, Failures: 2, AvgMs: 15, MinMs: 4, MaxMs: 60},
		{Kind: allocation.Kind{Index: 0, Name: "query1.txt", Role: allocation.RoleRead}, Runs: 40, AvgMs: 7, MinMs: 1, MaxMs: 30},
	},
	Percentiles: map[string]stats.Percentiles{
		"query1.txt": {Count: 40, P50: 6.5, P90: 12, P99: 29.9, Max: 30},
	},
	Valid:   true,
	Outcome: runner.OutcomeCompleted,
}

func TestExport(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "run1")
	files, err := Export(result, prefix)
	require.NoError(t, err)
	assert.Equal(t, []string{prefix + ".csv", prefix + "_summary.json"}, files)

	f, err := os.Open(prefix + ".csv")
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"editorial", "insert.txt", "8", "2", "15", "4", "60", "0.000", "0.000", "0.000", "0.000"}, rows[1])
	assert.Equal(t, "6.500", rows[2][7])
	assert.Equal(t, "29.900", rows[2][9])

	data, err := os.ReadFile(prefix + "_summary.json")
	require.NoError(t, err)
	var summary Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, runner.OutcomeCompleted, summary.Outcome)
	assert.InDelta(t, 2.0, summary.WriteRate, 1e-9)
	assert.InDelta(t, 10.0, summary.ReadRate, 1e-9)
	assert.Equal(t, int64(40), summary.QueryExecutions)
	assert.Len(t, summary.Result.Snapshots, 2)
}

func TestExport_UnwritableDirectory(t *testing.T) {
	_, err := Export(result, filepath.Join(t.TempDir(), "missing", "run"))
	assert.Error(t, err)
}
