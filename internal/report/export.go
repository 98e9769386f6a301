package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"sparqlbench/internal/runner"
)

var csvHeader = []string{
	"role", "kind", "runs", "failures", "avgMs", "minMs", "maxMs",
	"p50Ms", "p90Ms", "p99Ms", "hdrMaxMs",
}

// ExportCSV writes one row per operation kind.
func ExportCSV(res runner.Result, filename string) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "creating %s", filename)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range res.Snapshots {
		p := res.Percentiles[s.Kind.Name]
		record := []string{
			s.Kind.Role.String(),
			s.Kind.Name,
			strconv.FormatInt(s.Runs, 10),
			strconv.FormatInt(s.Failures, 10),
			strconv.FormatInt(s.AvgMs, 10),
			strconv.FormatInt(s.MinMs, 10),
			strconv.FormatInt(s.MaxMs, 10),
			fmt.Sprintf("%.3f", p.P50),
			fmt.Sprintf("%.3f", p.P90),
			fmt.Sprintf("%.3f", p.P99),
			fmt.Sprintf("%.3f", p.Max),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Summary is the JSON document written next to the CSV.
type Summary struct {
	Outcome         runner.Outcome `json:"outcome"`
	Valid           bool           `json:"valid"`
	Seconds         int64          `json:"seconds"`
	QueryExecutions int64          `json:"query_executions"`
	WriteRate       float64        `json:"write_ops_per_second"`
	ReadRate        float64        `json:"read_ops_per_second"`
	Result          runner.Result  `json:"result"`
}

// ExportJSON writes the run summary as indented JSON.
func ExportJSON(res runner.Result, filename string) error {
	data, err := json.MarshalIndent(Summary{
		Outcome:         res.Outcome,
		Valid:           res.Valid,
		Seconds:         res.Seconds,
		QueryExecutions: res.Executions,
		WriteRate:       res.WriteRate(),
		ReadRate:        res.ReadRate(),
		Result:          res,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding summary")
	}
	return errors.Wrapf(os.WriteFile(filename, data, 0o644), "writing %s", filename)
}

// Export writes prefix.csv and prefix_summary.json and returns the file names.
func Export(res runner.Result, prefix string) ([]string, error) {
	csvFile := prefix + ".csv"
	jsonFile := prefix + "_summary.json"
	var result error
	if err := ExportCSV(res, csvFile); err != nil {
		result = multierror.Append(result, err)
	}
	if err := ExportJSON(res, jsonFile); err != nil {
		result = multierror.Append(result, err)
	}
	return []string{csvFile, jsonFile}, result
}
