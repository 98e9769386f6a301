package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sparqlbench/internal/cli"
	"sparqlbench/internal/config"
	"sparqlbench/internal/storage"
	"sparqlbench/internal/tui/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "List stored runs, newest first, or show one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.New(cfgFile)
		if err != nil {
			return err
		}
		path := v.GetString(config.KeyHistoryPath)
		if p, _ := cmd.Flags().GetString(config.KeyHistoryPath); p != "" {
			path = p
		}
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := storage.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			rec, err := store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Run %s (%s)\n", rec.ID, rec.Timestamp.Format(time.RFC3339))
			cli.PrintSummary(os.Stdout, rec.Result)
			return nil
		}

		records, err := store.List(limit)
		if err != nil {
			return err
		}

		if useTUI, _ := cmd.Flags().GetBool("tui"); useTUI {
			return history.Run(records)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tENDPOINT\tOUTCOME\tVALID\tSECS\tWRITES/S\tREADS/S")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%.2f\t%.2f\n",
				rec.ID, rec.Timestamp.Format(time.RFC3339), rec.Endpoint, rec.Outcome,
				rec.Valid, rec.Seconds, rec.WriteRate, rec.ReadRate)
		}
		return w.Flush()
	},
}

func init() {
	f := historyCmd.Flags()
	f.String(config.KeyHistoryPath, "", "run history database (defaults to the configured one)")
	f.IntP("limit", "n", 20, "number of runs to list (0 lists all)")
	f.Bool("tui", false, "browse the history interactively")
}
