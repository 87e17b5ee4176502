package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dreamup/lotto-agent/internal/db"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyState string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Number of runs to show")
	historyCmd.Flags().StringVar(&historyState, "state", "all", "Only runs in this final state (DONE, ABORTED, RUNNING)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := database.ListRuns(historyState, historyLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	total, err := database.CountRuns(historyState)
	if err != nil {
		return fmt.Errorf("failed to count runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tRUN\tSTATE\tBOUGHT\tAMOUNT\tBALANCE")
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%d → %d\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), id, r.State,
			r.Succeeded, r.Attempted, r.TotalAmount, r.BalanceBefore, r.BalanceAfter)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d of %d runs\n", len(runs), total)
	return nil
}
