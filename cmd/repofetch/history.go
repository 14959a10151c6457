package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/repofetch/repofetch/internal/store"
)

var (
	historyLimit int
	historyRepo  string
	historyStats bool
	pruneKeep    int
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent fetch outcomes",
		Example: `  repofetch history
  repofetch history --repo octo/demo
  repofetch history --stats
  repofetch history prune --keep 100`,
		RunE: historyRun,
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum records to show")
	cmd.Flags().StringVar(&historyRepo, "repo", "", "only show fetches of this repository")
	cmd.Flags().BoolVar(&historyStats, "stats", false, "show per-method and per-mirror aggregates instead")

	cmd.AddCommand(newHistoryPruneCmd())
	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest history records",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openHistory()
			if err != nil {
				return err
			}
			defer st.Close()

			deleted, err := st.PruneFetchHistory(pruneKeep)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d records\n", deleted)
			return nil
		},
	}
	cmd.Flags().IntVar(&pruneKeep, "keep", 100, "number of records to keep")
	return cmd
}

func openHistory() (*store.Store, error) {
	if !globalCfg.History.Enabled {
		return nil, fmt.Errorf("history is disabled in the configuration")
	}
	return store.New(globalCfg.HistoryDBPath(), logger)
}

func historyRun(cmd *cobra.Command, args []string) error {
	st, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	if historyStats {
		return printStats(st)
	}

	var records []*store.FetchRecord
	if historyRepo != "" {
		records, err = st.FetchesForRepo(historyRepo, historyLimit)
	} else {
		records, err = st.RecentFetches(historyLimit)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no fetch history")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tREPO\tREF\tMETHOD\tMIRROR\tOK\tSIZE\tSPEED\tRETRIES")
	for _, rec := range records {
		mirrorName := rec.Mirror
		if mirrorName == "" {
			mirrorName = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\t%.2f MB/s\t%d\n",
			rec.CreatedAt.Local().Format(time.DateTime),
			rec.Repo, rec.Ref, rec.Method, mirrorName, rec.Success,
			humanSize(rec.SizeBytes), rec.SpeedMBps, rec.RetryCount)
	}
	return w.Flush()
}

func printStats(st *store.Store) error {
	methods, err := st.MethodSummary()
	if err != nil {
		return err
	}
	mirrors, err := st.MirrorSummary()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tFETCHES\tSUCCEEDED\tAVG SPEED")
	for _, m := range methods {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f MB/s\n", m.Method, m.Total, m.Succeeded, m.AvgSpeedMBps)
	}
	if len(mirrors) > 0 {
		fmt.Fprintln(w, "\nMIRROR\tPROBES\tHEALTHY\tAVG SPEED")
		for _, m := range mirrors {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.2f MB/s\n", m.Mirror, m.Probes, m.Healthy, m.AvgSpeedMBps)
		}
	}
	return w.Flush()
}
