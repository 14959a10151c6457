package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/repofetch/repofetch/internal/mirror"
	"github.com/repofetch/repofetch/internal/store"
)

var (
	probeTransfer  string
	probeSpeedTest bool
)

func newMirrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirrors",
		Short: "Inspect and probe the configured mirrors",
	}

	cmd.AddCommand(newMirrorsListCmd(), newMirrorsProbeCmd())
	return cmd
}

func newMirrorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the configured mirror descriptors",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tBASE URL\tPRIORITY\tMETHODS\tENABLED")
			for _, d := range globalCfg.MirrorList() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\n",
					d.Name, d.BaseURL, d.Priority, strings.Join(d.Methods, ","), d.Enabled)
			}
			return w.Flush()
		},
	}
}

func newMirrorsProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe mirror health and rank the candidates",
		Long: `Run health probes (and optionally throughput probes) against every
configured mirror that supports the given transfer kind, then print the
candidates in ranked order.`,
		Example: `  repofetch mirrors probe
  repofetch mirrors probe --transfer clone
  repofetch mirrors probe --speed-test`,
		RunE: mirrorsProbeRun,
	}

	cmd.Flags().StringVar(&probeTransfer, "transfer", mirror.TransferArchive, "transfer kind to rank for (archive or clone)")
	cmd.Flags().BoolVar(&probeSpeedTest, "speed-test", false, "include throughput probes in the ranking")

	return cmd
}

func mirrorsProbeRun(cmd *cobra.Command, args []string) error {
	if probeTransfer != mirror.TransferArchive && probeTransfer != mirror.TransferClone {
		return fmt.Errorf("unknown transfer kind %q (want archive or clone)", probeTransfer)
	}

	speedTest := probeSpeedTest || globalCfg.Mirrors.SpeedTest
	selector := mirror.NewSelector(globalCfg.MirrorList(), mirror.NewProbeCache(mirror.ProbeTTL), speedTest, logger)

	ranked := selector.Rank(cmd.Context(), probeTransfer)
	if len(ranked) == 0 {
		return fmt.Errorf("no mirror supports %s transfer", probeTransfer)
	}

	recordProbes(ranked)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tNAME\tHEALTHY\tRESPONSE\tSPEED\tSCORE")
	for i, r := range ranked {
		speed := "-"
		if r.Speed != nil && r.Speed.Success {
			speed = fmt.Sprintf("%.2f MB/s", r.Speed.SpeedMBps)
		}
		fmt.Fprintf(w, "%d\t%s\t%t\t%s\t%s\t%.2f\n",
			i+1, r.Descriptor.Name, r.Health.Healthy,
			r.Health.ResponseTime.Round(time.Millisecond), speed, r.Score)
	}
	return w.Flush()
}

// recordProbes persists probe outcomes for later `history` inspection.
func recordProbes(ranked []mirror.Ranked) {
	if !globalCfg.History.Enabled {
		return
	}
	st, err := store.New(globalCfg.HistoryDBPath(), logger)
	if err != nil {
		logger.Warn("history store unavailable", "error", err)
		return
	}
	defer st.Close()

	for _, r := range ranked {
		rec := &store.ProbeRecord{
			Mirror:         r.Descriptor.Name,
			Kind:           "health",
			Healthy:        r.Health.Healthy,
			ResponseTimeMs: r.Health.ResponseTime.Milliseconds(),
			Error:          r.Health.Error,
			CheckedAt:      r.Health.CheckedAt,
		}
		if err := st.RecordProbe(rec); err != nil {
			logger.Warn("failed to record probe", "mirror", rec.Mirror, "error", err)
		}

		if r.Speed == nil {
			continue
		}
		sp := &store.ProbeRecord{
			Mirror:    r.Descriptor.Name,
			Kind:      "speed",
			Healthy:   r.Speed.Success,
			SpeedMBps: r.Speed.SpeedMBps,
			LatencyMs: r.Speed.Latency.Milliseconds(),
			Error:     r.Speed.Error,
			CheckedAt: r.Speed.CheckedAt,
		}
		if err := st.RecordProbe(sp); err != nil {
			logger.Warn("failed to record probe", "mirror", sp.Mirror, "error", err)
		}
	}
}
