package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/repofetch/repofetch/internal/download"
	"github.com/repofetch/repofetch/internal/fetch"
	"github.com/repofetch/repofetch/internal/gitremote"
	"github.com/repofetch/repofetch/internal/mirror"
	"github.com/repofetch/repofetch/internal/netinfo"
	"github.com/repofetch/repofetch/internal/store"
)

var (
	fetchRef        string
	fetchMethod     string
	fetchDest       string
	fetchToken      string
	fetchDepth      int
	fetchClean      bool
	fetchTimeout    time.Duration
	fetchRetries    int
	fetchNoFallback bool
	fetchSpeedTest  bool
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <owner/repo>",
		Short: "Retrieve a repository revision into a local directory",
		Long: `Retrieve a specific revision of a repository. The ref may be a branch,
a tag, a full ref path (refs/heads/*, refs/tags/*, refs/pull/<n>/merge),
or an absolute commit id.

With --method auto (the default) the current network conditions decide
the first strategy tried; retries and fallback take over from there.`,
		Example: `  repofetch fetch octo/demo
  repofetch fetch octo/demo --ref v1.2.3 --dest ./vendor/demo
  repofetch fetch octo/demo --ref refs/pull/42/merge --method mirror
  repofetch fetch octo/demo --ref 0123456789abcdef0123456789abcdef01234567`,
		Args: cobra.ExactArgs(1),
		RunE: fetchRun,
	}

	cmd.Flags().StringVar(&fetchRef, "ref", "", "branch, tag, ref path, or commit id (default: main)")
	cmd.Flags().StringVar(&fetchMethod, "method", "", "retrieval method: auto, mirror, direct, or clone")
	cmd.Flags().StringVar(&fetchDest, "dest", "", "destination directory (default: repository short name)")
	cmd.Flags().StringVar(&fetchToken, "token", "", "access token (overrides config and REPOFETCH_TOKEN)")
	cmd.Flags().IntVar(&fetchDepth, "depth", 0, "clone depth, 0 clones the full history")
	cmd.Flags().BoolVar(&fetchClean, "clean", false, "remove destination contents before fetching")
	cmd.Flags().DurationVar(&fetchTimeout, "timeout", 0, "overall timeout, 0 means no limit")
	cmd.Flags().IntVar(&fetchRetries, "max-retries", 0, "retries per method, 0 disables retries")
	cmd.Flags().BoolVar(&fetchNoFallback, "no-fallback", false, "fail instead of trying alternate methods")
	cmd.Flags().BoolVar(&fetchSpeedTest, "speed-test", false, "rank mirrors by measured throughput, not just latency")

	return cmd
}

func fetchRun(cmd *cobra.Command, args []string) error {
	repo, err := gitremote.ParseRepo(args[0])
	if err != nil {
		return err
	}

	methodName := fetchMethod
	if methodName == "" {
		methodName = globalCfg.Fetch.Method
	}
	method, err := download.ParseMethod(methodName)
	if err != nil {
		return err
	}

	if method == download.MethodAuto {
		info := netinfo.NewSampler(logger).Sample(cmd.Context())
		method = netinfo.Recommend(info)
		logger.Info("selected method from network conditions",
			"method", method,
			"latency_ms", info.LatencyToOriginMs,
			"bandwidth_mbps", info.EstimatedBandwidthMbps,
		)
	}

	token := fetchToken
	if token == "" {
		token = globalCfg.Auth.Token
	}

	dest := fetchDest
	if dest == "" {
		dest = repo.Name
	}

	// Explicitly set flags win even at their zero value, so --depth 0
	// requests a full-history clone and --max-retries 0 disables retries.
	depth := flagOrInt(cmd, "depth", fetchDepth, globalCfg.Fetch.CloneDepth)
	timeout := flagOrDuration(cmd, "timeout", fetchTimeout, globalCfg.Fetch.Timeout.Duration())
	retries := flagOrInt(cmd, "max-retries", fetchRetries, globalCfg.Fetch.MaxRetries)

	opts := download.Options{
		Repo:       repo,
		Ref:        gitremote.Ref(fetchRef),
		Token:      token,
		Dest:       dest,
		CloneDepth: depth,
		CleanDest:  fetchClean || globalCfg.Fetch.CleanDest,
		Timeout:    timeout,
		MaxRetries: retries,
	}

	speedTest := fetchSpeedTest || globalCfg.Mirrors.SpeedTest
	selector := mirror.NewSelector(globalCfg.MirrorList(), mirror.NewProbeCache(mirror.ProbeTTL), speedTest, logger)
	client := download.NewClient(logger, globalCfg.Transfer.ChunkSizeBytes, globalCfg.Transfer.MaxParallelChunks)
	executor := download.NewExecutor(client, download.NewGitRunner("", logger), selector, logger)

	fallback := !fetchNoFallback && globalCfg.Fetch.Fallback
	orch := fetch.NewOrchestrator(executor, fallback, logger)

	result := orch.Fetch(cmd.Context(), method, opts)

	recordFetch(repo, result)
	printFetchSummary(repo, dest, result)

	if !result.Success {
		return fmt.Errorf("fetch failed: %s", result.Error)
	}
	return nil
}

// flagOrInt returns the flag's value whenever it was set on the command
// line, even to zero, and the configured value otherwise.
func flagOrInt(cmd *cobra.Command, name string, flagVal, cfgVal int) int {
	if cmd.Flags().Changed(name) {
		return flagVal
	}
	return cfgVal
}

func flagOrDuration(cmd *cobra.Command, name string, flagVal, cfgVal time.Duration) time.Duration {
	if cmd.Flags().Changed(name) {
		return flagVal
	}
	return cfgVal
}

// recordFetch persists the outcome to the history store. Best-effort:
// a broken store never fails the fetch itself.
func recordFetch(repo gitremote.Repo, result *download.Result) {
	if !globalCfg.History.Enabled {
		return
	}
	st, err := store.New(globalCfg.HistoryDBPath(), logger)
	if err != nil {
		logger.Warn("history store unavailable", "error", err)
		return
	}
	defer st.Close()

	if err := st.RecordFetch(store.FromResult(repo.String(), result)); err != nil {
		logger.Warn("failed to record fetch history", "error", err)
	}
}

func printFetchSummary(repo gitremote.Repo, dest string, r *download.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Repository:\t%s\n", repo)
	fmt.Fprintf(w, "Ref:\t%s\n", r.Ref)
	fmt.Fprintf(w, "Method:\t%s\n", r.Method)
	if r.Mirror != "" {
		fmt.Fprintf(w, "Mirror:\t%s\n", r.Mirror)
	}
	if r.Success {
		fmt.Fprintf(w, "Status:\tok\n")
		fmt.Fprintf(w, "Destination:\t%s\n", dest)
		fmt.Fprintf(w, "Commit:\t%s\n", r.CommitID)
		fmt.Fprintf(w, "Size:\t%s\n", humanSize(r.Size))
		fmt.Fprintf(w, "Transfer:\t%s (%.2f MB/s)\n", r.DownloadTime.Round(time.Millisecond), r.SpeedMBps)
	} else {
		fmt.Fprintf(w, "Status:\tfailed\n")
		fmt.Fprintf(w, "Error:\t%s\n", r.Error)
		if r.ErrorClass != "" {
			fmt.Fprintf(w, "Class:\t%s\n", r.ErrorClass)
		}
	}
	fmt.Fprintf(w, "Retries:\t%d\n", r.RetryCount)
	fmt.Fprintf(w, "Fallback:\t%t\n", r.FallbackUsed)
	fmt.Fprintf(w, "Total:\t%s\n", r.TotalTime.Round(time.Millisecond))
	w.Flush()
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
