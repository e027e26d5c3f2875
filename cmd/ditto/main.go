package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/ditto/internal/config"
	"github.com/bamsammich/ditto/internal/engine"
	"github.com/bamsammich/ditto/internal/event"
	"github.com/bamsammich/ditto/internal/filter"
	"github.com/bamsammich/ditto/internal/meta"
	"github.com/bamsammich/ditto/internal/platform"
	"github.com/bamsammich/ditto/internal/stats"
	"github.com/bamsammich/ditto/internal/ui"
	"github.com/bamsammich/ditto/internal/ui/tui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// repeatable filter flags by appending to a shared filter.Chain as each
// occurrence is parsed.
type filterFlag struct {
	add func(string) error
}

func (*filterFlag) String() string      { return "" }
func (*filterFlag) Type() string        { return "pattern" }
func (f *filterFlag) Set(v string) error { return f.add(v) }

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: main CLI entry point orchestrates all flag parsing and mode selection
func run() int {
	var (
		mirror      bool
		purge       bool
		move        bool
		listOnly    bool
		dryRun      bool
		confirm     bool
		checksum    bool
		copyAll     bool
		archive     bool
		copyFlagStr string
		blockSize   string
		noDelta     bool
		wholeFile   bool
		compress    bool
		workers     int
		mtWorkers   int
		retries     int
		retryWait   time.Duration
		bwLimitStr  string
		useIOURing  bool
		verbose     int
		quiet       bool
		noProgress  bool
		npFlag      bool
		forceFeed   bool
		forceRate   bool
		tuiFlag     bool
		verifyFlag  bool
		logFile     string
		filterFile  string
		minSizeStr  string
		maxSizeStr  string
		showVersion bool
	)

	chain := filter.NewChain()

	rootCmd := &cobra.Command{
		Use:   "ditto [flags] SOURCE DESTINATION",
		Short: "Parallel directory sync with delta transfer",
		Long: `ditto makes DESTINATION match SOURCE, copying only what changed.

Changed files that already exist at the destination are rebuilt from the
blocks the destination already has (rsync-style delta transfer, BLAKE3
verified). Transfers run on a bounded worker pool with small files batched
together. Mirror mode additionally deletes destination entries that have no
counterpart in the source.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "ditto %s\n", version)
				return nil
			}

			src, dst := args[0], args[1]

			// Load optional config file and fill in flags the user left unset.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			applyConfigDefaults(cmd, cfg.Defaults, configTargets{
				workers:   &workers,
				retries:   &retries,
				retryWait: &retryWait,
				copyFlags: &copyFlagStr,
				blockSize: &blockSize,
				bwLimit:   &bwLimitStr,
				compress:  &compress,
				verify:    &verifyFlag,
				tui:       &tuiFlag,
				noDelta:   &noDelta,
			})

			// Robocopy-style aliases fold into their canonical flags.
			if cmd.Flags().Changed("mt") && !cmd.Flags().Changed("workers") {
				workers = mtWorkers
			}
			noDelta = noDelta || wholeFile
			noProgress = noProgress || npFlag
			if listOnly {
				dryRun = true
				forceFeed = true
			}
			doMirror := mirror || purge

			copyFlags := meta.DefaultFlags()
			if copyFlagStr != "" {
				copyFlags, err = meta.ParseFlags(copyFlagStr)
				if err != nil {
					return fmt.Errorf("invalid --copy: %w", err)
				}
			}
			if copyAll || archive {
				copyFlags = meta.AllFlags()
			}

			var blockBytes int64
			if blockSize != "" {
				blockBytes, err = filter.ParseSize(blockSize)
				if err != nil {
					return fmt.Errorf("invalid --block-size: %w", err)
				}
			}

			var bwLimit int64
			if bwLimitStr != "" {
				bwLimit, err = filter.ParseSize(bwLimitStr)
				if err != nil {
					return fmt.Errorf("invalid --bwlimit: %w", err)
				}
			}

			if filterFile != "" {
				if err := chain.LoadRules(filterFile); err != nil {
					return fmt.Errorf("load filter file: %w", err)
				}
			}
			if minSizeStr != "" {
				n, err := filter.ParseSize(minSizeStr)
				if err != nil {
					return fmt.Errorf("invalid --min-size: %w", err)
				}
				chain.SetMinSize(n)
			}
			if maxSizeStr != "" {
				n, err := filter.ParseSize(maxSizeStr)
				if err != nil {
					return fmt.Errorf("invalid --max-size: %w", err)
				}
				chain.SetMaxSize(n)
			}

			// Configure logging: -v raises detail, -q leaves only errors.
			logLevel := slog.LevelWarn
			switch {
			case quiet:
				logLevel = slog.LevelError
			case verbose >= 2:
				logLevel = slog.LevelDebug
			case verbose == 1:
				logLevel = slog.LevelInfo
			}
			textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			})
			var logHandler slog.Handler = textHandler
			if logFile != "" {
				lf, lfErr := os.Create(logFile)
				if lfErr != nil {
					return fmt.Errorf("open log file: %w", lfErr)
				}
				defer lf.Close()
				jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})
				logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
			}
			slog.SetDefault(slog.New(logHandler))

			if move && doMirror {
				slog.Warn("move with mirror: the source empties as it copies, then the delete pass compares against it")
			}
			if dryRun {
				slog.Info("dry run: no files will be modified")
			}

			// Default workers from the platform policy; the TUI raises and
			// lowers the live limit below this at runtime.
			if workers <= 0 {
				workers = platform.MaxWorkers(platform.Detect())
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engineCfg := engine.Config{
				Src:        src,
				Dst:        dst,
				Workers:    workers,
				Mirror:     doMirror,
				Move:       move,
				DryRun:     dryRun,
				Checksum:   checksum,
				NoDelta:    noDelta,
				BlockSize:  int(blockBytes),
				Compress:   compress,
				Verify:     verifyFlag,
				BWLimit:    bwLimit,
				UseIOURing: useIOURing,
				CopyFlags:  copyFlags,
				Retry: engine.RetryPolicy{
					MaxAttempts: retries + 1,
					Wait:        retryWait,
				},
			}
			if !chain.Empty() {
				engineCfg.Filter = chain
			}

			// Confirmation runs the whole planning pipeline dry, shows what
			// would happen, and only then dispatches for real.
			if confirm && !dryRun {
				proceed, err := confirmPlan(ctx, engineCfg)
				if err != nil {
					return err
				}
				if !proceed {
					fmt.Fprintln(os.Stderr, "cancelled, nothing transferred")
					return nil
				}
			}

			collector := stats.NewCollector()
			events := make(chan event.Event, 256)
			engineCfg.Stats = collector
			engineCfg.Events = events

			// When --log is set, tee events through a logging goroutine that
			// writes structured records before forwarding to the presenter.
			presenterEvents := (<-chan event.Event)(events)
			if logFile != "" {
				teed := make(chan event.Event, 256)
				go func() {
					for ev := range events {
						attrs := []slog.Attr{
							slog.String("type", ev.Type.String()),
							slog.String("path", ev.Path),
							slog.Int64("size", ev.Size),
							slog.Int("worker", ev.WorkerID),
						}
						if ev.Error != nil {
							attrs = append(attrs, slog.String("error", ev.Error.Error()))
						}
						slog.LogAttrs(context.Background(), slog.LevelInfo, "ditto.event", attrs...)
						teed <- ev
					}
					close(teed)
				}()
				presenterEvents = teed
			}

			// Live worker ceiling, adjustable from the TUI.
			workerLimit := &atomic.Int32{}
			workerLimit.Store(int32(workers)) //nolint:gosec // G115: workers bounded by the platform cap
			engineCfg.WorkerLimit = workerLimit

			isTTY := ui.IsTTY(os.Stderr.Fd())
			var presenter ui.Presenter
			if tuiFlag && isTTY {
				presenter = tui.NewPresenter(tui.Config{
					Stats:       collector,
					Workers:     workers,
					DstRoot:     dst,
					SrcRoot:     src,
					Theme:       cfg.Theme,
					WorkerLimit: workerLimit,
				})
			} else {
				if tuiFlag {
					slog.Warn("--tui requires a terminal, falling back to inline output")
				}
				presenter = ui.NewPresenter(ui.Config{
					Writer:     os.Stdout,
					ErrWriter:  os.Stderr,
					IsTTY:      isTTY,
					Quiet:      quiet,
					Verbose:    verbose > 0,
					ForceFeed:  forceFeed,
					ForceRate:  forceRate,
					NoProgress: noProgress,
					Stats:      collector,
					Workers:    workers,
				})
			}

			slog.Debug("starting sync",
				"src", src,
				"dst", dst,
				"workers", workers,
				"mirror", doMirror,
				"copy", copyFlags.String(),
				"block_size", blockBytes,
				"iouring", useIOURing,
			)

			useTUI := tuiFlag && isTTY
			var result engine.Result

			if useTUI {
				// TUI mode: run engine in background, TUI in foreground.
				// Bubble Tea needs the foreground to capture stdin properly.
				engineCtx, engineCancel := context.WithCancel(ctx)
				defer engineCancel()

				var engineWg sync.WaitGroup
				engineWg.Add(1)
				go func() {
					defer engineWg.Done()
					result = engine.Run(engineCtx, engineCfg)
					close(events)
				}()

				// TUI runs in foreground — blocks until the user quits.
				_ = presenter.Run(presenterEvents) //nolint:errcheck // presenter error is non-fatal

				// User quit the TUI — cancel the engine if still running.
				engineCancel()
				engineWg.Wait()
				stop()
			} else {
				// Inline mode: run presenter in background, engine in foreground.
				var presenterErr error
				var presenterWg sync.WaitGroup
				presenterWg.Add(1)
				go func() {
					defer presenterWg.Done()
					presenterErr = presenter.Run(presenterEvents)
				}()

				result = engine.Run(ctx, engineCfg)
				stop()
				close(events)
				presenterWg.Wait()
				if presenterErr != nil {
					fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
				}
			}

			if !quiet {
				if summary := presenter.Summary(); summary != "" {
					fmt.Fprintln(os.Stderr, summary)
				}
			}

			if result.Err != nil {
				slog.Error("sync failed", "error", result.Err)
				if result.Stats.FilesCopied > 0 || result.Stats.FilesSkipped > 0 {
					return &exitError{code: 1} // partial: some entries made it
				}
				return &exitError{code: 2} // total failure
			}
			return nil
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	// Modes.
	rootCmd.Flags().BoolVar(&mirror, "mir", false, "mirror: sync and delete extraneous destination entries")
	rootCmd.Flags().BoolVar(&purge, "purge", false, "delete destination entries absent from source")
	rootCmd.Flags().BoolVar(&move, "mov", false, "move: delete source files after a successful transfer")
	rootCmd.Flags().BoolVarP(&listOnly, "list-only", "l", false, "list what would transfer without copying")
	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "plan the full run without touching either tree")
	rootCmd.Flags().BoolVar(&confirm, "confirm", false, "show the plan and prompt before transferring")

	// Fidelity.
	rootCmd.Flags().StringVar(&copyFlagStr, "copy", "", "metadata to replicate: D=data A=attrs T=times S=security O=owner U=auditing (default DAT)")
	rootCmd.Flags().BoolVar(&copyAll, "copyall", false, "replicate all metadata (same as --copy DATSOU)")
	rootCmd.Flags().BoolVarP(&archive, "archive", "a", false, "archive mode (same as --copyall)")
	rootCmd.Flags().BoolVarP(&checksum, "checksum", "c", false, "compare content hashes instead of size and mtime")
	rootCmd.Flags().BoolVar(&verifyFlag, "verify", false, "re-hash both trees after the sync (BLAKE3)")

	// Delta transfer.
	rootCmd.Flags().StringVarP(&blockSize, "block-size", "b", "1K", "delta block size (0 picks one per file)")
	rootCmd.Flags().BoolVar(&noDelta, "no-delta", false, "always copy whole files")
	rootCmd.Flags().BoolVar(&wholeFile, "whole-file", false, "alias of --no-delta")
	rootCmd.Flags().BoolVarP(&compress, "compress", "z", false, "zstd-compress delta literal data")

	// Scheduling.
	rootCmd.Flags().IntVar(&workers, "workers", 0, "transfer workers (default: platform policy)")
	rootCmd.Flags().IntVar(&mtWorkers, "mt", 0, "alias of --workers")
	rootCmd.Flags().IntVarP(&retries, "retry", "r", 0, "retries per file on transient errors")
	rootCmd.Flags().DurationVarP(&retryWait, "retry-wait", "w", 30*time.Second, "wait between retries")
	rootCmd.Flags().StringVar(&bwLimitStr, "bwlimit", "", "aggregate bandwidth limit (e.g. 100M, 1G)")
	rootCmd.Flags().BoolVar(&useIOURing, "iouring", false, "use io_uring for file copy (Linux only)")

	// Filters.
	rootCmd.Flags().Var(&filterFlag{add: chain.AddExcludeFile}, "xf", "exclude files matching PATTERN (repeatable)")
	rootCmd.Flags().Var(&filterFlag{add: chain.AddExcludeDir}, "xd", "exclude directories matching PATTERN (repeatable)")
	rootCmd.Flags().Var(&filterFlag{add: chain.AddExclude}, "exclude", "exclude entries matching PATTERN (repeatable)")
	rootCmd.Flags().Var(&filterFlag{add: chain.AddInclude}, "include", "include entries matching PATTERN (repeatable)")
	rootCmd.Flags().StringVar(&filterFile, "filter", "", "read +/- filter rules from FILE")
	rootCmd.Flags().StringVar(&minSizeStr, "min-size", "", "skip files smaller than SIZE (e.g. 1M, 100K)")
	rootCmd.Flags().StringVar(&maxSizeStr, "max-size", "", "skip files larger than SIZE (e.g. 1G, 500M)")

	// Output.
	rootCmd.Flags().CountVarP(&verbose, "verbose", "v", "more output (-v, -vv)")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable progress display")
	rootCmd.Flags().BoolVar(&npFlag, "np", false, "alias of --no-progress")
	rootCmd.Flags().BoolVar(&forceFeed, "feed", false, "force feed mode (one line per file)")
	rootCmd.Flags().BoolVar(&forceRate, "rate", false, "force rate mode (sparkline + throughput)")
	rootCmd.Flags().BoolVar(&tuiFlag, "tui", false, "full-screen TUI for large transfers")
	rootCmd.Flags().StringVar(&logFile, "log", "", "write structured JSON log to FILE")

	rootCmd.AddCommand(newDocsCmd())

	// Repeatable flags take a bare value, never toggle.
	rootCmd.Flags().VisitAll(func(f *pflag.Flag) {
		switch f.Name {
		case "xf", "xd", "exclude", "include":
			f.NoOptDefVal = ""
		}
	})

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// confirmPlan runs the pipeline dry, prints the resulting operation counts,
// and asks whether to proceed. Nothing is enqueued until the answer is yes.
func confirmPlan(ctx context.Context, engineCfg engine.Config) (bool, error) {
	planCfg := engineCfg
	planCfg.DryRun = true
	planCfg.Stats = stats.NewCollector()
	planCfg.Events = nil

	plan := engine.Run(ctx, planCfg)
	if plan.Err != nil && engine.Classify(plan.Err) == engine.ConfigError {
		return false, plan.Err
	}

	snap := plan.Stats
	fmt.Fprintf(os.Stderr, "plan: copy %s files (%s), %s dirs, %s symlinks",
		ui.FormatCount(snap.FilesCopied), ui.FormatBytes(snap.BytesCopied),
		ui.FormatCount(snap.DirsCreated), ui.FormatCount(snap.SymlinksCreated))
	if snap.FilesDeleted > 0 {
		fmt.Fprintf(os.Stderr, ", delete %s", ui.FormatCount(snap.FilesDeleted))
	}
	if snap.FilesSkipped > 0 {
		fmt.Fprintf(os.Stderr, ", skip %s", ui.FormatCount(snap.FilesSkipped))
	}
	fmt.Fprintln(os.Stderr)
	if plan.Err != nil {
		fmt.Fprintf(os.Stderr, "plan warnings: %v\n", plan.Err)
	}

	fmt.Fprint(os.Stderr, "Continue? [Y/n]: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// configTargets collects the flag storage the config file may fill in.
type configTargets struct {
	workers   *int
	retries   *int
	retryWait *time.Duration
	copyFlags *string
	blockSize *string
	bwLimit   *string
	compress  *bool
	verify    *bool
	tui       *bool
	noDelta   *bool
}

// applyConfigDefaults applies config file defaults for flags not explicitly
// set on the CLI. CLI always wins; the file only fills gaps.
func applyConfigDefaults(cmd *cobra.Command, defaults config.DefaultsConfig, t configTargets) {
	changed := cmd.Flags().Changed

	if !changed("workers") && !changed("mt") && defaults.Workers != nil {
		*t.workers = *defaults.Workers
	}
	if !changed("retry") && defaults.Retry != nil {
		*t.retries = *defaults.Retry
	}
	if !changed("retry-wait") && defaults.RetryWait != nil {
		if d, err := time.ParseDuration(*defaults.RetryWait); err == nil {
			*t.retryWait = d
		} else {
			slog.Warn("config: bad retry_wait", "value", *defaults.RetryWait, "error", err)
		}
	}
	if !changed("copy") && defaults.CopyFlags != nil {
		*t.copyFlags = *defaults.CopyFlags
	}
	if !changed("block-size") && defaults.BlockSize != nil {
		*t.blockSize = *defaults.BlockSize
	}
	if !changed("bwlimit") && defaults.BWLimit != nil {
		*t.bwLimit = *defaults.BWLimit
	}
	if !changed("compress") && defaults.Compress != nil {
		*t.compress = *defaults.Compress
	}
	if !changed("verify") && defaults.Verify != nil {
		*t.verify = *defaults.Verify
	}
	if !changed("tui") && defaults.TUI != nil {
		*t.tui = *defaults.TUI
	}
	if !changed("no-delta") && defaults.NoDelta != nil {
		*t.noDelta = *defaults.NoDelta
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
