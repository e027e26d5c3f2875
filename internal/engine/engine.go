package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/bamsammich/ditto/internal/compress"
	"github.com/bamsammich/ditto/internal/delta"
	"github.com/bamsammich/ditto/internal/event"
	"github.com/bamsammich/ditto/internal/filter"
	"github.com/bamsammich/ditto/internal/meta"
	"github.com/bamsammich/ditto/internal/platform"
	"github.com/bamsammich/ditto/internal/stats"
)

// Config describes a synchronization run.
type Config struct {
	Src string
	Dst string

	Workers     int // 0 picks the platform default
	ScanWorkers int // 0 picks the scanner default

	Mirror bool // delete destination entries absent from the source
	Move   bool // remove source files after each successful transfer
	DryRun bool // report the plan without touching either tree

	Checksum  bool // compare content hashes instead of size+mtime
	NoDelta   bool // always copy whole files
	BlockSize int  // delta block size; 0 picks one per file
	Compress  bool // zstd-compress delta literals
	Verify    bool // re-hash both trees after the sync

	BWLimit     int64         // aggregate bytes/sec across workers; 0 is unlimited
	WorkerLimit *atomic.Int32 // live worker ceiling for interactive throttling
	UseIOURing  bool

	CopyFlags meta.Flags // zero value means DAT
	Retry     RetryPolicy
	Clock     clockwork.Clock // nil uses wall time
	Filter    *filter.Chain
	Platform  platform.Info // zero value probes the host

	Stats  *stats.Collector // nil allocates a private one
	Events chan<- event.Event
}

// Result is the outcome of a run.
type Result struct {
	Stats stats.Snapshot
	Err   error
}

// maxReportedErrors caps how many failures the run error enumerates; the
// rest are summarized by count.
const maxReportedErrors = 16

// Run executes a synchronization, blocking until complete. Per-file
// failures do not abort the run; they surface in Result.Err and the stats.
func Run(ctx context.Context, cfg Config) Result {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if err := validate(&cfg); err != nil {
		return Result{Stats: cfg.Stats.Snapshot(), Err: err}
	}
	return runSync(ctx, cfg)
}

func validate(cfg *Config) error {
	src, err := filepath.Abs(cfg.Src)
	if err != nil {
		return WithClass(ConfigError, fmt.Errorf("source path: %w", err))
	}
	dst, err := filepath.Abs(cfg.Dst)
	if err != nil {
		return WithClass(ConfigError, fmt.Errorf("destination path: %w", err))
	}
	cfg.Src, cfg.Dst = src, dst

	info, err := os.Lstat(cfg.Src)
	if err != nil {
		return WithClass(ConfigError, fmt.Errorf("source: %w", err))
	}
	if !info.IsDir() {
		return WithClass(ConfigError, fmt.Errorf("source %s is not a directory", cfg.Src))
	}
	if cfg.Src == cfg.Dst {
		return WithClass(ConfigError, fmt.Errorf("source and destination are the same: %s", cfg.Src))
	}
	if within(cfg.Src, cfg.Dst) {
		return WithClass(ConfigError, fmt.Errorf("destination %s is inside source %s", cfg.Dst, cfg.Src))
	}
	if within(cfg.Dst, cfg.Src) {
		return WithClass(ConfigError, fmt.Errorf("source %s is inside destination %s", cfg.Src, cfg.Dst))
	}

	host := cfg.Platform
	if host == (platform.Info{}) {
		host = platform.Detect()
	}
	if cfg.Workers < 0 {
		return WithClass(ConfigError, fmt.Errorf("worker count must be positive, got %d", cfg.Workers))
	}
	if budget := platform.WorkerCap(host); cfg.Workers > budget {
		return WithClass(ConfigError, fmt.Errorf("%d workers exceeds the descriptor budget (max %d)", cfg.Workers, budget))
	}
	if cfg.Workers == 0 {
		cfg.Workers = platform.MaxWorkers(host)
	}

	if cfg.CopyFlags == (meta.Flags{}) {
		cfg.CopyFlags = meta.DefaultFlags()
	}
	if !cfg.CopyFlags.Data {
		return WithClass(ConfigError, fmt.Errorf("copy flags %s lack D (data)", cfg.CopyFlags))
	}
	if cfg.BlockSize < 0 {
		return WithClass(ConfigError, fmt.Errorf("block size must be positive, got %d", cfg.BlockSize))
	}
	if cfg.BWLimit < 0 {
		return WithClass(ConfigError, fmt.Errorf("bandwidth limit must be positive, got %d", cfg.BWLimit))
	}
	if cfg.Verify && cfg.Move {
		return WithClass(ConfigError, errors.New("verify needs the source intact; it cannot combine with move"))
	}
	return nil
}

// within reports whether child is parent or lives under it.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

//nolint:revive // cognitive-complexity: the pipeline reads top to bottom
func runSync(ctx context.Context, cfg Config) Result {
	collector := cfg.Stats

	if !cfg.DryRun {
		if err := os.MkdirAll(cfg.Dst, 0o755); err != nil {
			return Result{Stats: collector.Snapshot(), Err: WithClass(ConfigError, fmt.Errorf("create destination: %w", err))}
		}
	}

	emitEvent(cfg.Events, event.Event{Type: event.ScanStarted})

	// Snapshot the destination up front; the comparator and the delete
	// pass both work off this one picture.
	dstSnap, err := Collect(ctx, ScannerConfig{Root: cfg.Dst, Workers: cfg.ScanWorkers})
	if err != nil {
		return Result{Stats: collector.Snapshot(), Err: fmt.Errorf("scan destination: %w", err)}
	}

	var compressor delta.Compressor
	if cfg.Compress {
		provider, err := compress.NewProvider()
		if err != nil {
			return Result{Stats: collector.Snapshot(), Err: err}
		}
		defer provider.Close()
		compressor = provider
	}

	var limiter *rate.Limiter
	if cfg.BWLimit > 0 {
		limiter = NewBWLimiter(cfg.BWLimit)
	}

	pool, err := NewWorkerPool(PoolConfig{
		NumWorkers:  cfg.Workers,
		WorkerLimit: cfg.WorkerLimit,
		Meta:        cfg.CopyFlags,
		Retry:       cfg.Retry,
		Clock:       cfg.Clock,
		BlockSize:   cfg.BlockSize,
		Compressor:  compressor,
		Limiter:     limiter,
		Stats:       collector,
		Events:      cfg.Events,
		Move:        cfg.Move,
		DryRun:      cfg.DryRun,
		UseIOURing:  cfg.UseIOURing,
	})
	if err != nil {
		return Result{Stats: collector.Snapshot(), Err: err}
	}
	defer pool.Close()

	comparator := NewComparator(
		CompareConfig{Checksum: cfg.Checksum, NoDelta: cfg.NoDelta},
		cfg.Dst, dstSnap, collector,
	)

	// Failures stream in from the scanner and the workers; keep the first
	// few and count the rest.
	errs := make(chan error, 256)
	var errList []error
	var errCount int
	errDone := make(chan struct{})
	go func() {
		defer close(errDone)
		for err := range errs {
			errCount++
			if len(errList) < maxReportedErrors {
				errList = append(errList, err)
			}
		}
	}()

	scanner := NewScanner(ScannerConfig{Root: cfg.Src, Workers: cfg.ScanWorkers, Filter: cfg.Filter})
	entries, scanErrs := scanner.Scan(ctx)

	fwdDone := make(chan struct{})
	go func() {
		defer close(fwdDone)
		for err := range scanErrs {
			select {
			case errs <- fmt.Errorf("scan: %w", err):
			default:
			}
		}
	}()

	depth := cfg.Workers * 4
	if depth < 64 {
		depth = 64
	}
	items := make(chan workItem, depth)

	srcSet := make(map[string]struct{}, len(dstSnap))
	var dirTasks []SyncTask

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		defer close(items)
		dispatch(ctx, cfg, pool, comparator, entries, items, srcSet, &dirTasks)
	}()

	pool.Run(ctx, items, errs)
	<-dispatchDone
	<-fwdDone
	close(errs)
	<-errDone

	addErr := func(err error) {
		errCount++
		if len(errList) < maxReportedErrors {
			errList = append(errList, err)
		}
	}

	if ctx.Err() == nil {
		finishSync(ctx, cfg, collector, srcSet, dstSnap, dirTasks, addErr)
	}

	var runErr error
	switch {
	case ctx.Err() != nil:
		runErr = ctx.Err()
	case len(errList) > 0:
		runErr = errList[0]
		if errCount > 1 {
			runErr = fmt.Errorf("%w (and %d more errors)", runErr, errCount-1)
		}
	}

	return Result{Stats: collector.Snapshot(), Err: runErr}
}

// dispatch consumes scanned entries, decides tasks, and feeds the pool.
// Small copies accumulate into batches that flush on size, count, or a
// timer tick; everything else dispatches immediately. Directory gates are
// registered here, before the dir task can reach a worker, so descendants
// always find them.
func dispatch(
	ctx context.Context,
	cfg Config,
	pool *WorkerPool,
	comparator *Comparator,
	entries <-chan Entry,
	items chan<- workItem,
	srcSet map[string]struct{},
	dirTasks *[]SyncTask,
) {
	collector := cfg.Stats
	batchCfg := DefaultBatchConfig()
	b := newBatcher(batchCfg)
	ticker := time.NewTicker(batchCfg.MaxWait)
	defer ticker.Stop()

	send := func(it workItem) bool {
		select {
		case items <- it:
			return true
		case <-ctx.Done():
			return false
		}
	}
	flush := func() bool {
		if batch := b.flush(); batch != nil {
			return send(workItem{batch: batch})
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !flush() {
				return
			}

		case e, ok := <-entries:
			if !ok {
				flush()
				snap := collector.Snapshot()
				emitEvent(cfg.Events, event.Event{
					Type:      event.ScanComplete,
					Total:     snap.FilesTotal,
					TotalSize: snap.BytesTotal,
				})
				return
			}

			collector.AddFilesScanned(1)
			srcSet[e.RelPath] = struct{}{}

			task, ok := comparator.Decide(e)
			if !ok {
				emitEvent(cfg.Events, event.Event{Type: event.FileSkipped, Path: e.RelPath, Size: e.Size})
				continue
			}

			switch task.Kind {
			case TaskCopy, TaskDelta:
				collector.AddFilesTotal(1)
				collector.AddBytesTotal(task.Size)
			case TaskDir:
				pool.gates.register(task.RelPath)
				*dirTasks = append(*dirTasks, task)
				if !send(workItem{task: task}) {
					return
				}
				continue
			}

			if !b.add(task) {
				if !send(workItem{task: task}) {
					return
				}
				continue
			}
			if b.ready() && !flush() {
				return
			}
		}
	}
}

// finishSync runs the passes that need a quiet tree: directory metadata,
// the mirror delete, move-mode pruning, and verification.
func finishSync(
	ctx context.Context,
	cfg Config,
	collector *stats.Collector,
	srcSet map[string]struct{},
	dstSnap map[string]Entry,
	dirTasks []SyncTask,
	addErr func(error),
) {
	if !cfg.DryRun {
		applyDirMetadata(cfg, dirTasks, addErr)
	}

	if cfg.Mirror {
		_, err := DeleteExtraneous(ctx, DeleteConfig{
			Events:  cfg.Events,
			Filter:  cfg.Filter,
			Stats:   collector,
			DstRoot: cfg.Dst,
			DryRun:  cfg.DryRun,
		}, srcSet, dstSnap)
		if err != nil {
			addErr(err)
		}
	}

	if cfg.Move && !cfg.DryRun {
		pruneEmptyDirs(cfg.Src)
	}

	if cfg.Verify && !cfg.DryRun {
		vr := Verify(ctx, VerifyConfig{
			SrcRoot: cfg.Src,
			DstRoot: cfg.Dst,
			Workers: cfg.Workers,
			Filter:  cfg.Filter,
			Events:  cfg.Events,
			Stats:   collector,
		})
		if vr.Failed > 0 {
			addErr(WithClass(Verification,
				fmt.Errorf("%d of %d files failed verification", vr.Failed, vr.Failed+vr.Verified)))
		}
	}
}

// applyDirMetadata fixes directory modes, times and ownership after the
// tree is quiet. Creating files dirties parent mtimes and a restrictive
// mode applied early could lock workers out, so directories are created
// permissive and settled here, deepest-first, the destination root last.
func applyDirMetadata(cfg Config, dirTasks []SyncTask, addErr func(error)) {
	applier := meta.NewApplier(cfg.CopyFlags)

	sort.Slice(dirTasks, func(i, j int) bool { return dirTasks[i].RelPath > dirTasks[j].RelPath })
	for _, t := range dirTasks {
		if err := applier.ApplyPath(t.DstPath, t.metaSource()); err != nil {
			addErr(fmt.Errorf("dir metadata %s: %w", t.RelPath, err))
		}
	}

	info, err := os.Lstat(cfg.Src)
	if err != nil {
		return
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	rootSrc := meta.Source{
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
		AccTime: atimeFromStat(st),
		UID:     st.Uid,
		GID:     st.Gid,
		Path:    cfg.Src,
	}
	if err := applier.ApplyPath(cfg.Dst, rootSrc); err != nil {
		addErr(fmt.Errorf("dir metadata %s: %w", cfg.Dst, err))
	}
}

// pruneEmptyDirs removes source directories emptied by move mode,
// deepest-first. Remove fails on non-empty directories, so anything still
// holding excluded or failed files stays put.
func pruneEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		_ = os.Remove(dir)
	}
}
