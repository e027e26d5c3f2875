package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/bamsammich/ditto/internal/delta"
	"github.com/bamsammich/ditto/internal/event"
	"github.com/bamsammich/ditto/internal/meta"
	"github.com/bamsammich/ditto/internal/platform"
	"github.com/bamsammich/ditto/internal/stats"
)

// PoolConfig controls worker pool behavior.
type PoolConfig struct {
	NumWorkers  int
	WorkerLimit *atomic.Int32 // live worker ceiling; nil means NumWorkers
	Meta        meta.Flags
	Retry       RetryPolicy
	Clock       clockwork.Clock  // nil uses wall time
	BlockSize   int              // delta block size; 0 picks one per file
	Compressor  delta.Compressor // nil sends literals uncompressed
	Limiter     *rate.Limiter    // nil means unthrottled
	Stats       *stats.Collector
	Events      chan<- event.Event
	Move        bool
	DryRun      bool
	UseIOURing  bool
}

// workItem is one unit on the pool queue: a single task, or a batch of
// small whole-file copies dispatched together.
type workItem struct {
	batch []SyncTask
	task  SyncTask // used when batch is nil
}

// WorkerPool executes sync tasks with bounded parallelism. Directory tasks
// open gates that descendant tasks wait on, and a striped lock table keeps
// two workers off the same destination path.
type WorkerPool struct {
	cfg     PoolConfig
	applier *meta.Applier
	retry   *RetryController
	gates   *dirGates
	locks   *pathLocks
	tmp     *tmpRegistry
	iouring *platform.IOURingCopier
}

// NewWorkerPool creates a pool. With UseIOURing set it probes the kernel
// and falls back to the default copy path when the ring is unavailable.
func NewWorkerPool(cfg PoolConfig) (*WorkerPool, error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	wp := &WorkerPool{
		cfg:     cfg,
		applier: meta.NewApplier(cfg.Meta),
		retry:   NewRetryController(cfg.Retry, cfg.Clock),
		gates:   newDirGates(),
		locks:   newPathLocks(),
		tmp:     newTmpRegistry(),
	}
	if cfg.UseIOURing {
		copier, err := platform.NewIOURingCopier(64)
		if err != nil {
			return nil, fmt.Errorf("init io_uring: %w", err)
		}
		wp.iouring = copier // nil when the kernel is too old
	}
	return wp, nil
}

// Run starts workers that consume items until the channel closes or the
// context is cancelled. Per-task failures flow to errs; Run itself only
// returns when all workers have stopped.
func (wp *WorkerPool) Run(ctx context.Context, items <-chan workItem, errs chan<- error) {
	// With a live limit, items flow through an unbuffered relay so a parked
	// worker never holds one; the drained channel releases parked workers
	// once every queued item has been handed off.
	queue := items
	var drained chan struct{}
	if wp.cfg.WorkerLimit != nil {
		inner := make(chan workItem)
		drained = make(chan struct{})
		go func() {
			defer close(inner)
			defer close(drained)
			for item := range items {
				select {
				case inner <- item:
				case <-ctx.Done():
					return
				}
			}
		}()
		queue = inner
	}

	var wg sync.WaitGroup
	for id := range wp.cfg.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if !wp.waitForSlot(ctx, id, drained) {
					return
				}
				select {
				case <-ctx.Done():
					return
				case item, ok := <-queue:
					if !ok {
						return
					}
					wp.processItem(ctx, id, item, errs)
				}
			}
		}()
	}
	wg.Wait()
}

// waitForSlot parks a worker whose ID sits at or above the live limit.
// Parked workers wake when the limit rises, the queue drains, or the run
// is cancelled. Returns false when there is nothing left to do.
func (wp *WorkerPool) waitForSlot(ctx context.Context, workerID int, drained <-chan struct{}) bool {
	if wp.cfg.WorkerLimit == nil {
		return true
	}
	for int32(workerID) >= wp.cfg.WorkerLimit.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-drained:
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return true
}

// Close removes any temp files still registered and releases the io_uring.
func (wp *WorkerPool) Close() {
	wp.tmp.cleanup()
	if wp.iouring != nil {
		wp.iouring.Close()
	}
}

func (wp *WorkerPool) processItem(ctx context.Context, workerID int, item workItem, errs chan<- error) {
	if item.batch != nil {
		for _, task := range item.batch {
			select {
			case <-ctx.Done():
				return
			default:
			}
			wp.runTask(ctx, workerID, task, errs)
		}
		return
	}
	wp.runTask(ctx, workerID, item.task, errs)
}

// runTask drives one task through the retry controller and reports its
// final outcome. A directory task's gate opens exactly once, with the
// final error, whether or not retries were spent on it.
func (wp *WorkerPool) runTask(ctx context.Context, workerID int, task SyncTask, errs chan<- error) {
	onRetry := func(attempt int, err error) {
		wp.cfg.Stats.AddRetries(1)
		wp.emit(event.Event{
			Type:     event.FileRetrying,
			Path:     task.RelPath,
			WorkerID: workerID,
			Attempt:  attempt,
			Error:    err,
		})
	}

	out := wp.retry.Do(ctx, onRetry, func() error {
		return wp.execute(ctx, workerID, task)
	})

	if task.Kind == TaskDir {
		wp.gates.open(task.RelPath, out.Err)
	}

	if out.Err == nil || Classify(out.Err) == Cancelled {
		return
	}
	wp.cfg.Stats.AddFilesFailed(1)
	wp.emit(event.Event{Type: event.FileFailed, Path: task.RelPath, WorkerID: workerID, Error: out.Err})
	select {
	case errs <- fmt.Errorf("%s %s: %w", task.Kind, task.RelPath, out.Err):
	default:
	}
}

func (wp *WorkerPool) execute(ctx context.Context, workerID int, task SyncTask) error {
	// A task runs only after the directory task above it has finished;
	// the gate also fails descendants fast when the parent broke.
	if err := wp.gates.wait(ctx, task.RelPath); err != nil {
		return err
	}

	unlock := wp.locks.Lock(task.DstPath)
	defer unlock()

	if wp.cfg.DryRun {
		wp.report(workerID, task)
		return nil
	}

	switch task.Kind {
	case TaskDir:
		return wp.createDirectory(workerID, task)
	case TaskSymlink:
		return wp.createSymlink(workerID, task)
	case TaskCopy:
		return wp.copyFile(ctx, workerID, task)
	case TaskDelta:
		return wp.deltaFile(ctx, workerID, task)
	default:
		return fmt.Errorf("unexpected task kind %q for %s", task.Kind, task.RelPath)
	}
}

// report emits what a task would have done. Dry runs and list mode count
// work as if it succeeded so the summary shows the full plan.
func (wp *WorkerPool) report(workerID int, task SyncTask) {
	switch task.Kind {
	case TaskDir:
		wp.cfg.Stats.AddDirsCreated(1)
		wp.emit(event.Event{Type: event.DirCreated, Path: task.RelPath, WorkerID: workerID})
	case TaskSymlink:
		wp.cfg.Stats.AddSymlinksCreated(1)
		wp.emit(event.Event{Type: event.SymlinkCreated, Path: task.RelPath, WorkerID: workerID})
	case TaskCopy, TaskDelta:
		wp.cfg.Stats.AddFilesCopied(1)
		wp.cfg.Stats.AddBytesCopied(task.Size)
		wp.emit(event.Event{
			Type:     event.FileCompleted,
			Path:     task.RelPath,
			Size:     task.Size,
			WorkerID: workerID,
			Delta:    task.Kind == TaskDelta,
		})
	}
}

// createDirectory makes the directory so descendants can proceed. Mode,
// times and ownership land in the engine's deferred pass: times would be
// clobbered by file creation, and a strict mode could lock workers out of
// a tree still being filled.
func (wp *WorkerPool) createDirectory(workerID int, task SyncTask) error {
	if task.Replace {
		if err := os.Remove(task.DstPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("replace %s: %w", task.DstPath, err)
		}
	}
	perm := os.FileMode(task.Mode).Perm() | 0o700
	if err := os.MkdirAll(task.DstPath, perm); err != nil {
		return fmt.Errorf("mkdir %s: %w", task.DstPath, err)
	}
	wp.cfg.Stats.AddDirsCreated(1)
	wp.emit(event.Event{Type: event.DirCreated, Path: task.RelPath, WorkerID: workerID})
	return nil
}

func (wp *WorkerPool) createSymlink(workerID int, task SyncTask) error {
	// Symlink creation fails on EEXIST, so clear whatever is there.
	if task.Replace {
		if err := os.RemoveAll(task.DstPath); err != nil {
			return fmt.Errorf("replace %s: %w", task.DstPath, err)
		}
	} else if err := os.Remove(task.DstPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", task.DstPath, err)
	}

	if err := os.Symlink(task.LinkTarget, task.DstPath); err != nil {
		return fmt.Errorf("symlink %s -> %s: %w", task.DstPath, task.LinkTarget, err)
	}
	if err := wp.applier.ApplySymlink(task.DstPath, task.metaSource()); err != nil {
		return err
	}

	wp.cfg.Stats.AddSymlinksCreated(1)
	wp.emit(event.Event{Type: event.SymlinkCreated, Path: task.RelPath, WorkerID: workerID})
	return wp.moveSource(task)
}

// copyFile replicates a whole file through a temp file in the destination
// directory: write, metadata, fsync, atomic rename.
func (wp *WorkerPool) copyFile(ctx context.Context, workerID int, task SyncTask) error {
	wp.emit(event.Event{Type: event.FileStarted, Path: task.RelPath, Size: task.Size, WorkerID: workerID})

	tmpPath, tmpFd, err := wp.createTmp(task)
	if err != nil {
		return err
	}
	defer func() {
		wp.tmp.deregister(tmpPath)
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	var written int64
	if task.Size > 0 {
		written, err = wp.copyData(ctx, task, tmpFd)
		if err != nil {
			tmpFd.Close()
			return fmt.Errorf("copy %s: %w", task.Path, err)
		}
	}

	if err := wp.finishFile(task, tmpFd, tmpPath); err != nil {
		return err
	}

	wp.cfg.Stats.AddFilesCopied(1)
	wp.cfg.Stats.AddBytesCopied(written)
	wp.emit(event.Event{Type: event.FileCompleted, Path: task.RelPath, Size: written, WorkerID: workerID})
	return wp.moveSource(task)
}

// deltaFile rebuilds the destination from blocks it already has plus
// literal runs from the source. An unusable basis or a plan that fails
// its coverage check falls back to a whole-file copy.
func (wp *WorkerPool) deltaFile(ctx context.Context, workerID int, task SyncTask) error {
	err := wp.tryDelta(ctx, workerID, task)
	if err == nil {
		return nil
	}
	if errors.Is(err, delta.ErrPlanMismatch) || errors.Is(err, errBasisUnusable) {
		whole := task
		whole.Kind = TaskCopy
		return wp.copyFile(ctx, workerID, whole)
	}
	return err
}

// errBasisUnusable marks basis-side failures that a whole-file copy
// recovers from. Source-side failures are real errors and surface.
var errBasisUnusable = errors.New("basis unusable")

func (wp *WorkerPool) tryDelta(ctx context.Context, workerID int, task SyncTask) error {
	wp.emit(event.Event{Type: event.FileStarted, Path: task.RelPath, Size: task.Size, WorkerID: workerID})

	basis, err := os.Open(task.BasePath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", errBasisUnusable, task.BasePath, err)
	}
	defer basis.Close()

	fi, err := basis.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", errBasisUnusable, task.BasePath, err)
	}
	sig, err := delta.ComputeSignature(basis, fi.Size(), wp.cfg.BlockSize)
	if err != nil {
		return fmt.Errorf("%w: signature %s: %v", errBasisUnusable, task.BasePath, err)
	}

	src, err := os.Open(task.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", task.Path, err)
	}
	data, err := io.ReadAll(limitReader(ctx, src, wp.cfg.Limiter))
	src.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", task.Path, err)
	}

	plan, err := delta.BuildPlan(data, sig)
	if err != nil {
		return err
	}
	plan.CompressLiterals(wp.cfg.Compressor)

	tmpPath, tmpFd, err := wp.createTmp(task)
	if err != nil {
		return err
	}
	defer func() {
		wp.tmp.deregister(tmpPath)
		_ = os.Remove(tmpPath)
	}()

	written, err := delta.Apply(basis, plan, wp.cfg.Compressor, tmpFd)
	if err != nil {
		tmpFd.Close()
		return fmt.Errorf("apply delta %s: %w", task.RelPath, err)
	}

	if err := wp.finishFile(task, tmpFd, tmpPath); err != nil {
		return err
	}

	st := plan.Stats()
	wp.cfg.Stats.AddFilesCopied(1)
	wp.cfg.Stats.AddBytesCopied(written)
	wp.cfg.Stats.AddFilesDelta(1)
	wp.cfg.Stats.AddDeltaLiteralBytes(st.LiteralBytes)
	wp.cfg.Stats.AddDeltaMatchedBytes(st.MatchedBytes)
	wp.emit(event.Event{
		Type:     event.FileCompleted,
		Path:     task.RelPath,
		Size:     written,
		WorkerID: workerID,
		Delta:    true,
		Literal:  st.LiteralBytes,
	})
	return wp.moveSource(task)
}

func (wp *WorkerPool) createTmp(task SyncTask) (string, *os.File, error) {
	dir := filepath.Dir(task.DstPath)
	base := filepath.Base(task.DstPath)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.ditto-tmp", base, uuid.New().String()[:8]))

	wp.tmp.register(tmpPath)
	fd, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, os.FileMode(task.Mode).Perm())
	if err != nil {
		wp.tmp.deregister(tmpPath)
		return "", nil, fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}
	return tmpPath, fd, nil
}

// copyData moves file bytes into the open temp file. Throttled copies take
// the buffered path; unthrottled ones use the fastest syscall available.
func (wp *WorkerPool) copyData(ctx context.Context, task SyncTask, dstFd *os.File) (int64, error) {
	if wp.cfg.Limiter != nil {
		src, err := os.Open(task.Path)
		if err != nil {
			return 0, fmt.Errorf("open %s: %w", task.Path, err)
		}
		defer src.Close()
		return io.Copy(dstFd, limitReader(ctx, src, wp.cfg.Limiter))
	}

	params := platform.CopyFileParams{DstFd: dstFd, SrcPath: task.Path, SrcSize: task.Size}
	var result platform.CopyResult
	var err error
	if wp.iouring != nil {
		result, err = wp.iouring.CopyFile(params)
	} else {
		result, err = platform.CopyFile(params)
	}
	if err != nil {
		return 0, err
	}
	return result.BytesWritten, nil
}

// finishFile applies metadata to the fd, syncs, and renames into place.
// Metadata lands before the rename so the final path never exists with
// wrong mode or ownership.
func (wp *WorkerPool) finishFile(task SyncTask, tmpFd *os.File, tmpPath string) error {
	if err := wp.applier.ApplyFd(tmpFd, task.metaSource()); err != nil {
		tmpFd.Close()
		return fmt.Errorf("metadata %s: %w", task.DstPath, err)
	}
	if err := tmpFd.Sync(); err != nil {
		tmpFd.Close()
		return fmt.Errorf("fsync %s: %w", tmpPath, err)
	}
	if err := tmpFd.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}

	if task.Replace {
		// The destination holds a directory or symlink; rename cannot
		// replace a non-empty directory.
		if err := os.RemoveAll(task.DstPath); err != nil {
			return fmt.Errorf("replace %s: %w", task.DstPath, err)
		}
	}
	if err := os.Rename(tmpPath, task.DstPath); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, task.DstPath, err)
	}
	return nil
}

// moveSource removes the source node after a successful transfer when move
// mode is on. Emptied source directories are pruned at the end of the run.
func (wp *WorkerPool) moveSource(task SyncTask) error {
	if !wp.cfg.Move {
		return nil
	}
	if err := os.Remove(task.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove source %s: %w", task.Path, err)
	}
	wp.cfg.Stats.AddFilesMoved(1)
	wp.emit(event.Event{Type: event.FileMoved, Path: task.RelPath})
	return nil
}

func (wp *WorkerPool) emit(e event.Event) {
	emitEvent(wp.cfg.Events, e)
}
