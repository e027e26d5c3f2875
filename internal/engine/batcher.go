package engine

import "time"

// BatchConfig bounds how many small files ride in one dispatch unit.
type BatchConfig struct {
	MaxBytes  int64         // byte budget per batch
	MaxWait   time.Duration // flush a partial batch after this long
	SizeLimit int64         // largest single file eligible for batching
	MaxCount  int           // file count per batch
}

// DefaultBatchConfig returns the stock limits: 100 files or 4 MiB per
// batch, 64 KiB per file, 50 ms linger.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxCount:  100,
		MaxBytes:  4 << 20,
		MaxWait:   50 * time.Millisecond,
		SizeLimit: 64 << 10,
	}
}

// batcher accumulates small whole-file copies into batches. Directory,
// symlink and delta tasks never batch; they carry ordering or per-task
// state that batching would obscure.
type batcher struct {
	pending  []SyncTask
	cfg      BatchConfig
	curBytes int64
}

func newBatcher(cfg BatchConfig) *batcher {
	return &batcher{
		cfg:     cfg,
		pending: make([]SyncTask, 0, cfg.MaxCount),
	}
}

// add accepts task into the current batch, or reports false when the task
// must be dispatched on its own.
func (b *batcher) add(task SyncTask) bool {
	switch {
	case task.Kind != TaskCopy:
		return false
	case task.Size < 0 || task.Size > b.cfg.SizeLimit:
		return false
	case len(b.pending) > 0 && b.curBytes+task.Size > b.cfg.MaxBytes:
		// Would overflow the byte budget; flush what we have first.
		return false
	}
	b.pending = append(b.pending, task)
	b.curBytes += task.Size
	return true
}

// ready reports whether the batch hit its count or byte limit.
func (b *batcher) ready() bool {
	return len(b.pending) >= b.cfg.MaxCount || b.curBytes >= b.cfg.MaxBytes
}

func (b *batcher) len() int {
	return len(b.pending)
}

// flush hands the accumulated batch to the caller and starts a fresh one.
func (b *batcher) flush() []SyncTask {
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = make([]SyncTask, 0, b.cfg.MaxCount)
	b.curBytes = 0
	return batch
}
