package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func copyTask(rel string, size int64) SyncTask {
	return SyncTask{
		Entry: Entry{RelPath: rel, Size: size, Type: File},
		Kind:  TaskCopy,
	}
}

func TestBatcherAcceptsSmallCopies(t *testing.T) {
	b := newBatcher(DefaultBatchConfig())

	assert.True(t, b.add(copyTask("a.txt", 100)))
	assert.True(t, b.add(copyTask("b.txt", 64*1024))) // at the size limit
	assert.Equal(t, 2, b.len())
	assert.False(t, b.ready())
}

func TestBatcherRejectsBySizeAndKind(t *testing.T) {
	b := newBatcher(DefaultBatchConfig())

	assert.False(t, b.add(copyTask("big.bin", 64*1024+1)), "above the single-file limit")
	assert.False(t, b.add(copyTask("weird", -1)), "negative size")

	dir := SyncTask{Entry: Entry{RelPath: "sub", Type: Dir}, Kind: TaskDir}
	assert.False(t, b.add(dir), "directories never batch")

	link := SyncTask{Entry: Entry{RelPath: "l", Type: Symlink}, Kind: TaskSymlink}
	assert.False(t, b.add(link), "symlinks never batch")

	del := SyncTask{Entry: Entry{RelPath: "d", Size: 10, Type: File}, Kind: TaskDelta}
	assert.False(t, b.add(del), "delta transfers never batch")

	assert.Equal(t, 0, b.len())
}

func TestBatcherReadyAtMaxCount(t *testing.T) {
	cfg := DefaultBatchConfig()
	cfg.MaxCount = 3
	b := newBatcher(cfg)

	for i := range 3 {
		assert.True(t, b.add(copyTask(fmt.Sprintf("f%d", i), 10)))
	}
	assert.True(t, b.ready())

	batch := b.flush()
	assert.Len(t, batch, 3)
	assert.Equal(t, 0, b.len())
	assert.False(t, b.ready())
}

func TestBatcherReadyAtMaxBytes(t *testing.T) {
	cfg := DefaultBatchConfig()
	cfg.MaxBytes = 100
	cfg.SizeLimit = 100
	b := newBatcher(cfg)

	assert.True(t, b.add(copyTask("a", 60)))
	assert.False(t, b.ready())
	assert.True(t, b.add(copyTask("b", 40))) // exactly MaxBytes
	assert.True(t, b.ready())
}

func TestBatcherRejectsWhenBytesWouldOverflow(t *testing.T) {
	cfg := DefaultBatchConfig()
	cfg.MaxBytes = 100
	cfg.SizeLimit = 80
	b := newBatcher(cfg)

	assert.True(t, b.add(copyTask("a", 60)))
	assert.False(t, b.add(copyTask("b", 80)), "would exceed batch bytes")
	assert.Equal(t, 1, b.len(), "rejected task must not join the batch")

	// After a flush the rejected size fits again.
	b.flush()
	assert.True(t, b.add(copyTask("b", 80)))
}

func TestBatcherFlushEmpty(t *testing.T) {
	b := newBatcher(DefaultBatchConfig())
	assert.Nil(t, b.flush())
}

func TestBatcherFlushPreservesOrder(t *testing.T) {
	b := newBatcher(DefaultBatchConfig())
	for i := range 5 {
		b.add(copyTask(fmt.Sprintf("f%d", i), 1))
	}

	batch := b.flush()
	for i, task := range batch {
		assert.Equal(t, fmt.Sprintf("f%d", i), task.RelPath)
	}
}
