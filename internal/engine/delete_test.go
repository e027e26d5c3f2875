package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ditto/internal/event"
	"github.com/bamsammich/ditto/internal/filter"
	"github.com/bamsammich/ditto/internal/stats"
)

// srcSet builds the scanned-paths set DeleteExtraneous expects.
func srcSet(paths ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

// snapshotDst collects the destination tree the way the engine does before
// the copy pass.
func snapshotDst(t *testing.T, dstRoot string) map[string]Entry {
	t.Helper()
	snap, err := Collect(context.Background(), ScannerConfig{Root: dstRoot, Workers: 2})
	require.NoError(t, err)
	return snap
}

func TestDeleteExtraneousFiles(t *testing.T) {
	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "file1.txt"), []byte("1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "file2.txt"), []byte("2"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "extra.txt"), []byte("extra"), 0644))

	s := stats.NewCollector()
	deleted, err := DeleteExtraneous(context.Background(),
		DeleteConfig{DstRoot: dst, Stats: s},
		srcSet("file1.txt", "file2.txt"),
		snapshotDst(t, dst),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, int64(1), s.Snapshot().FilesDeleted)

	_, err = os.Stat(filepath.Join(dst, "extra.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst, "file1.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "file2.txt"))
	assert.NoError(t, err)
}

func TestDeleteExtraneousTree(t *testing.T) {
	dst := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "keep"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "old", "deep"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "keep", "k.txt"), []byte("k"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "old", "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "old", "deep", "b.txt"), []byte("b"), 0644))

	deleted, err := DeleteExtraneous(context.Background(),
		DeleteConfig{DstRoot: dst},
		srcSet("keep", "keep/k.txt"),
		snapshotDst(t, dst),
	)
	require.NoError(t, err)
	// a.txt, b.txt, old/deep, old — children before parents.
	assert.Equal(t, 4, deleted)

	_, err = os.Stat(filepath.Join(dst, "old"))
	assert.True(t, os.IsNotExist(err), "extraneous subtree must be fully removed")
	_, err = os.Stat(filepath.Join(dst, "keep", "k.txt"))
	assert.NoError(t, err)
}

func TestDeleteExtraneousRespectsFilter(t *testing.T) {
	dst := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "logs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "logs", "app.log"), []byte("l"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "stale.txt"), []byte("s"), 0644))

	f := filter.NewChain()
	require.NoError(t, f.AddExclude("*.log"))

	deleted, err := DeleteExtraneous(context.Background(),
		DeleteConfig{DstRoot: dst, Filter: f},
		srcSet(),
		snapshotDst(t, dst),
	)
	require.NoError(t, err)
	// stale.txt goes; app.log is excluded, and logs/ stays because the
	// excluded file keeps it non-empty.
	assert.Equal(t, 1, deleted)

	_, err = os.Stat(filepath.Join(dst, "stale.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst, "logs", "app.log"))
	assert.NoError(t, err, "excluded files must survive the delete pass")
}

func TestDeleteExtraneousDryRun(t *testing.T) {
	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "doomed.txt"), []byte("d"), 0644))

	events := make(chan event.Event, 16)
	deleted, err := DeleteExtraneous(context.Background(),
		DeleteConfig{DstRoot: dst, DryRun: true, Events: events},
		srcSet(),
		snapshotDst(t, dst),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted, "dry run reports what would be removed")

	_, err = os.Stat(filepath.Join(dst, "doomed.txt"))
	assert.NoError(t, err, "dry run must not touch the destination")

	close(events)
	var paths []string
	for ev := range events {
		if ev.Type == event.DeleteFile {
			paths = append(paths, ev.Path)
		}
	}
	assert.Equal(t, []string{"doomed.txt"}, paths)
}

func TestDeleteExtraneousAlreadyGone(t *testing.T) {
	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "ghost.txt"), []byte("g"), 0644))

	snap := snapshotDst(t, dst)
	// The file vanishes between snapshot and delete pass.
	require.NoError(t, os.Remove(filepath.Join(dst, "ghost.txt")))

	deleted, err := DeleteExtraneous(context.Background(),
		DeleteConfig{DstRoot: dst}, srcSet(), snap)
	require.NoError(t, err, "a racing removal is not an error")
	assert.Equal(t, 1, deleted)
}

func TestDeleteExtraneousCancelled(t *testing.T) {
	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "x.txt"), []byte("x"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DeleteExtraneous(ctx, DeleteConfig{DstRoot: dst}, srcSet(), snapshotDst(t, dst))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeleteExtraneousNothingToDo(t *testing.T) {
	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "same.txt"), []byte("s"), 0644))

	deleted, err := DeleteExtraneous(context.Background(),
		DeleteConfig{DstRoot: dst},
		srcSet("same.txt"),
		snapshotDst(t, dst),
	)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}
