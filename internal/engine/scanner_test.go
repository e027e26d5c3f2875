package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bamsammich/ditto/internal/filter"
)

// runScan drains a scanner and returns entries in arrival order plus any
// scan errors.
func runScan(t *testing.T, cfg ScannerConfig) ([]Entry, []error) {
	t.Helper()

	scanner := NewScanner(cfg)
	entries, errs := scanner.Scan(context.Background())

	var entryList []Entry
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			entryList = append(entryList, e)
		}
	}()

	var errList []error
	for err := range errs {
		errList = append(errList, err)
	}
	<-done

	return entryList, errList
}

func TestScannerFlatDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("A"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.txt"), []byte("BB"), 0644))

	entryList, errList := runScan(t, ScannerConfig{Root: src, Workers: 2})
	require.Empty(t, errList)
	require.Len(t, entryList, 2)

	byPath := make(map[string]Entry)
	for _, e := range entryList {
		byPath[e.RelPath] = e
	}

	a := byPath["a.txt"]
	assert.Equal(t, File, a.Type)
	assert.Equal(t, int64(1), a.Size)
	assert.Equal(t, filepath.Join(src, "a.txt"), a.Path)
	assert.False(t, a.ModTime.IsZero())

	b := byPath["b.txt"]
	assert.Equal(t, int64(2), b.Size)
}

func TestScannerNestedTree(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub", "deep"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "root.txt"), []byte("r"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "mid.txt"), []byte("m"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "deep", "leaf.txt"), []byte("l"), 0644))

	entryList, errList := runScan(t, ScannerConfig{Root: src, Workers: 4})
	require.Empty(t, errList)

	rels := make(map[string]EntryType)
	for _, e := range entryList {
		rels[e.RelPath] = e.Type
	}
	assert.Equal(t, map[string]EntryType{
		"root.txt":          File,
		"sub":               Dir,
		"sub/mid.txt":       File,
		"sub/deep":          Dir,
		"sub/deep/leaf.txt": File,
	}, rels)
}

func TestScannerDirPrecedesDescendants(t *testing.T) {
	src := t.TempDir()
	// A wide and deep tree gives parallel workers room to misorder if the
	// ordering guarantee does not hold.
	for i := range 8 {
		dir := filepath.Join(src, fmt.Sprintf("d%d", i), "nested")
		require.NoError(t, os.MkdirAll(dir, 0755))
		for j := range 5 {
			name := fmt.Sprintf("f%d.txt", j)
			require.NoError(t, os.WriteFile(filepath.Join(src, fmt.Sprintf("d%d", i), name), []byte("x"), 0644))
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("y"), 0644))
		}
	}

	entryList, errList := runScan(t, ScannerConfig{Root: src, Workers: 8})
	require.Empty(t, errList)

	seenDirs := map[string]bool{}
	for _, e := range entryList {
		if dir := path.Dir(e.RelPath); dir != "." {
			assert.True(t, seenDirs[dir],
				"entry %s arrived before its directory %s", e.RelPath, dir)
		}
		if e.Type == Dir {
			seenDirs[e.RelPath] = true
		}
	}
}

func TestScannerSymlink(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "target.txt"), []byte("t"), 0644))
	require.NoError(t, os.Symlink("target.txt", filepath.Join(src, "link.txt")))

	entryList, errList := runScan(t, ScannerConfig{Root: src, Workers: 1})
	require.Empty(t, errList)

	var link *Entry
	for i := range entryList {
		if entryList[i].RelPath == "link.txt" {
			link = &entryList[i]
		}
	}
	require.NotNil(t, link)
	assert.Equal(t, Symlink, link.Type)
	assert.Equal(t, "target.txt", link.LinkTarget)
}

func TestScannerSkipsSpecialFiles(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "regular.txt"), []byte("r"), 0644))
	require.NoError(t, unix.Mkfifo(filepath.Join(src, "pipe"), 0644))

	entryList, errList := runScan(t, ScannerConfig{Root: src, Workers: 1})
	require.Empty(t, errList)
	require.Len(t, entryList, 1)
	assert.Equal(t, "regular.txt", entryList[0].RelPath)
}

func TestScannerFilter(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "cache"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "keep.txt"), []byte("k"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "skip.log"), []byte("s"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "cache", "blob"), []byte("b"), 0644))

	f := filter.NewChain()
	require.NoError(t, f.AddExclude("*.log"))
	require.NoError(t, f.AddExcludeDir("cache"))

	entryList, errList := runScan(t, ScannerConfig{Root: src, Workers: 2, Filter: f})
	require.Empty(t, errList)

	rels := make([]string, 0, len(entryList))
	for _, e := range entryList {
		rels = append(rels, e.RelPath)
	}
	assert.Equal(t, []string{"keep.txt"}, rels,
		"excluded file and pruned directory subtree must not appear")
}

func TestScannerPreservesMode(t *testing.T) {
	src := t.TempDir()
	scriptPath := filepath.Join(src, "exec.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\n"), 0751))

	entryList, errList := runScan(t, ScannerConfig{Root: src, Workers: 1})
	require.Empty(t, errList)
	require.Len(t, entryList, 1)

	assert.Equal(t, os.FileMode(0751), os.FileMode(entryList[0].Mode).Perm())
	assert.Equal(t, uint32(os.Getuid()), entryList[0].UID)
	assert.Equal(t, uint32(os.Getgid()), entryList[0].GID)
}

func TestScannerMissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	entryList, errList := runScan(t, ScannerConfig{Root: missing, Workers: 1})
	assert.Empty(t, entryList)
	require.NotEmpty(t, errList, "scanning a missing root reports an error")
}

func TestCollect(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("aa"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("b"), 0644))

	got, err := Collect(context.Background(), ScannerConfig{Root: src, Workers: 2})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got["a.txt"].Size)
	assert.Equal(t, Dir, got["sub"].Type)
	assert.Equal(t, int64(1), got["sub/b.txt"].Size)
}

func TestCollectMissingRoot(t *testing.T) {
	got, err := Collect(context.Background(), ScannerConfig{
		Root: filepath.Join(t.TempDir(), "absent"),
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}
