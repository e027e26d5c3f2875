package meta

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		input   string
		want    Flags
		wantErr bool
	}{
		{input: "DAT", want: Flags{Data: true, Attributes: true, Timestamps: true}},
		{input: "dat", want: Flags{Data: true, Attributes: true, Timestamps: true}},
		{input: "DATSOU", want: AllFlags()},
		{input: "D", want: Flags{Data: true}},
		{input: "DO", want: Flags{Data: true, Owner: true}},
		{input: "AT", wantErr: true}, // missing D
		{input: "", wantErr: true},
		{input: "DX", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFlags(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "DAT", DefaultFlags().String())
	assert.Equal(t, "DATSOU", AllFlags().String())
	assert.Equal(t, "D", Flags{Data: true}.String())
}

func TestApplyFd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	require.NoError(t, err)
	defer f.Close()

	mtime := time.Date(2020, 6, 15, 12, 0, 0, 123456000, time.UTC)
	src := Source{
		Mode:    0o754,
		ModTime: mtime,
		AccTime: mtime,
	}

	a := NewApplier(DefaultFlags())
	require.NoError(t, a.ApplyFd(f, src))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o754), fi.Mode().Perm())
	assert.True(t, fi.ModTime().Equal(mtime), "got %v want %v", fi.ModTime(), mtime)
}

func TestApplyFdSecurityMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	require.NoError(t, err)
	defer f.Close()

	flags, err := ParseFlags("DATS")
	require.NoError(t, err)

	src := Source{Mode: 0o755 | os.ModeSetgid, ModTime: time.Now(), AccTime: time.Now()}
	require.NoError(t, NewApplier(flags).ApplyFd(f, src))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), fi.Mode().Perm())
	assert.NotZero(t, fi.Mode()&os.ModeSetgid)
}

func TestApplyFdDataOnlyLeavesMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	require.NoError(t, err)
	defer f.Close()

	flags, err := ParseFlags("D")
	require.NoError(t, err)

	src := Source{Mode: 0o777, ModTime: time.Now(), AccTime: time.Now()}
	require.NoError(t, NewApplier(flags).ApplyFd(f, src))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestApplyPathDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0700))

	mtime := time.Date(2019, 1, 2, 3, 4, 5, 0, time.UTC)
	src := Source{Mode: os.ModeDir | 0o755, ModTime: mtime, AccTime: mtime}

	a := NewApplier(DefaultFlags())
	require.NoError(t, a.ApplyPath(sub, src))

	fi, err := os.Stat(sub)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), fi.Mode().Perm())
	assert.True(t, fi.ModTime().Equal(mtime))
}

func TestApplySymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	mtime := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	src := Source{Mode: os.ModeSymlink | 0o777, ModTime: mtime, AccTime: mtime}

	a := NewApplier(AllFlags())
	require.NoError(t, a.ApplySymlink(link, src))

	fi, err := os.Lstat(link)
	require.NoError(t, err)
	assert.True(t, fi.ModTime().Equal(mtime))

	// The target's own times must be untouched.
	tfi, err := os.Stat(target)
	require.NoError(t, err)
	assert.False(t, tfi.ModTime().Equal(mtime))
}
