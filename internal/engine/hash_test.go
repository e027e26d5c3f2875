package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHashFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHashFile(t *testing.T) {
	h1, err := HashFile(writeHashFixture(t, "a.txt", "hello world"))
	require.NoError(t, err)
	h2, err := HashFile(writeHashFixture(t, "b.txt", "hello world"))
	require.NoError(t, err)
	h3, err := HashFile(writeHashFixture(t, "c.txt", "different content"))
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "equal content must hash equal")
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64) // 32-byte digest, hex encoded
}

func TestHashFileEmpty(t *testing.T) {
	h, err := HashFile(writeHashFixture(t, "empty.txt", ""))
	require.NoError(t, err)
	assert.Len(t, h, 64)
}

func TestHashFileNotExist(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestFilesIdentical(t *testing.T) {
	a := writeHashFixture(t, "a.txt", "same bytes")
	b := writeHashFixture(t, "b.txt", "same bytes")
	c := writeHashFixture(t, "c.txt", "SAME BYTES")

	same, err := FilesIdentical(a, b)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = FilesIdentical(a, c)
	require.NoError(t, err)
	assert.False(t, same)
}

func TestFilesIdenticalEmpty(t *testing.T) {
	a := writeHashFixture(t, "a.txt", "")
	b := writeHashFixture(t, "b.txt", "")

	same, err := FilesIdentical(a, b)
	require.NoError(t, err)
	assert.True(t, same)
}

func TestFilesIdenticalMissingSide(t *testing.T) {
	a := writeHashFixture(t, "a.txt", "x")
	missing := filepath.Join(t.TempDir(), "missing")

	_, err := FilesIdentical(a, missing)
	assert.Error(t, err)

	_, err = FilesIdentical(missing, a)
	assert.Error(t, err)
}
