package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeStringCoversAllTypes(t *testing.T) {
	seen := make(map[string]bool)
	for typ := ScanStarted; typ <= VerifyFailed; typ++ {
		name := typ.String()
		assert.NotEqual(t, "Unknown", name, "type %d has no name", typ)
		assert.False(t, seen[name], "duplicate name %q", name)
		seen[name] = true
	}

	assert.Equal(t, "ScanStarted", ScanStarted.String())
	assert.Equal(t, "FileMoved", FileMoved.String())
	assert.Equal(t, "SymlinkCreated", SymlinkCreated.String())
	assert.Equal(t, "VerifyFailed", VerifyFailed.String())
}

func TestTypeStringOutOfRange(t *testing.T) {
	for _, typ := range []Type{0, -1, 999} {
		assert.Equal(t, "Unknown", typ.String())
	}
}

func TestEventRetryFields(t *testing.T) {
	now := time.Now()
	e := Event{
		Type:      FileRetrying,
		Timestamp: now,
		Path:      "dir/file.txt",
		Size:      1024,
		WorkerID:  3,
		Attempt:   2,
	}
	assert.Equal(t, FileRetrying, e.Type)
	assert.Equal(t, now, e.Timestamp)
	assert.Equal(t, "dir/file.txt", e.Path)
	assert.Equal(t, int64(1024), e.Size)
	assert.Equal(t, 3, e.WorkerID)
	assert.Equal(t, 2, e.Attempt)
}

func TestEventDeltaFields(t *testing.T) {
	e := Event{
		Type:    FileCompleted,
		Path:    "big.bin",
		Size:    1 << 20,
		Delta:   true,
		Literal: 4096,
	}
	assert.True(t, e.Delta)
	assert.Equal(t, int64(4096), e.Literal)
	require.NoError(t, e.Error)
}
