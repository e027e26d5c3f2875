package compress_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ditto/internal/compress"
	"github.com/bamsammich/ditto/internal/delta"
)

func TestRoundtrip(t *testing.T) {
	c, err := compress.NewProvider()
	require.NoError(t, err)
	defer c.Close()

	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 64)

	enc, ok := c.Compress(payload)
	require.True(t, ok)
	assert.Less(t, len(enc), len(payload))

	dec, err := c.Decompress(enc)
	require.NoError(t, err)
	assert.Equal(t, payload, dec)
}

func TestIncompressibleSkipped(t *testing.T) {
	c, err := compress.NewProvider()
	require.NoError(t, err)
	defer c.Close()

	payload := make([]byte, 4096)
	_, err = rand.Read(payload)
	require.NoError(t, err)

	_, ok := c.Compress(payload)
	assert.False(t, ok, "random data should not shrink")
}

func TestSmallPayloadSkipped(t *testing.T) {
	c, err := compress.NewProvider()
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Compress([]byte("short"))
	assert.False(t, ok)
}

func TestBestProvider(t *testing.T) {
	c, err := compress.NewBestProvider()
	require.NoError(t, err)
	defer c.Close()

	payload := bytes.Repeat([]byte("abcdefgh"), 512)
	enc, ok := c.Compress(payload)
	require.True(t, ok)

	dec, err := c.Decompress(enc)
	require.NoError(t, err)
	assert.Equal(t, payload, dec)
}

func TestDecompressGarbage(t *testing.T) {
	c, err := compress.NewProvider()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Decompress([]byte("not a zstd frame"))
	assert.Error(t, err)
}

// The provider must slot into delta plans as their literal codec.
func TestDeltaPlanIntegration(t *testing.T) {
	c, err := compress.NewProvider()
	require.NoError(t, err)
	defer c.Close()

	basis := bytes.Repeat([]byte{0xAA}, 8192)
	src := append(bytes.Repeat([]byte{0xAA}, 4096), bytes.Repeat([]byte("compressible literal data "), 200)...)

	sig, err := delta.ComputeSignature(bytes.NewReader(basis), int64(len(basis)), 1024)
	require.NoError(t, err)

	plan, err := delta.BuildPlan(src, sig)
	require.NoError(t, err)
	plan.CompressLiterals(c)

	var sawCompressed bool
	for _, op := range plan.Ops {
		if op.Compressed {
			sawCompressed = true
		}
	}
	assert.True(t, sawCompressed)

	var out bytes.Buffer
	_, err = delta.Apply(bytes.NewReader(basis), plan, c, &out)
	require.NoError(t, err)
	assert.Equal(t, src, out.Bytes())
}
