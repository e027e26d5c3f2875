package delta

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestData(t *testing.T, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func computeSig(t *testing.T, basis []byte, blockSize int) *Signature {
	t.Helper()
	sig, err := ComputeSignature(bytes.NewReader(basis), int64(len(basis)), blockSize)
	require.NoError(t, err)
	return sig
}

func applyPlan(t *testing.T, basis []byte, plan *Plan) []byte {
	t.Helper()
	var out bytes.Buffer
	n, err := Apply(bytes.NewReader(basis), plan, nil, &out)
	require.NoError(t, err)
	require.Equal(t, int64(out.Len()), n)
	return out.Bytes()
}

func TestChooseBlockSize(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want int
	}{
		{name: "zero", size: 0, want: MinBlockSize},
		{name: "tiny", size: 100, want: MinBlockSize},
		{name: "100KB", size: 100 * 1024, want: MinBlockSize},
		{name: "1MB", size: 1024 * 1024, want: 1024},
		{name: "16MB", size: 16 * 1024 * 1024, want: 4096},
		{name: "1GB", size: 1024 * 1024 * 1024, want: 32768},
		{name: "huge", size: 1 << 40, want: MaxBlockSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseBlockSize(tt.size))
		})
	}
}

func TestComputeSignature(t *testing.T) {
	basis := makeTestData(t, 2560)
	sig := computeSig(t, basis, 1024)

	require.Len(t, sig.Blocks, 3)
	assert.Equal(t, int64(0), sig.Blocks[0].Offset)
	assert.Equal(t, 1024, sig.Blocks[0].Len)
	assert.Equal(t, int64(1024), sig.Blocks[1].Offset)
	assert.Equal(t, 1024, sig.Blocks[1].Len)
	assert.Equal(t, int64(2048), sig.Blocks[2].Offset)
	assert.Equal(t, 512, sig.Blocks[2].Len)

	// Random blocks should hash distinctly.
	assert.NotEqual(t, sig.Blocks[0].Strong, sig.Blocks[1].Strong)
}

func TestComputeSignatureEmpty(t *testing.T) {
	sig := computeSig(t, nil, 1024)
	assert.Empty(t, sig.Blocks)
	assert.Equal(t, int64(0), sig.FileSize)
}

func TestComputeSignatureAutoBlockSize(t *testing.T) {
	basis := makeTestData(t, 4096)
	sig, err := ComputeSignature(bytes.NewReader(basis), int64(len(basis)), 0)
	require.NoError(t, err)
	assert.Equal(t, MinBlockSize, sig.BlockSize)
}

func TestBuildPlanIdenticalFiles(t *testing.T) {
	data := makeTestData(t, 300000)
	sig := computeSig(t, data, 4096)

	plan, err := BuildPlan(data, sig)
	require.NoError(t, err)

	// Every block matches in basis order, so copies coalesce to one op.
	require.Len(t, plan.Ops, 1)
	assert.False(t, plan.Ops[0].IsLiteral())
	assert.Equal(t, int64(0), plan.Ops[0].Offset)
	assert.Equal(t, int64(len(data)), plan.Ops[0].Length)

	s := plan.Stats()
	assert.Equal(t, int64(len(data)), s.MatchedBytes)
	assert.Zero(t, s.LiteralBytes)

	assert.Equal(t, data, applyPlan(t, data, plan))
}

func TestBuildPlanCompletelyDifferent(t *testing.T) {
	basis := makeTestData(t, 64*1024)
	src := makeTestData(t, 64*1024)
	sig := computeSig(t, basis, 4096)

	plan, err := BuildPlan(src, sig)
	require.NoError(t, err)

	s := plan.Stats()
	assert.Zero(t, s.MatchedBytes)
	assert.Equal(t, int64(len(src)), s.LiteralBytes)
	require.Len(t, plan.Ops, 1)

	assert.Equal(t, src, applyPlan(t, basis, plan))
}

func TestBuildPlanBlockReuse(t *testing.T) {
	// One changed block in the middle; trailing matches coalesce.
	basis := []byte("AAAABBBBCCCCDDDD")
	src := []byte("AAAAXXXXCCCCDDDD")
	sig := computeSig(t, basis, 4)

	plan, err := BuildPlan(src, sig)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 3)

	assert.False(t, plan.Ops[0].IsLiteral())
	assert.Equal(t, int64(0), plan.Ops[0].Offset)
	assert.Equal(t, int64(4), plan.Ops[0].Length)

	assert.True(t, plan.Ops[1].IsLiteral())
	assert.Equal(t, []byte("XXXX"), plan.Ops[1].Literal)

	assert.False(t, plan.Ops[2].IsLiteral())
	assert.Equal(t, int64(8), plan.Ops[2].Offset)
	assert.Equal(t, int64(8), plan.Ops[2].Length)

	assert.Equal(t, src, applyPlan(t, basis, plan))
}

func TestBuildPlanWeakCollision(t *testing.T) {
	// Same weak sum (byte sum 2, weighted sum 4), different content. The
	// strong hash must reject the candidate and the bytes stay literal.
	basis := []byte{0x00, 0x02, 0x00}
	src := []byte{0x01, 0x00, 0x01}
	require.Equal(t, WeakSum(basis), WeakSum(src), "inputs must collide on the weak sum")
	require.NotEqual(t, basis, src)

	sig := computeSig(t, basis, 3)
	plan, err := BuildPlan(src, sig)
	require.NoError(t, err)

	require.Len(t, plan.Ops, 1)
	assert.True(t, plan.Ops[0].IsLiteral())
	assert.Equal(t, src, plan.Ops[0].Literal)
	assert.Zero(t, plan.Stats().MatchedBytes)
}

func TestBuildPlanTieBreaksLowestOffset(t *testing.T) {
	// Basis repeats the same block content four times; matches must always
	// reference the first occurrence.
	block := makeTestData(t, 512)
	basis := bytes.Repeat(block, 4)
	sig := computeSig(t, basis, 512)

	plan, err := BuildPlan(block, sig)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	assert.False(t, plan.Ops[0].IsLiteral())
	assert.Equal(t, int64(0), plan.Ops[0].Offset)
}

func TestBuildPlanEmptySource(t *testing.T) {
	basis := makeTestData(t, 4096)
	sig := computeSig(t, basis, 1024)

	plan, err := BuildPlan(nil, sig)
	require.NoError(t, err)
	assert.Empty(t, plan.Ops)
	assert.Empty(t, applyPlan(t, basis, plan))
}

func TestBuildPlanEmptyBasis(t *testing.T) {
	src := makeTestData(t, 4096)
	sig := computeSig(t, nil, 1024)

	plan, err := BuildPlan(src, sig)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	assert.True(t, plan.Ops[0].IsLiteral())
	assert.Equal(t, src, applyPlan(t, nil, plan))
}

func TestBuildPlanNilSignature(t *testing.T) {
	src := makeTestData(t, 1024)
	plan, err := BuildPlan(src, nil)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	assert.True(t, plan.Ops[0].IsLiteral())
}

func TestBuildPlanSourceLargerThanBasis(t *testing.T) {
	basis := makeTestData(t, 4096)
	src := append(append([]byte{}, basis...), makeTestData(t, 4096)...)
	sig := computeSig(t, basis, 1024)

	plan, err := BuildPlan(src, sig)
	require.NoError(t, err)

	s := plan.Stats()
	assert.Equal(t, int64(4096), s.MatchedBytes)
	assert.Equal(t, int64(4096), s.LiteralBytes)
	assert.Equal(t, src, applyPlan(t, basis, plan))
}

func TestBuildPlanBasisLargerThanSource(t *testing.T) {
	basis := makeTestData(t, 8192)
	src := basis[:4096]
	sig := computeSig(t, basis, 1024)

	plan, err := BuildPlan(src, sig)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	assert.False(t, plan.Ops[0].IsLiteral())
	assert.Equal(t, int64(4096), plan.Ops[0].Length)
	assert.Equal(t, src, applyPlan(t, basis, plan))
}

func TestBuildPlanShortTailMatch(t *testing.T) {
	// Basis ends in a 100-byte block; source carries new data plus that tail.
	basis := makeTestData(t, 10*1024+100)
	prefix := makeTestData(t, 512)
	src := append(append([]byte{}, prefix...), basis[10*1024:]...)
	sig := computeSig(t, basis, 1024)

	plan, err := BuildPlan(src, sig)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 2)

	assert.True(t, plan.Ops[0].IsLiteral())
	assert.Equal(t, prefix, plan.Ops[0].Literal)
	assert.False(t, plan.Ops[1].IsLiteral())
	assert.Equal(t, int64(10*1024), plan.Ops[1].Offset)
	assert.Equal(t, int64(100), plan.Ops[1].Length)

	assert.Equal(t, src, applyPlan(t, basis, plan))
}

func TestBuildPlanInsertionRealigns(t *testing.T) {
	// Inserting bytes shifts everything after the insert point; the rolling
	// window must re-find block alignment past it.
	basis := makeTestData(t, 256*1024)
	insert := makeTestData(t, 37)
	src := append(append(append([]byte{}, basis[:100000]...), insert...), basis[100000:]...)
	sig := computeSig(t, basis, 1024)

	plan, err := BuildPlan(src, sig)
	require.NoError(t, err)

	s := plan.Stats()
	t.Logf("ops=%d copy=%d literal=%d matched=%d literalBytes=%d",
		s.Ops, s.CopyOps, s.LiteralOps, s.MatchedBytes, s.LiteralBytes)
	assert.Greater(t, s.MatchedBytes, int64(len(src))/2)
	assert.Less(t, s.LiteralBytes, int64(4*1024))

	assert.Equal(t, src, applyPlan(t, basis, plan))
}

func TestBuildPlanRoundtripLarge(t *testing.T) {
	// Scattered overwrites across a larger file.
	basis := makeTestData(t, 1024*1024)
	src := append([]byte{}, basis...)
	for _, off := range []int{10_000, 400_000, 900_000} {
		copy(src[off:], makeTestData(t, 2048))
	}
	sig := computeSig(t, basis, 0)

	plan, err := BuildPlan(src, sig)
	require.NoError(t, err)

	s := plan.Stats()
	assert.Greater(t, s.MatchedBytes, int64(900*1024))
	assert.Equal(t, src, applyPlan(t, basis, plan))
}

func TestPlanStats(t *testing.T) {
	plan := &Plan{Ops: []Op{
		{Offset: 0, Length: 1024},
		{Literal: []byte("abcd"), Length: 4},
		{Offset: 2048, Length: 512},
	}}
	s := plan.Stats()
	assert.Equal(t, 3, s.Ops)
	assert.Equal(t, 2, s.CopyOps)
	assert.Equal(t, 1, s.LiteralOps)
	assert.Equal(t, int64(1536), s.MatchedBytes)
	assert.Equal(t, int64(4), s.LiteralBytes)
}

func TestApplyShortBasis(t *testing.T) {
	plan := &Plan{Ops: []Op{{Offset: 0, Length: 100}}, SourceSize: 100}
	var out bytes.Buffer
	_, err := Apply(bytes.NewReader(make([]byte, 10)), plan, nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short read")
}

// stubCompressor is an invertible test double; it remembers originals keyed
// by a short token so Decompress can restore them.
type stubCompressor struct {
	m map[string][]byte
}

func newStubCompressor() *stubCompressor {
	return &stubCompressor{m: make(map[string][]byte)}
}

func (s *stubCompressor) Compress(p []byte) ([]byte, bool) {
	if len(p) < 16 {
		return nil, false
	}
	key := fmt.Sprintf("tok-%d", len(s.m))
	s.m[key] = append([]byte(nil), p...)
	return []byte(key), true
}

func (s *stubCompressor) Decompress(p []byte) ([]byte, error) {
	orig, ok := s.m[string(p)]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return orig, nil
}

func TestCompressLiterals(t *testing.T) {
	basis := []byte("AAAABBBBCCCCDDDD")
	src := []byte("AAAAXXXXYYYYZZZZWWWWCCCCDDDD")
	sig := computeSig(t, basis, 4)

	plan, err := BuildPlan(src, sig)
	require.NoError(t, err)

	c := newStubCompressor()
	plan.CompressLiterals(c)

	var compressed int
	for _, op := range plan.Ops {
		if op.Compressed {
			compressed++
			assert.True(t, op.IsLiteral())
			assert.Less(t, len(op.Literal), int(op.Length))
		}
	}
	require.Positive(t, compressed)

	var out bytes.Buffer
	_, err = Apply(bytes.NewReader(basis), plan, c, &out)
	require.NoError(t, err)
	assert.Equal(t, src, out.Bytes())
}

func TestApplyCompressedWithoutCompressor(t *testing.T) {
	plan := &Plan{Ops: []Op{{Literal: []byte("tok"), Length: 32, Compressed: true}}}
	var out bytes.Buffer
	_, err := Apply(bytes.NewReader(nil), plan, nil, &out)
	require.Error(t, err)
}
