// Package delta implements rsync-style block matching: a changed file is
// rebuilt from blocks the destination already has plus literal runs of new
// data. Weak rolling checksums find candidate blocks in O(1) per byte;
// every candidate is confirmed with a strong BLAKE3 hash before it is used.
package delta

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/zeebo/blake3"
)

const (
	// MinBlockSize and MaxBlockSize clamp ChooseBlockSize results.
	MinBlockSize = 512
	MaxBlockSize = 128 * 1024

	// DefaultBlockSize is used when the caller passes 0 and the file size
	// is unknown.
	DefaultBlockSize = 1024
)

// ErrPlanMismatch reports a plan whose instruction lengths do not cover the
// source exactly. Callers must discard the plan and fall back to copying the
// whole file; a plan that fails this check is never applied.
var ErrPlanMismatch = errors.New("delta: plan does not cover source")

// Compressor optionally shrinks literal payloads carried in a plan.
// Compress returns (compressed, true) only when the result is smaller than
// the input; Decompress inverts it.
type Compressor interface {
	Compress(p []byte) ([]byte, bool)
	Decompress(p []byte) ([]byte, error)
}

// BlockSig identifies one basis block by offset, with weak and strong sums.
type BlockSig struct {
	Offset int64
	Len    int
	Weak   uint32
	Strong [32]byte
}

// Signature holds the block-level signature of a basis file. Blocks are
// non-overlapping and in file order; only the final block may be short.
type Signature struct {
	Blocks    []BlockSig
	BlockSize int
	FileSize  int64

	index map[uint32][]int // weak sum -> Blocks indices, ascending offset
}

// Op is a single reconstruction instruction. A nil Literal means copy
// [Offset, Offset+Length) from the basis; otherwise write the literal bytes.
// Length is always the reconstructed length, even when the literal payload
// is stored compressed.
type Op struct {
	Literal    []byte
	Offset     int64
	Length     int64
	Compressed bool
}

// IsLiteral reports whether the op carries literal data.
func (o Op) IsLiteral() bool { return o.Literal != nil }

// Plan is the ordered instruction list that rebuilds a source from a basis.
type Plan struct {
	Ops        []Op
	SourceSize int64
}

// Stats summarizes a plan for reporting.
type Stats struct {
	Ops          int
	CopyOps      int
	LiteralOps   int
	MatchedBytes int64
	LiteralBytes int64
}

// Stats returns op counts and byte totals for the plan.
func (p *Plan) Stats() Stats {
	var s Stats
	s.Ops = len(p.Ops)
	for _, op := range p.Ops {
		if op.IsLiteral() {
			s.LiteralOps++
			s.LiteralBytes += op.Length
		} else {
			s.CopyOps++
			s.MatchedBytes += op.Length
		}
	}
	return s
}

// CompressLiterals rewrites literal payloads through c, keeping only results
// that are smaller. Call after BuildPlan; Op.Length stays the reconstructed
// length so coverage checks are unaffected.
func (p *Plan) CompressLiterals(c Compressor) {
	if c == nil {
		return
	}
	for i := range p.Ops {
		op := &p.Ops[i]
		if !op.IsLiteral() || op.Compressed {
			continue
		}
		if enc, ok := c.Compress(op.Literal); ok {
			op.Literal = enc
			op.Compressed = true
		}
	}
}

// ChooseBlockSize selects a block size for a file of the given size.
// Uses sqrt(fileSize) clamped to [MinBlockSize, MaxBlockSize].
func ChooseBlockSize(fileSize int64) int {
	if fileSize <= 0 {
		return MinBlockSize
	}
	bs := int(math.Sqrt(float64(fileSize)))
	if bs < MinBlockSize {
		bs = MinBlockSize
	}
	if bs > MaxBlockSize {
		bs = MaxBlockSize
	}
	return bs
}

// ComputeSignature reads the basis once and produces weak+strong sums per
// block. A blockSize of 0 picks one from the file size.
func ComputeSignature(r io.Reader, fileSize int64, blockSize int) (*Signature, error) {
	if blockSize <= 0 {
		blockSize = ChooseBlockSize(fileSize)
	}
	sig := &Signature{
		BlockSize: blockSize,
		FileSize:  fileSize,
	}
	if fileSize > 0 {
		sig.Blocks = make([]BlockSig, 0, (fileSize+int64(blockSize)-1)/int64(blockSize))
	}

	buf := make([]byte, blockSize)
	var offset int64
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			block := buf[:n]
			sig.Blocks = append(sig.Blocks, BlockSig{
				Offset: offset,
				Len:    n,
				Weak:   WeakSum(block),
				Strong: blake3.Sum256(block),
			})
			offset += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read block at %d: %w", offset, err)
		}
	}
	return sig, nil
}

func (s *Signature) weakIndex() map[uint32][]int {
	if s.index == nil {
		s.index = make(map[uint32][]int, len(s.Blocks))
		for i, b := range s.Blocks {
			s.index[b.Weak] = append(s.index[b.Weak], i)
		}
	}
	return s.index
}

// findBlock returns the lowest-offset basis block whose weak and strong sums
// both match the window. The strong hash is computed at most once per call.
func (s *Signature) findBlock(weak uint32, window []byte) (BlockSig, bool) {
	cands, ok := s.weakIndex()[weak]
	if !ok {
		return BlockSig{}, false
	}
	var strong [32]byte
	hashed := false
	for _, i := range cands {
		b := s.Blocks[i]
		if b.Len != len(window) {
			continue
		}
		if !hashed {
			strong = blake3.Sum256(window)
			hashed = true
		}
		if strong == b.Strong {
			return b, true
		}
	}
	return BlockSig{}, false
}

// BuildPlan scans src against the signature and produces the instruction
// list. On a verified block match the window jumps a whole block; on a miss
// it slides one byte and the byte joins the pending literal run. Copies of
// basis-adjacent blocks coalesce into a single op.
//
// The returned plan always satisfies sum(Op.Length) == len(src); a violation
// returns ErrPlanMismatch and no plan.
func BuildPlan(src []byte, sig *Signature) (*Plan, error) {
	plan := &Plan{SourceSize: int64(len(src))}
	if len(src) == 0 {
		return plan, nil
	}
	if sig == nil || len(sig.Blocks) == 0 {
		lit := make([]byte, len(src))
		copy(lit, src)
		plan.Ops = []Op{{Literal: lit, Length: int64(len(lit))}}
		return plan, nil
	}

	bs := sig.BlockSize
	litStart := 0 // start of the pending literal run
	pos := 0      // current window start

	appendCopy := func(b BlockSig) {
		if n := len(plan.Ops); n > 0 {
			last := &plan.Ops[n-1]
			if !last.IsLiteral() && last.Offset+last.Length == b.Offset {
				last.Length += int64(b.Len)
				return
			}
		}
		plan.Ops = append(plan.Ops, Op{Offset: b.Offset, Length: int64(b.Len)})
	}
	flushLiteral := func(end int) {
		if end > litStart {
			lit := make([]byte, end-litStart)
			copy(lit, src[litStart:end])
			plan.Ops = append(plan.Ops, Op{Literal: lit, Length: int64(len(lit))})
		}
	}

	if len(src) >= bs {
		sum := NewRollingSum(src[:bs])
		for {
			if b, ok := sig.findBlock(sum.Sum(), src[pos:pos+bs]); ok {
				flushLiteral(pos)
				appendCopy(b)
				pos += bs
				litStart = pos
				if pos+bs > len(src) {
					break
				}
				sum.Reset(src[pos : pos+bs])
				continue
			}
			if pos+bs >= len(src) {
				break
			}
			sum.Roll(src[pos], src[pos+bs])
			pos++
		}
	}

	// A short basis tail can only match where the remaining source exactly
	// spans it; full-size blocks never match a short window.
	if last := len(sig.Blocks) - 1; last >= 0 && sig.Blocks[last].Len < bs {
		short := sig.Blocks[last]
		if p := len(src) - short.Len; p >= pos {
			win := src[p:]
			if WeakSum(win) == short.Weak && blake3.Sum256(win) == short.Strong {
				flushLiteral(p)
				appendCopy(short)
				litStart = len(src)
			}
		}
	}
	flushLiteral(len(src))

	var covered int64
	for _, op := range plan.Ops {
		covered += op.Length
	}
	if covered != plan.SourceSize {
		return nil, ErrPlanMismatch
	}
	return plan, nil
}

// Apply reconstructs the source into dst, reading matched blocks from the
// basis. c decompresses compressed literals and may be nil when the plan
// carries none. Returns bytes written.
func Apply(basis io.ReaderAt, plan *Plan, c Compressor, dst io.Writer) (int64, error) {
	var written int64
	for _, op := range plan.Ops {
		if op.IsLiteral() {
			payload := op.Literal
			if op.Compressed {
				if c == nil {
					return written, errors.New("delta: compressed literal without compressor")
				}
				dec, err := c.Decompress(payload)
				if err != nil {
					return written, fmt.Errorf("decompress literal: %w", err)
				}
				payload = dec
			}
			if int64(len(payload)) != op.Length {
				return written, fmt.Errorf("delta: literal is %d bytes, want %d", len(payload), op.Length)
			}
			n, err := dst.Write(payload)
			written += int64(n)
			if err != nil {
				return written, fmt.Errorf("write literal: %w", err)
			}
			continue
		}

		n, err := io.Copy(dst, io.NewSectionReader(basis, op.Offset, op.Length))
		written += n
		if err != nil {
			return written, fmt.Errorf("copy block at %d: %w", op.Offset, err)
		}
		if n != op.Length {
			return written, fmt.Errorf("copy block at %d: short read (%d of %d bytes)", op.Offset, n, op.Length)
		}
	}
	return written, nil
}
