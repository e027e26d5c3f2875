package delta

// RollingSum is the weak-checksum state for a sliding window. It keeps two
// 16-bit component sums: a is the plain byte sum, b weights each byte by its
// distance from the window end. Both update in O(1) when the window slides
// one byte, so scanning a source for block matches never rescans the window.
type RollingSum struct {
	a, b   uint32
	window uint32
}

// NewRollingSum computes the checksum state over an initial window.
func NewRollingSum(p []byte) RollingSum {
	var r RollingSum
	r.Reset(p)
	return r
}

// Reset re-primes the state over a new window, discarding prior state.
func (r *RollingSum) Reset(p []byte) {
	r.a, r.b = 0, 0
	r.window = uint32(len(p))
	for i, c := range p {
		r.a += uint32(c)
		r.b += uint32(len(p)-i) * uint32(c)
	}
	r.a &= 0xffff
	r.b &= 0xffff
}

// Roll slides the window one byte to the right: out is the byte leaving on
// the left, in the byte entering on the right. The window length is fixed.
func (r *RollingSum) Roll(out, in byte) {
	r.a = (r.a - uint32(out) + uint32(in)) & 0xffff
	r.b = (r.b - r.window*uint32(out) + r.a) & 0xffff
}

// Sum returns the 32-bit weak checksum of the current window.
func (r *RollingSum) Sum() uint32 {
	return r.a | r.b<<16
}

// WeakSum is the one-shot form of RollingSum for a complete block.
func WeakSum(p []byte) uint32 {
	r := NewRollingSum(p)
	return r.Sum()
}
