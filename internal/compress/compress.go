// Package compress provides the zstd codec for delta literal payloads.
package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// MinLiteralSize is the smallest payload worth compressing; below this the
// frame overhead usually exceeds the savings.
const MinLiteralSize = 64

// Provider compresses literal payloads with zstd, replacing a payload only
// when the encoded form is strictly smaller. Safe for concurrent use.
type Provider struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewProvider creates a Provider at the default compression level.
func NewProvider() (*Provider, error) {
	return newProvider(zstd.SpeedDefault)
}

// NewBestProvider creates a Provider tuned for ratio over speed.
func NewBestProvider() (*Provider, error) {
	return newProvider(zstd.SpeedBestCompression)
}

func newProvider(level zstd.EncoderLevel) (*Provider, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(level),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &Provider{enc: enc, dec: dec}, nil
}

// Compress returns the zstd frame for p when that is smaller than the input.
func (c *Provider) Compress(p []byte) ([]byte, bool) {
	if len(p) < MinLiteralSize {
		return nil, false
	}
	enc := c.enc.EncodeAll(p, make([]byte, 0, len(p)/2))
	if len(enc) >= len(p) {
		return nil, false
	}
	return enc, true
}

// Decompress inverts Compress.
func (c *Provider) Decompress(p []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(p, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

// Close releases encoder and decoder resources.
func (c *Provider) Close() {
	_ = c.enc.Close()
	c.dec.Close()
}
