//go:build !linux

package platform

// IOURingCopier exists off Linux only so callers can hold the type; the
// constructor never hands one out.
type IOURingCopier struct{}

// NewIOURingCopier returns (nil, nil) off Linux, the same signal as an
// unsupported kernel.
func NewIOURingCopier(uint) (*IOURingCopier, error) {
	return nil, nil
}

func (*IOURingCopier) Close() error { return nil }

func (*IOURingCopier) CopyFile(CopyFileParams) (CopyResult, error) {
	return CopyResult{}, nil
}

// KernelSupportsIOURing is always false off Linux.
func KernelSupportsIOURing() bool {
	return false
}
