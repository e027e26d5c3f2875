//go:build !linux && !darwin

package platform

// CopyFile has no kernel fast path here; only the portable loop applies.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	preallocate(params.DstFd, params.SrcSize)
	return copyReadWrite(params)
}
