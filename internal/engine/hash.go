package engine

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// HashFile returns the hex-encoded BLAKE3 digest of the file at path.
func HashFile(path string) (string, error) {
	digest, err := rawHash(path)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest), nil
}

// FilesIdentical reports whether two files have the same BLAKE3 digest.
func FilesIdentical(a, b string) (bool, error) {
	da, err := rawHash(a)
	if err != nil {
		return false, err
	}
	db, err := rawHash(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(da, db), nil
}

func rawHash(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
