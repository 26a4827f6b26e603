// Package fileops holds the filesystem primitives used when routing a
// file: hashing, moving and choosing a collision-free target name.
package fileops

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	rerrors "github.com/frouter/frouter/pkg/errors"
)

// FileHasher computes lowercase hex digests of file contents
type FileHasher struct {
	algorithm string // "md5" or "sha256"
}

// NewFileHasher creates a hasher; an empty algorithm selects sha256
func NewFileHasher(algorithm string) (*FileHasher, error) {
	if algorithm == "" {
		algorithm = "sha256"
	}
	switch algorithm {
	case "md5", "sha256":
	default:
		return nil, rerrors.NewValidationError(fmt.Sprintf("unsupported hash algorithm: %s", algorithm), nil)
	}
	return &FileHasher{algorithm: algorithm}, nil
}

// Digest hashes the contents of path
func (h *FileHasher) Digest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", rerrors.NewHashError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer file.Close()

	var hasher hash.Hash
	if h.algorithm == "md5" {
		hasher = md5.New()
	} else {
		hasher = sha256.New()
	}

	if _, err := io.Copy(hasher, file); err != nil {
		return "", rerrors.NewHashError(fmt.Sprintf("failed to read %s", path), err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
