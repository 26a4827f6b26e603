package fileops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	rerrors "github.com/frouter/frouter/pkg/errors"
)

// Digester is the subset of a hasher UniqueTarget needs
type Digester interface {
	Digest(path string) (string, error)
}

// UniqueTarget picks where source should land inside dir. The plain name
// is used when it is free or already holds identical content; otherwise
// _1, _2, ... is appended to the stem until a free or identical slot is
// found. The returned bool reports whether the chosen target already
// holds the same content.
func UniqueTarget(source, dir string, hasher Digester) (string, bool, error) {
	name := filepath.Base(source)
	ext := filepath.Ext(name)
	if ext == name {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)

	var sourceDigest string
	for n := 0; ; n++ {
		candidate := filepath.Join(dir, name)
		if n > 0 {
			candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		}

		_, err := os.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, false, nil
		}
		if err != nil {
			return "", false, rerrors.NewFileSystemError(fmt.Sprintf("failed to stat %s", candidate), err)
		}

		if sourceDigest == "" {
			if sourceDigest, err = hasher.Digest(source); err != nil {
				return "", false, err
			}
		}
		existing, err := hasher.Digest(candidate)
		if err != nil {
			return "", false, err
		}
		if existing == sourceDigest {
			return candidate, true, nil
		}
	}
}
