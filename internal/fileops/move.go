package fileops

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	rerrors "github.com/frouter/frouter/pkg/errors"
)

// CopyMover moves files by copying and then deleting the source. A failed
// copy leaves the source untouched and removes the partial destination; a
// failed delete after a good copy leaves both files.
type CopyMover struct{}

// NewCopyMover creates a CopyMover
func NewCopyMover() *CopyMover {
	return &CopyMover{}
}

// Move copies source to destination and then removes source
func (m *CopyMover) Move(source, destination string) error {
	if err := EnsureDirectory(filepath.Dir(destination)); err != nil {
		return err
	}

	if err := copyFile(source, destination); err != nil {
		os.Remove(destination)
		return rerrors.NewMoveError(fmt.Sprintf("failed to copy %s to %s", source, destination), err)
	}

	if err := os.Remove(source); err != nil {
		return rerrors.NewMoveError(fmt.Sprintf("copied %s but failed to remove it", source), err).
			WithContext("destination", destination)
	}
	return nil
}

func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return err
	}

	destination, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return err
	}
	if err := destination.Sync(); err != nil {
		destination.Close()
		return err
	}
	return destination.Close()
}

// EnsureDirectory creates dir if it does not exist. Permission failures
// are reported as filesystem errors wrapping fs.ErrPermission.
func EnsureDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return rerrors.NewFileSystemError(fmt.Sprintf("%s exists and is not a directory", dir), nil)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return rerrors.NewFileSystemError(fmt.Sprintf("failed to stat %s", dir), err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return rerrors.NewFileSystemError(fmt.Sprintf("permission denied creating %s", dir), err)
		}
		return rerrors.NewFileSystemError(fmt.Sprintf("failed to create %s", dir), err)
	}
	return nil
}
