package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// renameFunc is swapped in tests to simulate EXDEV.
var renameFunc = os.Rename

// CrossDeviceError reports a rename that failed because source and
// destination live on different filesystems.
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("cross-device rename %q -> %q: %v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// IsCrossDevice reports whether err is a CrossDeviceError.
func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename wraps os.Rename and marks EXDEV failures as CrossDeviceError.
// It replaces dst if it exists.
func Rename(src, dst string) error {
	if err := renameFunc(src, dst); err != nil {
		if errors.Is(err, unix.EXDEV) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

// MoveNoClobber moves src to dst and fails with fs.ErrExist if dst is
// already present. Same-filesystem moves are a single rename. Cross-device
// moves copy into a hidden sibling of dst, verify it, rename it into place,
// and only then remove src, so content exists at one of the two paths at
// every instant.
func MoveNoClobber(src, dst string) error {
	if Exists(dst) {
		return fmt.Errorf("move %q -> %q: %w", src, dst, fs.ErrExist)
	}
	err := Rename(src, dst)
	if err == nil {
		return SyncDir(filepath.Dir(dst))
	}
	if !IsCrossDevice(err) {
		return err
	}

	staging := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".move-"+uuid.NewString()[:8])
	if err := CopyFileVerified(src, staging); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("copy %q across devices: %w", src, err)
	}
	if err := os.Rename(staging, dst); err != nil {
		_ = os.Remove(staging)
		return err
	}
	if err := SyncDir(filepath.Dir(dst)); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove %q after copy: %w", src, err)
	}
	return nil
}

// SyncDir flushes directory metadata so a preceding rename survives a crash.
func SyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Sync(); err != nil && !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("sync dir %q: %w", dir, err)
	}
	return nil
}

// Identity returns "<device>:<inode>" for path, or "" when it cannot be
// stat'ed. A rename keeps the identity, so it tells whether a file now at
// one path is the one recorded earlier at another.
func Identity(path string) string {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return ""
	}
	return fmt.Sprintf("%d:%d", st.Dev, st.Ino)
}

// Exists reports whether path exists (following symlinks).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
