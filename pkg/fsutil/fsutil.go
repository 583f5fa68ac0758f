// Package fsutil holds the filesystem primitives used to stage job folders.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotDirectory indicates a path exists but is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// PathError wraps a filesystem failure with the operation and path involved.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// Exists reports whether path exists. Stat errors other than "not exist"
// count as existing so callers do not silently overwrite unreadable paths.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// CheckDir returns nil if path exists and is a directory.
func CheckDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &PathError{Op: "check dir", Path: path, Err: err}
	}
	if !info.IsDir() {
		return &PathError{Op: "check dir", Path: path, Err: ErrNotDirectory}
	}
	return nil
}

// EnsureDir creates path (and parents) if absent. An existing non-directory
// is an error.
func EnsureDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return &PathError{Op: "ensure dir", Path: path, Err: ErrNotDirectory}
	case !errors.Is(err, fs.ErrNotExist):
		return &PathError{Op: "ensure dir", Path: path, Err: err}
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return &PathError{Op: "create dir", Path: path, Err: err}
	}
	return nil
}

// CopyFile copies src to dst, preserving permission bits and modification
// time. dst is truncated if it exists.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &PathError{Op: "copy", Path: src, Err: err}
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return &PathError{Op: "copy", Path: src, Err: err}
	}
	if info.IsDir() {
		return &PathError{Op: "copy", Path: src, Err: fmt.Errorf("is a directory")}
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return &PathError{Op: "copy", Path: dst, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return &PathError{Op: "copy", Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return &PathError{Op: "copy", Path: dst, Err: err}
	}

	// O_CREATE applies the umask; restore the exact source bits.
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return &PathError{Op: "chmod", Path: dst, Err: err}
	}
	mtime := info.ModTime()
	if err := os.Chtimes(dst, mtime, mtime); err != nil {
		return &PathError{Op: "chtimes", Path: dst, Err: err}
	}
	return nil
}

// CopyInto copies src into dir under its base name and returns the new path.
// Copying a file onto itself is a no-op.
func CopyInto(src, dir string) (string, error) {
	dst := filepath.Join(dir, filepath.Base(src))
	if same, _ := samePath(src, dst); same {
		return dst, nil
	}
	if err := CopyFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func samePath(a, b string) (bool, error) {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true, nil
	}
	ia, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ia, ib), nil
}

// FindFile searches root for a regular file called name. Each directory's own
// files are checked before descending into its subdirectories, which are
// visited in lexical order. It returns "" if nothing matches.
func FindFile(root, name string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", &PathError{Op: "find", Path: root, Err: err}
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
			continue
		}
		if e.Name() == name {
			return filepath.Join(root, name), nil
		}
	}

	for _, d := range dirs {
		found, err := FindFile(filepath.Join(root, d), name)
		if err != nil {
			return "", err
		}
		if found != "" {
			return found, nil
		}
	}
	return "", nil
}
