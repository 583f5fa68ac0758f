package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// TreeOptions controls CopyTree.
type TreeOptions struct {
	// Excludes are doublestar patterns matched against slash-separated paths
	// relative to the source root. A matching directory is skipped entirely.
	Excludes []string

	// SkipPaths are absolute paths never copied, such as a jobs root that
	// lives inside the source tree.
	SkipPaths []string
}

// Validate checks the exclude patterns.
func (o TreeOptions) Validate() error {
	for _, p := range o.Excludes {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclude pattern: %q", p)
		}
	}
	return nil
}

// CopyTree copies the contents of src into dst, creating directories before
// their contents. Files keep their permission bits and modification times.
// Symlinks are followed and their targets copied.
func CopyTree(src, dst string, opts TreeOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := CheckDir(src); err != nil {
		return err
	}
	if err := EnsureDir(dst); err != nil {
		return err
	}
	return copyTree(src, dst, "", opts)
}

func copyTree(srcRoot, dstRoot, rel string, opts TreeOptions) error {
	srcDir := filepath.Join(srcRoot, rel)
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return &PathError{Op: "read dir", Path: srcDir, Err: err}
	}

	for _, e := range entries {
		childRel := filepath.Join(rel, e.Name())
		if excluded(childRel, opts.Excludes) {
			continue
		}
		src := filepath.Join(srcRoot, childRel)
		dst := filepath.Join(dstRoot, childRel)
		if skipped(src, opts.SkipPaths) || src == filepath.Clean(dstRoot) {
			continue
		}

		info, err := os.Stat(src)
		if err != nil {
			return &PathError{Op: "stat", Path: src, Err: err}
		}

		switch {
		case info.IsDir():
			if err := os.MkdirAll(dst, dirPerm(info.Mode())); err != nil {
				return &PathError{Op: "create dir", Path: dst, Err: err}
			}
			if err := copyTree(srcRoot, dstRoot, childRel, opts); err != nil {
				return err
			}
			mtime := info.ModTime()
			_ = os.Chtimes(dst, mtime, mtime)
		case info.Mode().IsRegular():
			if err := CopyFile(src, dst); err != nil {
				return err
			}
		default:
			// Sockets, devices and pipes have no place in a source tree.
			continue
		}
	}
	return nil
}

func excluded(rel string, patterns []string) bool {
	slashed := filepath.ToSlash(rel)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, slashed); ok {
			return true
		}
	}
	return false
}

func skipped(path string, skip []string) bool {
	for _, s := range skip {
		if filepath.Clean(s) == path {
			return true
		}
	}
	return false
}

// dirPerm keeps directories writable by the owner so their contents can be
// copied in.
func dirPerm(mode fs.FileMode) fs.FileMode {
	return mode.Perm() | 0700
}
