// Package site maps project directories to stable identifiers and serves
// them as static content.
package site

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrNotFound       = errors.New("path does not exist")
	ErrNotADirectory  = errors.New("path is not a directory")
	ErrSiteNotFound   = errors.New("site not found")
	ErrCanonicalizing = errors.New("failed to canonicalize path")
)

// PathError records the path that could not be resolved.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// Resolve canonicalizes path and derives its site identifier.
//
// The identifier is the 64-bit xxhash of the canonical path, in lower-case
// hex. Paths that canonicalize identically always share an identifier. The
// hash is not collision resistant: two distinct directories could in theory
// map to the same identifier.
func Resolve(path string) (id string, canonical string, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", &PathError{Path: path, Err: ErrNotFound}
		}
		return "", "", &PathError{Path: path, Err: err}
	}
	if !info.IsDir() {
		return "", "", &PathError{Path: path, Err: ErrNotADirectory}
	}

	canonical, err = canonicalize(path)
	if err != nil {
		return "", "", &PathError{Path: path, Err: fmt.Errorf("%w: %v", ErrCanonicalizing, err)}
	}

	return ID(canonical), canonical, nil
}

// ID hashes an already canonical path.
func ID(canonical string) string {
	return strconv.FormatUint(xxhash.Sum64String(canonical), 16)
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
