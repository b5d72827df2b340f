package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// FSSink writes artifacts under a local directory root.
type FSSink struct {
	root string
}

// NewFSSink creates a filesystem sink rooted at dir, creating it if
// necessary.
func NewFSSink(dir string) (*FSSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, WrapInitError(err, dir)
	}
	return &FSSink{root: dir}, nil
}

// Put writes data to root/name, creating intermediate directories.
func (s *FSSink) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return WrapWriteError(err, name)
	}
	if err := validateName(name); err != nil {
		return WrapWriteError(err, name)
	}

	path := filepath.Join(s.root, filepath.FromSlash(name))
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return WrapWriteError(err, path)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return WrapWriteError(err, path)
	}
	return nil
}

// Close implements Sink. Filesystem writes need no teardown.
func (s *FSSink) Close() error {
	return nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("artifact name must not be empty")
	}
	if strings.HasPrefix(name, "/") {
		return errors.New("artifact name must be relative")
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return errors.New("artifact name must not contain \"..\"")
		}
	}
	return nil
}

var _ Sink = (*FSSink)(nil)
