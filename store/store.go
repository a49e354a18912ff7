// Package store fetches named blobs (compiled rule sets) from where the
// fleet publishes them.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound reports that a blob is absent, as opposed to unreachable.
var ErrNotFound = errors.New("blob not found")

// Store returns the blob named name of the given kind.
type Store interface {
	Fetch(ctx context.Context, kind, name string) ([]byte, error)
}

// DirStore serves blobs from <root>/<kind>/<name>.
type DirStore struct {
	Root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{Root: root}
}

func (d *DirStore) Fetch(ctx context.Context, kind, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.resolve(kind, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", kind, name, ErrNotFound)
		}
		return nil, fmt.Errorf("read blob %s: %w", path, err)
	}
	return data, nil
}

func (d *DirStore) resolve(kind, name string) (string, error) {
	for _, part := range []string{kind, name} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid blob reference %q/%q", kind, name)
		}
	}
	return filepath.Join(d.Root, kind, name), nil
}
