// Package index keeps the change-detection snapshot: which (file, stream)
// pairs were seen on the previous run and with which fingerprints, so that
// unchanged streams are never hashed again.
//
// An Index is owned by a single run and is not safe for concurrent use. Two
// processes sharing one snapshot path is an unsupported configuration.
package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"iocscan/compress"
	"iocscan/logger"
)

// DefaultPath is the snapshot location used when none is configured.
const DefaultPath = "iocscan.index"

type Index struct {
	path  string
	codec compress.Codec

	previous map[Key]Record
	current  map[Key]Record
	order    []Key

	changes   int
	finalized bool
}

type Option func(*Index)

// WithCodec selects the compression used when the snapshot is written.
func WithCodec(c compress.Codec) Option {
	return func(ix *Index) {
		if c != nil {
			ix.codec = c
		}
	}
}

// New returns an empty index that persists to path.
func New(path string, opts ...Option) *Index {
	codec, _ := compress.Get("zstd")
	ix := &Index{
		path:     path,
		codec:    codec,
		previous: make(map[Key]Record),
		current:  make(map[Key]Record),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Load reads the snapshot at path. A missing file yields an empty index; a
// malformed one is returned as a *FormatError and is not recovered.
func Load(path string, opts ...Option) (*Index, error) {
	ix := New(path, opts...)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debugf("No index at %s, starting empty", path)
			return ix, nil
		}
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}

	payload, err := compress.Unwrap(data)
	if err != nil {
		return nil, &FormatError{Offset: 0, Reason: err.Error()}
	}
	entries, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		ix.previous[e.Key] = e.Record
	}
	logger.Debugf("Loaded %d index entries from %s", len(ix.previous), path)
	return ix, nil
}

func (ix *Index) Path() string { return ix.path }

// HasPrior reports whether id was recorded by the previous run and has not
// been claimed yet in this one.
func (ix *Index) HasPrior(id Identity) bool {
	_, ok := ix.previous[ComputeKey(id)]
	return ok
}

// Record stores rec for id. A key known from the previous run carries the
// previous record forward unchanged and rec is ignored; presence of the key
// is the only signal. Any other key counts as a change.
func (ix *Index) Record(id Identity, rec Record) {
	key := ComputeKey(id)
	if old, ok := ix.previous[key]; ok {
		ix.put(key, old)
		delete(ix.previous, key)
		return
	}
	ix.put(key, rec)
	ix.changes++
}

func (ix *Index) put(key Key, rec Record) {
	if _, exists := ix.current[key]; !exists {
		ix.order = append(ix.order, key)
	}
	ix.current[key] = rec
}

// Lookup returns the record stored for id during this run.
func (ix *Index) Lookup(id Identity) (Record, bool) {
	rec, ok := ix.current[ComputeKey(id)]
	return rec, ok
}

// Changes is the number of new, changed and (after Persist) vanished streams.
func (ix *Index) Changes() int { return ix.changes }

// Len is the number of records in the current snapshot.
func (ix *Index) Len() int { return len(ix.current) }

// Pending is the number of previous records not re-observed yet.
func (ix *Index) Pending() int { return len(ix.previous) }

// Entries returns the current snapshot in insertion order.
func (ix *Index) Entries() []Entry {
	entries := make([]Entry, 0, len(ix.order))
	for _, key := range ix.order {
		entries = append(entries, Entry{Key: key, Record: ix.current[key]})
	}
	return entries
}

// Persist counts every unclaimed previous record as a removal, discards them,
// and rewrites the whole snapshot when anything changed. It reports whether
// the file was written. Only the first call has any effect.
func (ix *Index) Persist() (bool, error) {
	if ix.finalized {
		return false, nil
	}
	ix.finalized = true

	ix.changes += len(ix.previous)
	ix.previous = make(map[Key]Record)

	if ix.changes == 0 {
		logger.Debugf("Index %s unchanged, not rewriting", ix.path)
		return false, nil
	}

	payload, err := Encode(ix.Entries())
	if err != nil {
		return false, fmt.Errorf("encode index: %w", err)
	}
	data, err := compress.Wrap(ix.codec, payload)
	if err != nil {
		return false, err
	}
	if err := writeFileAtomic(ix.path, data, 0600); err != nil {
		return false, fmt.Errorf("write index %s: %w", ix.path, err)
	}
	logger.Infof("Index %s written: %d entries, %d changes", ix.path, len(ix.current), ix.changes)
	return true, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
