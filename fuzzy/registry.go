package fuzzy

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Hasher computes a similarity digest over a stream.
type Hasher interface {
	Name() string
	HashReader(r io.Reader) (string, error)
}

// MinSizer is implemented by hashers that cannot digest short inputs.
type MinSizer interface {
	MinSize() int64
}

// ErrInputTooSmall reports a stream shorter than a hasher's minimum.
var ErrInputTooSmall = errors.New("input too small")

var registry = map[string]Hasher{}

// Register adds a fuzzy hasher to the registry.
func Register(hasher Hasher) {
	if hasher == nil {
		return
	}
	registry[strings.ToLower(hasher.Name())] = hasher
}

// Lookup returns a registered hasher by name.
func Lookup(name string) (Hasher, bool) {
	hasher, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return hasher, ok
}

// Available returns the sorted names of registered hashers.
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps configured names to hashers, skipping unknown ones.
func Resolve(names []string) ([]Hasher, []string) {
	var hashers []Hasher
	var unknown []string
	for _, name := range names {
		if h, ok := Lookup(name); ok {
			hashers = append(hashers, h)
		} else if strings.TrimSpace(name) != "" {
			unknown = append(unknown, name)
		}
	}
	return hashers, unknown
}

// HashStream digests one stream of size bytes, size < 0 meaning unknown.
// Streams below the hasher's minimum are rejected without being opened.
func HashStream(h Hasher, size int64, open func() (io.ReadCloser, error)) (string, error) {
	if m, ok := h.(MinSizer); ok && size >= 0 && size < m.MinSize() {
		return "", fmt.Errorf("%s: %d bytes: %w", h.Name(), size, ErrInputTooSmall)
	}
	r, err := open()
	if err != nil {
		return "", err
	}
	defer r.Close()
	return h.HashReader(r)
}
