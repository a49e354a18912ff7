package index

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

// Key identifies a (file, stream) by identity attributes, not content.
type Key [KeySize]byte

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Identity is the triple a Key is derived from. ModTime is in Unix
// nanoseconds; Path includes the stream suffix for alternate streams.
type Identity struct {
	Inode   uint64
	ModTime int64
	Path    string
}

// ComputeKey hashes the decimal inode, decimal mtime and path, concatenated
// without separators, with SHA-1.
func ComputeKey(id Identity) Key {
	buf := make([]byte, 0, 40+len(id.Path))
	buf = strconv.AppendUint(buf, id.Inode, 10)
	buf = strconv.AppendInt(buf, id.ModTime, 10)
	buf = append(buf, id.Path...)
	return Key(sha1.Sum(buf))
}
