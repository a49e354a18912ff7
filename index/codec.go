package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// Magic opens every decompressed snapshot payload.
	Magic = "SONEINDX"
	// FormatVersion is the only payload version this package reads and writes.
	FormatVersion uint8 = 1

	KeySize    = 20
	MD5Size    = 16
	SHA1Size   = 20
	SHA256Size = 32

	// Magic (8) + Version (1) + Count (4)
	headerSize = len(Magic) + 1 + 4
)

// FormatError reports a snapshot payload that cannot be decoded.
type FormatError struct {
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("index format error at offset %d: %s", e.Offset, e.Reason)
}

var errNulInField = errors.New("text field contains NUL byte")

// Entry pairs a snapshot record with its identity key.
type Entry struct {
	Key    Key
	Record Record
}

// Record is one indexed (file, stream) pair. A zero digest means the digest
// was not computed.
type Record struct {
	Mountpoint string
	Path       string
	Stream     string
	MD5        [MD5Size]byte
	SHA1       [SHA1Size]byte
	SHA256     [SHA256Size]byte
	Entropy    float32
}

// HasDigests reports whether any digest of r was computed.
func (r Record) HasDigests() bool {
	return r.MD5 != [MD5Size]byte{} || r.SHA1 != [SHA1Size]byte{} || r.SHA256 != [SHA256Size]byte{}
}

// Encode serializes entries in order into a version 1 payload.
func Encode(entries []Entry) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Grow(headerSize + len(entries)*128)

	buf.WriteString(Magic)
	buf.WriteByte(FormatVersion)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(entries))); err != nil {
		return nil, err
	}

	for i := range entries {
		e := &entries[i]
		buf.Write(e.Key[:])
		for _, field := range []string{e.Record.Mountpoint, e.Record.Path, e.Record.Stream} {
			if err := writeCString(buf, field); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
		}
		buf.Write(e.Record.MD5[:])
		buf.Write(e.Record.SHA1[:])
		buf.Write(e.Record.SHA256[:])
		if err := binary.Write(buf, binary.LittleEndian, math.Float32bits(e.Record.Entropy)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeCString(buf *bytes.Buffer, s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return errNulInField
	}
	buf.WriteString(s)
	buf.WriteByte(0)
	return nil
}

// Decode parses a whole payload. Bytes after the last record are ignored.
func Decode(data []byte) ([]Entry, error) {
	d := decoder{data: data}

	magic, err := d.take(len(Magic), "magic")
	if err != nil {
		return nil, err
	}
	if string(magic) != Magic {
		return nil, &FormatError{Offset: 0, Reason: fmt.Sprintf("bad magic %q", magic)}
	}
	version, err := d.take(1, "version")
	if err != nil {
		return nil, err
	}
	if version[0] != FormatVersion {
		return nil, &FormatError{Offset: len(Magic), Reason: fmt.Sprintf("unsupported version %d", version[0])}
	}
	rawCount, err := d.take(4, "record count")
	if err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint32(rawCount)

	// Each record is at least key + 3 NULs + digests + entropy bytes long.
	const minRecord = KeySize + 3 + MD5Size + SHA1Size + SHA256Size + 4
	capHint := int(count)
	if remaining := (len(data) - d.off) / minRecord; capHint > remaining {
		capHint = remaining
	}
	entries := make([]Entry, 0, capHint)

	for i := uint32(0); i < count; i++ {
		var e Entry
		raw, err := d.take(KeySize, "key")
		if err != nil {
			return nil, err
		}
		copy(e.Key[:], raw)
		if e.Record.Mountpoint, err = d.cstring("mountpoint"); err != nil {
			return nil, err
		}
		if e.Record.Path, err = d.cstring("path"); err != nil {
			return nil, err
		}
		if e.Record.Stream, err = d.cstring("stream"); err != nil {
			return nil, err
		}
		if raw, err = d.take(MD5Size, "md5"); err != nil {
			return nil, err
		}
		copy(e.Record.MD5[:], raw)
		if raw, err = d.take(SHA1Size, "sha1"); err != nil {
			return nil, err
		}
		copy(e.Record.SHA1[:], raw)
		if raw, err = d.take(SHA256Size, "sha256"); err != nil {
			return nil, err
		}
		copy(e.Record.SHA256[:], raw)
		if raw, err = d.take(4, "entropy"); err != nil {
			return nil, err
		}
		e.Record.Entropy = math.Float32frombits(binary.LittleEndian.Uint32(raw))
		entries = append(entries, e)
	}
	return entries, nil
}

type decoder struct {
	data []byte
	off  int
}

func (d *decoder) take(n int, field string) ([]byte, error) {
	if len(d.data)-d.off < n {
		return nil, &FormatError{Offset: d.off, Reason: fmt.Sprintf("truncated %s: need %d bytes, have %d", field, n, len(d.data)-d.off)}
	}
	out := d.data[d.off : d.off+n]
	d.off += n
	return out, nil
}

func (d *decoder) cstring(field string) (string, error) {
	end := bytes.IndexByte(d.data[d.off:], 0)
	if end < 0 {
		return "", &FormatError{Offset: d.off, Reason: fmt.Sprintf("unterminated %s", field)}
	}
	s := string(d.data[d.off : d.off+end])
	d.off += end + 1
	return s, nil
}
