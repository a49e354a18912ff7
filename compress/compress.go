// Package compress implements the snapshot compression layer: a 4-byte
// selector header naming the codec, followed by the codec's payload.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// HeaderSize is the length of the selector header in bytes.
const HeaderSize = 4

type Header [HeaderSize]byte

var (
	HeaderNone = Header{'N', 'O', 'N', 'E'}
	HeaderZlib = Header{'Z', 'L', 'I', 'B'}
	HeaderZstd = Header{'Z', 'S', 'T', 'D'}
	HeaderS2   = Header{'S', '2', '_', '_'}
)

// Codec compresses and decompresses whole buffers.
type Codec interface {
	Name() string
	Header() Header
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

var codecs = []Codec{noneCodec{}, zlibCodec{}, zstdCodec{}, s2Codec{}}

// Names lists the supported codec names.
func Names() []string {
	names := make([]string, 0, len(codecs))
	for _, c := range codecs {
		names = append(names, c.Name())
	}
	return names
}

// Get returns the codec registered under name.
func Get(name string) (Codec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range codecs {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unsupported compression: %q", name)
}

// FromHeader returns the codec selected by a snapshot header.
func FromHeader(hdr []byte) (Codec, error) {
	if len(hdr) != HeaderSize {
		return nil, fmt.Errorf("compression header must be %d bytes, got %d", HeaderSize, len(hdr))
	}
	for _, c := range codecs {
		h := c.Header()
		if bytes.Equal(h[:], hdr) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown compression header %q", hdr)
}

// Wrap compresses src and prefixes it with the codec header.
func Wrap(c Codec, src []byte) ([]byte, error) {
	payload, err := c.Compress(src)
	if err != nil {
		return nil, fmt.Errorf("%s compress: %w", c.Name(), err)
	}
	h := c.Header()
	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out, h[:]...)
	return append(out, payload...), nil
}

// Unwrap reads the selector header from data and decompresses the rest.
func Unwrap(data []byte) ([]byte, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("compressed data shorter than header (%d bytes)", len(data))
	}
	c, err := FromHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}
	out, err := c.Decompress(data[HeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("%s decompress: %w", c.Name(), err)
	}
	return out, nil
}

type noneCodec struct{}

func (noneCodec) Name() string   { return "none" }
func (noneCodec) Header() Header { return HeaderNone }

func (noneCodec) Compress(src []byte) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

func (noneCodec) Decompress(src []byte) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

type zlibCodec struct{}

func (zlibCodec) Name() string   { return "zlib" }
func (zlibCodec) Header() Header { return HeaderZlib }

func (zlibCodec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (zlibCodec) Decompress(src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type zstdCodec struct{}

func (zstdCodec) Name() string   { return "zstd" }
func (zstdCodec) Header() Header { return HeaderZstd }

func (zstdCodec) Compress(src []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
}

func (zstdCodec) Decompress(src []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(src, nil)
}

type s2Codec struct{}

func (s2Codec) Name() string   { return "s2" }
func (s2Codec) Header() Header { return HeaderS2 }

func (s2Codec) Compress(src []byte) ([]byte, error) {
	return s2.Encode(nil, src), nil
}

func (s2Codec) Decompress(src []byte) ([]byte, error) {
	return s2.Decode(nil, src)
}
