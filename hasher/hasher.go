package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
)

const (
	hashBufferSmallSize      = 32 * 1024
	hashBufferLargeSize      = 128 * 1024
	hashLargeBufferThreshold = 256 * 1024
)

var hashBufferSmallPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSmallSize)
		return &buf
	},
}

var hashBufferLargePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferLargeSize)
		return &buf
	},
}

// Fingerprint holds the digests and byte entropy of one stream.
type Fingerprint struct {
	MD5     [md5.Size]byte
	SHA1    [sha1.Size]byte
	SHA256  [sha256.Size]byte
	Entropy float64
}

func (f Fingerprint) MD5Hex() string    { return hex.EncodeToString(f.MD5[:]) }
func (f Fingerprint) SHA1Hex() string   { return hex.EncodeToString(f.SHA1[:]) }
func (f Fingerprint) SHA256Hex() string { return hex.EncodeToString(f.SHA256[:]) }

// Compute reads r to the end once, feeding all three digests and the byte
// histogram. sizeHint selects the read buffer; pass -1 when unknown.
func Compute(r io.Reader, sizeHint int64) (Fingerprint, error) {
	var fp Fingerprint
	md5h := md5.New()
	sha1h := sha1.New()
	sha256h := sha256.New()
	var counts [256]uint64
	var total uint64

	bufferPool := &hashBufferSmallPool
	if sizeHint >= hashLargeBufferThreshold {
		bufferPool = &hashBufferLargePool
	}
	bufferPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufferPtr)
	buffer := *bufferPtr

	for {
		n, readErr := r.Read(buffer)
		if n > 0 {
			chunk := buffer[:n]
			md5h.Write(chunk)
			sha1h.Write(chunk)
			sha256h.Write(chunk)
			for _, b := range chunk {
				counts[b]++
			}
			total += uint64(n)
		}
		if readErr != nil {
			if readErr != io.EOF {
				return fp, readErr
			}
			break
		}
	}

	md5h.Sum(fp.MD5[:0])
	sha1h.Sum(fp.SHA1[:0])
	sha256h.Sum(fp.SHA256[:0])
	fp.Entropy = shannon(&counts, total)
	return fp, nil
}

// ComputeFile opens path and fingerprints its whole content.
func ComputeFile(path string) (Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	size := int64(-1)
	if info, statErr := file.Stat(); statErr == nil {
		size = info.Size()
	}
	fp, err := Compute(file, size)
	if err != nil {
		return fp, fmt.Errorf("hash %s: %w", path, err)
	}
	return fp, nil
}

func shannon(counts *[256]uint64, total uint64) float64 {
	if total == 0 {
		return 0
	}
	n := float64(total)
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}
