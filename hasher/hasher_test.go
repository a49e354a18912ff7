package hasher

import (
	"bytes"
	"errors"
	"math"
	"os"
	"strings"
	"testing"

	"iocscan/logger"
)

func TestComputeFile(t *testing.T) {
	logger.Init("info")
	tmp, err := os.CreateTemp("", "hash-test")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer os.Remove(tmp.Name())
	tmp.WriteString("hello world")
	tmp.Close()

	fp, err := ComputeFile(tmp.Name())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if fp.MD5Hex() != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("md5 mismatch: %s", fp.MD5Hex())
	}
	if fp.SHA1Hex() != "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed" {
		t.Errorf("sha1 mismatch: %s", fp.SHA1Hex())
	}
	if fp.SHA256Hex() != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Errorf("sha256 mismatch: %s", fp.SHA256Hex())
	}
	if fp.Entropy <= 0 || fp.Entropy > 8 {
		t.Errorf("entropy out of range: %f", fp.Entropy)
	}
}

func TestComputeFileMissing(t *testing.T) {
	if _, err := ComputeFile("/nonexistent/hash-test"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestComputeLargeInputMatchesEntropy(t *testing.T) {
	data := bytes.Repeat([]byte("abcd"), 200*1024)
	fp, err := Compute(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if math.Abs(fp.Entropy-2) > 1e-9 {
		t.Fatalf("expected entropy 2, got %f", fp.Entropy)
	}
}

func entropyOf(t *testing.T, data []byte) float64 {
	t.Helper()
	fp, err := Compute(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	return fp.Entropy
}

func TestEntropyEdges(t *testing.T) {
	if entropyOf(t, nil) != 0 {
		t.Fatal("empty input should have zero entropy")
	}
	if entropyOf(t, []byte(strings.Repeat("a", 64))) != 0 {
		t.Fatal("constant input should have zero entropy")
	}
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	if got := entropyOf(t, all); math.Abs(got-8) > 1e-9 {
		t.Fatalf("uniform bytes should have entropy 8, got %f", got)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestComputeReadError(t *testing.T) {
	if _, err := Compute(failingReader{}, -1); err == nil {
		t.Fatal("expected read error")
	}
}
