package fuzzy

import (
	"bufio"
	"fmt"
	"io"

	"github.com/glaslos/tlsh"
)

// tlshMinSize is the shortest input TLSH digests.
const tlshMinSize = 50

// TLSHHasher digests streams with TLSH.
type TLSHHasher struct{}

func (TLSHHasher) Name() string { return "tlsh" }

func (TLSHHasher) MinSize() int64 { return tlshMinSize }

// HashReader also fails for inputs too uniform for TLSH.
func (TLSHHasher) HashReader(r io.Reader) (string, error) {
	digest, err := tlsh.HashReader(bufio.NewReader(r))
	if err != nil {
		return "", fmt.Errorf("tlsh: %w", err)
	}
	return digest.String(), nil
}

func init() {
	Register(TLSHHasher{})
}
