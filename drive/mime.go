package drive

import (
	"io"

	"github.com/h2non/filetype"
)

// sniffSize is how many leading bytes filetype needs to recognise any of
// its formats.
const sniffSize = 8192

// MIMEType sniffs the content type of a stream. Unknown content yields "".
func MIMEType(f File, stream string) (string, error) {
	r, err := f.Open(stream)
	if err != nil {
		return "", err
	}
	defer r.Close()

	head := make([]byte, sniffSize)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return "", nil
	}
	return kind.MIME.Value, nil
}
