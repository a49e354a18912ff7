// Package rules loads signature rule sets from the blobs published by the
// rule store and evaluates them against files and buffers.
package rules

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Match is one rule that fired.
type Match struct {
	Namespace string
	Rule      string
	Tags      []string
}

// ID renders the match as "<namespace>:<rule>".
func (m Match) ID() string {
	return m.Namespace + ":" + m.Rule
}

// RuleSet evaluates compiled rules. fast asks the engine to stop at the first
// hit of each string; engines without such a mode ignore it.
type RuleSet interface {
	ScanFile(path string, fast bool) ([]Match, error)
	ScanMem(data []byte, fast bool) ([]Match, error)
	Count() int
	Close() error
}

// yaraMagic opens every compiled YARA rules file.
var yaraMagic = []byte("YARA")

// ErrYaraUnsupported is returned for compiled YARA blobs when the binary was
// built without the yara tag.
var ErrYaraUnsupported = errors.New("compiled YARA rules require a build with the yara tag")

// Load picks the engine from the blob contents: compiled YARA rules or a
// literal rule document in JSON.
func Load(blob []byte) (RuleSet, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty rule blob")
	}
	if bytes.HasPrefix(blob, yaraMagic) {
		return loadYara(blob)
	}
	trimmed := bytes.TrimLeft(blob, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return LoadLiteral(trimmed)
	}
	head := blob
	if len(head) > 8 {
		head = head[:8]
	}
	return nil, fmt.Errorf("unrecognized rule blob starting with %q", head)
}

// Version fingerprints a rule blob so reports can name the rules they used.
func Version(blob []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(blob))
}
