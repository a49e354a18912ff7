// Package scanner holds the per-file scanners the orchestrator drives: the
// signature scanner that matches rules and reports detections, and the
// index scanner that keeps the change-detection snapshot current.
package scanner

import (
	"context"

	"iocscan/drive"
)

// Scanner is offered every enumerated file of a run. Init is called once
// before the first Process and Finalize once after the last.
type Scanner interface {
	Name() string
	Init(ctx context.Context) error
	Process(mountpoint string, f drive.File)
	Finalize() (State, []Detection)
}

// State is the summary fragment a scanner contributes to the run state.
type State map[string]any

// Detection is one report entry: one rule matched on one stream.
type Detection struct {
	FilePath    string            `json:"filepath"`
	Stream      string            `json:"stream,omitempty"`
	MD5         string            `json:"md5"`
	SHA1        string            `json:"sha1"`
	SHA256      string            `json:"sha256"`
	Entropy     float64           `json:"entropy"`
	Rule        string            `json:"rule"`
	Tags        []string          `json:"tags,omitempty"`
	Timestamp   string            `json:"timestamp"`
	Deleted     bool              `json:"deleted,omitempty"`
	Extra       string            `json:"extra,omitempty"`
	MIMEType    string            `json:"mime_type,omitempty"`
	FuzzyHashes map[string]string `json:"fuzzy_hashes,omitempty"`
	Modified    string            `json:"modified,omitempty"`
	Created     string            `json:"created,omitempty"`
}
