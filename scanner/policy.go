package scanner

import (
	"strings"

	"iocscan/config"
	"iocscan/drive"
)

// Policy is the file gate both scanners apply. Each scanner holds its own
// copy taken from the run configuration.
type Policy struct {
	extensions     map[string]struct{}
	excludeFiles   map[string]struct{}
	includeDeleted bool
	maxSize        int64
}

func NewPolicy(cfg config.ScanConfig) Policy {
	p := Policy{
		includeDeleted: cfg.IncludeDeleted,
		maxSize:        cfg.MaxSizeBytes(),
	}
	if len(cfg.ScanExtensions) > 0 {
		p.extensions = make(map[string]struct{}, len(cfg.ScanExtensions))
		for _, ext := range cfg.ScanExtensions {
			p.extensions[strings.ToLower(ext)] = struct{}{}
		}
	}
	p.excludeFiles = make(map[string]struct{}, len(cfg.ExcludeFiles))
	for _, name := range cfg.ExcludeFiles {
		p.excludeFiles[name] = struct{}{}
	}
	return p
}

// CanScan rejects directories, deleted files unless they are included,
// extensions outside a non-empty allow-list and excluded file names.
func (p Policy) CanScan(f drive.File) bool {
	if f.IsDir() {
		return false
	}
	if f.IsDeleted() && !p.includeDeleted {
		return false
	}
	if p.extensions != nil {
		if _, ok := p.extensions[strings.ToLower(f.Ext())]; !ok {
			return false
		}
	}
	if _, ok := p.excludeFiles[f.Name()]; ok {
		return false
	}
	return true
}

// UnderLimit reports whether a stream of size bytes may be read. The limit
// itself is excluded.
func (p Policy) UnderLimit(size int64) bool {
	return size < p.maxSize
}
