package scanner

import (
	"context"
	"time"

	"iocscan/config"
	"iocscan/drive"
	"iocscan/index"
	"iocscan/logger"
	"iocscan/utils"
)

// IndexScanner records every eligible stream in the change-detection index
// and hashes only the streams the previous snapshot does not know.
type IndexScanner struct {
	cfg    config.ScanConfig
	policy Policy
	index  *index.Index
	start  time.Time

	hashed int
}

func NewIndexScanner(cfg config.ScanConfig, ix *index.Index) *IndexScanner {
	return &IndexScanner{
		cfg:    cfg,
		policy: NewPolicy(cfg),
		index:  ix,
	}
}

func (s *IndexScanner) Name() string { return "index" }

func (s *IndexScanner) Init(ctx context.Context) error {
	s.start = time.Now()
	return nil
}

func (s *IndexScanner) Process(mountpoint string, f drive.File) {
	if !s.policy.CanScan(f) {
		return
	}
	path := utils.ToSlash(f.Path())
	for _, st := range f.Streams() {
		suffix := st.Suffix()
		id := index.Identity{
			Inode:   st.Inode,
			ModTime: unixNanos(st.ModTime),
			Path:    path + suffix,
		}
		rec := index.Record{
			Mountpoint: mountpoint,
			Path:       path,
			Stream:     suffix,
		}
		if !s.index.HasPrior(id) && s.policy.UnderLimit(st.Size) {
			fp, err := f.Fingerprint(st.Name)
			if err != nil {
				// Left out of the snapshot so the next run hashes it again.
				logger.Warnf("Failed to hash %s%s: %v", f.Path(), suffix, err)
				continue
			}
			rec.MD5 = fp.MD5
			rec.SHA1 = fp.SHA1
			rec.SHA256 = fp.SHA256
			rec.Entropy = float32(fp.Entropy)
			s.hashed++
		}
		s.index.Record(id, rec)
	}
}

func (s *IndexScanner) Finalize() (State, []Detection) {
	written, err := s.index.Persist()
	if err != nil {
		logger.Errorf("Failed to persist index %s: %v", s.index.Path(), err)
	}
	logger.WithFields(map[string]interface{}{
		"entries": s.index.Len(),
		"changes": s.index.Changes(),
		"hashed":  s.hashed,
		"written": written,
	}).Infof("Indexed in %s", time.Since(s.start).Round(time.Millisecond))
	return State{}, []Detection{}
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
