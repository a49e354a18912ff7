package scanner

import (
	"context"
	"fmt"
	"io"
	"time"

	"iocscan/config"
	"iocscan/drive"
	"iocscan/fuzzy"
	"iocscan/logger"
	"iocscan/rules"
	"iocscan/store"
)

// RulesKind is the store kind rule blobs are published under.
const RulesKind = "http_blob"

// RuleLoadError reports that the rule set could not be obtained. The
// scanner keeps running without rules and only counts streams.
type RuleLoadError struct {
	Rules string
	Err   error
}

func (e *RuleLoadError) Error() string {
	return fmt.Sprintf("cannot load rules %s: %v", e.Rules, e.Err)
}

func (e *RuleLoadError) Unwrap() error { return e.Err }

type SignatureScanner struct {
	cfg    config.ScanConfig
	policy Policy
	store  store.Store
	fuzzy  []fuzzy.Hasher
	times  func(path string) (drive.Times, error)

	rules   rules.RuleSet
	version string
	start   time.Time

	scanCount   int
	detectCount int
	report      []Detection
}

type SignatureOption func(*SignatureScanner)

// WithFuzzyHashers adds the given similarity digests to every detection.
func WithFuzzyHashers(hashers ...fuzzy.Hasher) SignatureOption {
	return func(s *SignatureScanner) {
		s.fuzzy = append(s.fuzzy, hashers...)
	}
}

// WithRuleSet installs an already compiled rule set; Init then skips the
// store.
func WithRuleSet(rs rules.RuleSet, version string) SignatureOption {
	return func(s *SignatureScanner) {
		s.rules = rs
		s.version = version
	}
}

func NewSignatureScanner(cfg config.ScanConfig, st store.Store, opts ...SignatureOption) *SignatureScanner {
	s := &SignatureScanner{
		cfg:    cfg,
		policy: NewPolicy(cfg),
		store:  st,
		times:  drive.StatTimes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SignatureScanner) Name() string { return "signature" }

func (s *SignatureScanner) Init(ctx context.Context) error {
	s.start = time.Now()
	if s.rules != nil {
		return nil
	}
	if s.store == nil {
		return &RuleLoadError{Rules: s.cfg.RulesFile, Err: store.ErrNotFound}
	}

	blob, err := s.store.Fetch(ctx, RulesKind, s.cfg.RulesFile)
	if err == nil && len(blob) == 0 {
		err = store.ErrNotFound
	}
	if err != nil {
		logger.Errorf("Cannot get rules %s: %v", s.cfg.RulesFile, err)
		return &RuleLoadError{Rules: s.cfg.RulesFile, Err: err}
	}
	rs, err := rules.Load(blob)
	if err != nil {
		logger.Errorf("Cannot load rules %s: %v", s.cfg.RulesFile, err)
		return &RuleLoadError{Rules: s.cfg.RulesFile, Err: err}
	}
	s.rules = rs
	s.version = rules.Version(blob)
	logger.Infof("%d signatures loaded from %s (version %s)", rs.Count(), s.cfg.RulesFile, s.version)
	return nil
}

func (s *SignatureScanner) Process(mountpoint string, f drive.File) {
	if !s.policy.CanScan(f) {
		return
	}
	for _, st := range f.Streams() {
		if !s.policy.UnderLimit(st.Size) {
			continue
		}
		if f.IsDeleted() {
			logger.Debugf("%s%s (deleted)", f.Path(), st.Suffix())
		} else {
			logger.Debugf("%s%s", f.Path(), st.Suffix())
		}

		s.scanCount++
		if s.rules == nil {
			continue
		}
		matches, err := f.ScanRules(s.rules, st.Name, s.cfg.FastScan)
		if err != nil {
			logger.Warnf("Failed to match rules on %s%s: %v", f.Path(), st.Suffix(), err)
			continue
		}
		if len(matches) == 0 {
			continue
		}
		s.detectCount += len(matches)

		base := s.describe(f, st)
		for _, m := range matches {
			d := base
			d.Rule = m.ID()
			d.Tags = append([]string(nil), m.Tags...)
			if base.FuzzyHashes != nil {
				d.FuzzyHashes = make(map[string]string, len(base.FuzzyHashes))
				for k, v := range base.FuzzyHashes {
					d.FuzzyHashes[k] = v
				}
			}
			s.report = append(s.report, d)
		}
		logger.WithFields(map[string]interface{}{
			"path":    f.Path(),
			"stream":  st.Name,
			"matches": len(matches),
		}).Info("Detection")
	}
}

// describe gathers the fields shared by every detection on one stream.
func (s *SignatureScanner) describe(f drive.File, st drive.Stream) Detection {
	d := Detection{
		FilePath:  f.Path(),
		Stream:    st.Name,
		Timestamp: s.cfg.Timestamp,
		Deleted:   f.IsDeleted(),
		Extra:     s.cfg.TaskID,
	}

	fp, err := f.Fingerprint(st.Name)
	if err != nil {
		logger.Warnf("Failed to hash %s%s: %v", f.Path(), st.Suffix(), err)
	} else {
		d.MD5 = fp.MD5Hex()
		d.SHA1 = fp.SHA1Hex()
		d.SHA256 = fp.SHA256Hex()
		d.Entropy = fp.Entropy
	}

	if mime, err := drive.MIMEType(f, st.Name); err == nil {
		d.MIMEType = mime
	}

	if !f.IsDeleted() && s.times != nil {
		if ts, err := s.times(f.Path()); err == nil {
			if !ts.Modified.IsZero() {
				d.Modified = ts.Modified.UTC().Format(time.RFC3339)
			}
			if !ts.Created.IsZero() {
				d.Created = ts.Created.UTC().Format(time.RFC3339)
			}
		}
	}

	for _, h := range s.fuzzy {
		sum, err := fuzzy.HashStream(h, st.Size, func() (io.ReadCloser, error) { return f.Open(st.Name) })
		if err != nil {
			logger.Debugf("Fuzzy hash %s failed for %s: %v", h.Name(), f.Path(), err)
			continue
		}
		if d.FuzzyHashes == nil {
			d.FuzzyHashes = make(map[string]string)
		}
		d.FuzzyHashes[h.Name()] = sum
	}
	return d
}

func (s *SignatureScanner) Finalize() (State, []Detection) {
	var execTime float64
	if !s.start.IsZero() {
		execTime = time.Since(s.start).Seconds()
	}
	state := State{
		"extra":         taskExtra(s.cfg.TaskID),
		"rules":         s.cfg.RulesFile,
		"rules_version": s.version,
		"exec_time":     execTime,
		"scan_count":    s.scanCount,
		"detect_count":  s.detectCount,
		"timestamp":     s.cfg.Timestamp,
	}
	logger.WithFields(map[string]interface{}{
		"rules":        s.cfg.RulesFile,
		"scan_count":   s.scanCount,
		"detect_count": s.detectCount,
		"exec_time":    execTime,
	}).Info("Scan completed")

	if err := s.Close(); err != nil {
		logger.Warnf("Failed to release rules: %v", err)
	}

	report := s.report
	if report == nil {
		report = []Detection{}
	}
	return state, report
}

// Close releases the rule set. Finalize calls it; a run that stops before
// finalizing calls it directly.
func (s *SignatureScanner) Close() error {
	if s.rules == nil {
		return nil
	}
	err := s.rules.Close()
	s.rules = nil
	return err
}

// taskExtra is the task id, or nil when the run has none.
func taskExtra(taskID string) any {
	if taskID == "" {
		return nil
	}
	return taskID
}
