package rules

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

const (
	ConditionAny = "any"
	ConditionAll = "all"
)

// LiteralRule fires when its byte patterns occur in the scanned content.
type LiteralRule struct {
	Namespace string   `json:"namespace"`
	Name      string   `json:"name"`
	Tags      []string `json:"tags,omitempty"`
	Strings   []string `json:"strings,omitempty"`
	Hex       []string `json:"hex,omitempty"`
	Condition string   `json:"condition,omitempty"`
}

type literalDocument struct {
	Rules []LiteralRule `json:"rules"`
}

type compiledRule struct {
	match    Match
	patterns []int
	all      bool
}

// LiteralSet matches every pattern of every rule in a single Aho-Corasick
// pass.
type LiteralSet struct {
	rules   []compiledRule
	matcher *ahocorasick.Matcher
}

// LoadLiteral parses a JSON rule document.
func LoadLiteral(data []byte) (*LiteralSet, error) {
	var doc literalDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse literal rules: %w", err)
	}
	return CompileLiteral(doc.Rules)
}

// CompileLiteral builds a set from rules. Identical patterns are shared.
func CompileLiteral(rules []LiteralRule) (*LiteralSet, error) {
	set := &LiteralSet{}
	var dictionary [][]byte
	slots := make(map[string]int)

	slot := func(p []byte) int {
		if idx, ok := slots[string(p)]; ok {
			return idx
		}
		idx := len(dictionary)
		slots[string(p)] = idx
		dictionary = append(dictionary, p)
		return idx
	}

	for i, r := range rules {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("rule %d: missing name", i)
		}
		ns := r.Namespace
		if ns == "" {
			ns = "default"
		}
		cond := strings.ToLower(strings.TrimSpace(r.Condition))
		switch cond {
		case "", ConditionAny, ConditionAll:
		default:
			return nil, fmt.Errorf("rule %s: unsupported condition %q", r.Name, r.Condition)
		}

		cr := compiledRule{
			match: Match{Namespace: ns, Rule: r.Name, Tags: r.Tags},
			all:   cond == ConditionAll,
		}
		for _, s := range r.Strings {
			if s == "" {
				continue
			}
			cr.patterns = append(cr.patterns, slot([]byte(s)))
		}
		for _, h := range r.Hex {
			raw, err := hex.DecodeString(strings.ReplaceAll(h, " ", ""))
			if err != nil {
				return nil, fmt.Errorf("rule %s: bad hex pattern %q: %w", r.Name, h, err)
			}
			if len(raw) == 0 {
				continue
			}
			cr.patterns = append(cr.patterns, slot(raw))
		}
		if len(cr.patterns) == 0 {
			return nil, fmt.Errorf("rule %s: no patterns", r.Name)
		}
		set.rules = append(set.rules, cr)
	}
	if len(dictionary) > 0 {
		set.matcher = ahocorasick.NewMatcher(dictionary)
	}
	return set, nil
}

func (s *LiteralSet) ScanFile(path string, fast bool) ([]Match, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s.ScanMem(data, fast)
}

// ScanMem returns matching rules in declaration order.
func (s *LiteralSet) ScanMem(data []byte, _ bool) ([]Match, error) {
	if s.matcher == nil || len(data) == 0 {
		return nil, nil
	}
	hits := s.matcher.MatchThreadSafe(data)
	if len(hits) == 0 {
		return nil, nil
	}
	seen := make(map[int]bool, len(hits))
	for _, idx := range hits {
		seen[idx] = true
	}

	var matches []Match
	for _, r := range s.rules {
		if r.fires(seen) {
			matches = append(matches, r.match)
		}
	}
	return matches, nil
}

func (r compiledRule) fires(seen map[int]bool) bool {
	for _, p := range r.patterns {
		if r.all && !seen[p] {
			return false
		}
		if !r.all && seen[p] {
			return true
		}
	}
	return r.all
}

func (s *LiteralSet) Count() int { return len(s.rules) }

func (s *LiteralSet) Close() error { return nil }
