//go:build yara

package rules

import (
	"bytes"
	"fmt"
	"time"

	"github.com/hillu/go-yara/v4"
)

const scanTimeout = 60 * time.Second

type yaraSet struct {
	rules *yara.Rules
	count int
}

func loadYara(blob []byte) (RuleSet, error) {
	compiled, err := yara.ReadRules(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("read compiled yara rules: %w", err)
	}
	return &yaraSet{rules: compiled, count: len(compiled.GetRules())}, nil
}

func scanFlags(fast bool) yara.ScanFlags {
	if fast {
		return yara.ScanFlagsFastMode
	}
	return 0
}

func (y *yaraSet) ScanFile(path string, fast bool) ([]Match, error) {
	var mr yara.MatchRules
	if err := y.rules.ScanFile(path, scanFlags(fast), scanTimeout, &mr); err != nil {
		return nil, fmt.Errorf("yara scan %s: %w", path, err)
	}
	return convertMatches(mr), nil
}

func (y *yaraSet) ScanMem(data []byte, fast bool) ([]Match, error) {
	var mr yara.MatchRules
	if err := y.rules.ScanMem(data, scanFlags(fast), scanTimeout, &mr); err != nil {
		return nil, fmt.Errorf("yara scan: %w", err)
	}
	return convertMatches(mr), nil
}

func convertMatches(mr yara.MatchRules) []Match {
	if len(mr) == 0 {
		return nil
	}
	out := make([]Match, 0, len(mr))
	for _, m := range mr {
		out = append(out, Match{Namespace: m.Namespace, Rule: m.Rule, Tags: m.Tags})
	}
	return out
}

func (y *yaraSet) Count() int { return y.count }

func (y *yaraSet) Close() error {
	if y.rules != nil {
		y.rules.Destroy()
		y.rules = nil
	}
	return nil
}
