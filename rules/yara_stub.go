//go:build !yara

package rules

func loadYara([]byte) (RuleSet, error) {
	return nil, ErrYaraUnsupported
}
