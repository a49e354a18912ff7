//go:build !yara

package rules

import (
	"errors"
	"testing"
)

func TestCompiledYaraNeedsTag(t *testing.T) {
	_, err := Load([]byte("YARA\x0b\x00\x00\x00"))
	if !errors.Is(err, ErrYaraUnsupported) {
		t.Fatalf("expected ErrYaraUnsupported, got %v", err)
	}
}
