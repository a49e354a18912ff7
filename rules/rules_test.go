package rules

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleRules = `{
  "rules": [
    {"namespace": "malware", "name": "eicar", "strings": ["EICAR-STANDARD-ANTIVIRUS-TEST-FILE"]},
    {"namespace": "pe", "name": "mz_stub", "hex": ["4d 5a 90 00"], "tags": ["pe"]},
    {"name": "dropper", "strings": ["CreateRemoteThread", "VirtualAllocEx"], "condition": "all"}
  ]
}`

func TestLoadLiteralDispatch(t *testing.T) {
	set, err := Load([]byte("\n  " + sampleRules))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer set.Close()
	if set.Count() != 3 {
		t.Fatalf("expected 3 rules, got %d", set.Count())
	}
}

func TestLiteralScanMem(t *testing.T) {
	set, err := LoadLiteral([]byte(sampleRules))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	matches, err := set.ScanMem([]byte("\x4d\x5a\x90\x00 ... EICAR-STANDARD-ANTIVIRUS-TEST-FILE"), true)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(matches) != 2 || matches[0].ID() != "malware:eicar" || matches[1].ID() != "pe:mz_stub" {
		t.Fatalf("unexpected matches %+v", matches)
	}

	matches, _ = set.ScanMem([]byte("calls CreateRemoteThread only"), false)
	if len(matches) != 0 {
		t.Fatalf("all-condition rule fired on partial input: %+v", matches)
	}
	matches, _ = set.ScanMem([]byte("VirtualAllocEx then CreateRemoteThread"), false)
	if len(matches) != 1 || matches[0].ID() != "default:dropper" {
		t.Fatalf("unexpected matches %+v", matches)
	}

	if matches, _ := set.ScanMem(nil, true); matches != nil {
		t.Fatal("empty input should not match")
	}
}

func TestLiteralScanFile(t *testing.T) {
	set, _ := LoadLiteral([]byte(sampleRules))
	path := filepath.Join(t.TempDir(), "sample.bin")
	os.WriteFile(path, []byte("xxEICAR-STANDARD-ANTIVIRUS-TEST-FILExx"), 0644)
	matches, err := set.ScanFile(path, true)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(matches) != 1 || matches[0].Rule != "eicar" {
		t.Fatalf("unexpected matches %+v", matches)
	}
	if _, err := set.ScanFile(filepath.Join(t.TempDir(), "missing"), true); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCompileLiteralRejectsBadRules(t *testing.T) {
	cases := [][]LiteralRule{
		{{Strings: []string{"x"}}},
		{{Name: "r"}},
		{{Name: "r", Hex: []string{"zz"}}},
		{{Name: "r", Strings: []string{"x"}, Condition: "most"}},
	}
	for i, c := range cases {
		if _, err := CompileLiteral(c); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestLoadRejectsUnknownBlob(t *testing.T) {
	if _, err := Load(nil); err == nil {
		t.Fatal("expected error for empty blob")
	}
	if _, err := Load([]byte("rule x { condition: true }")); err == nil {
		t.Fatal("expected error for source rules")
	}
}

func TestVersionIsStable(t *testing.T) {
	a := Version([]byte(sampleRules))
	if a != Version([]byte(sampleRules)) || len(a) != 16 {
		t.Fatalf("unstable version %q", a)
	}
	if a == Version([]byte(sampleRules+" ")) {
		t.Fatal("different blobs share a version")
	}
}

func TestMatchID(t *testing.T) {
	m := Match{Namespace: "n", Rule: "r"}
	if m.ID() != "n:r" {
		t.Fatalf("got %s", m.ID())
	}
}
