//go:build !windows

package systeminfo

import (
	"reflect"
	"testing"
)

func TestParseLines(t *testing.T) {
	data := []byte("\n# comment\nbash\n  coreutils  \n\n")
	got := parseLines(data)
	want := []string{"bash", "coreutils"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lines: got=%v want=%v", got, want)
	}
}

func TestParseSystemctlUnits(t *testing.T) {
	out := []byte("cron.service loaded active running Regular background program processing daemon\n" +
		"ssh.service  loaded active running OpenBSD Secure Shell server\n" +
		"broken\n")
	got := parseSystemctlUnits(out)
	want := []ServiceInfo{{Name: "cron.service", Status: "active"}, {Name: "ssh.service", Status: "active"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected services: got=%v want=%v", got, want)
	}
}

func TestParseLaunchctlList(t *testing.T) {
	out := []byte("PID\tStatus\tLabel\n412\t0\tcom.apple.Finder\n-\t0\tcom.apple.idle\n")
	got := parseLaunchctlList(out)
	want := []ServiceInfo{{Name: "com.apple.Finder", Status: "running"}, {Name: "com.apple.idle", Status: "stopped"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected services: got=%v want=%v", got, want)
	}
}
