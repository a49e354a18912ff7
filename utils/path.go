package utils

import (
	"path/filepath"
	"strings"
)

// ToSlash converts backslashes to forward slashes regardless of the host OS.
func ToSlash(path string) string {
	return strings.ReplaceAll(filepath.ToSlash(path), `\`, "/")
}

// StripDriveLetter removes a leading "X:" from a slash path.
func StripDriveLetter(path string) string {
	if len(path) >= 2 && path[1] == ':' && isLetter(path[0]) {
		return path[2:]
	}
	return path
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// NormalizeScanPath is the form exclusion prefixes are matched against:
// forward slashes, and no drive letter when windows is set.
func NormalizeScanPath(path string, windows bool) string {
	path = ToSlash(path)
	if windows {
		path = StripDriveLetter(path)
	}
	return path
}

// HasAnyPrefix reports whether path starts with one of prefixes. Empty
// prefixes never match.
func HasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// LongestOwner returns the mountpoint in mounts that most specifically
// contains path, or "" when none does.
func LongestOwner(path string, mounts []string) string {
	path = ToSlash(path)
	best := ""
	for _, m := range mounts {
		mount := ToSlash(m)
		if !withinSlash(path, mount) {
			continue
		}
		if len(mount) > len(best) {
			best = m
		}
	}
	return best
}

func withinSlash(path, mount string) bool {
	if mount == "" {
		return false
	}
	if strings.EqualFold(path, mount) {
		return true
	}
	prefix := mount
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return len(path) >= len(prefix) && strings.EqualFold(path[:len(prefix)], prefix)
}
