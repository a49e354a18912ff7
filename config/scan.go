package config

import (
	"fmt"
	"runtime"
	"strings"
)

// ScanConfig is the per-run scan policy shared by the orchestrator and its
// scanners. It is not modified once a run starts.
type ScanConfig struct {
	MaxSize        int      `json:"MAX_SIZE"`
	ScanRoots      []string `json:"SCAN_ROOTS"`
	ScanExtensions []string `json:"SCAN_EXTENSIONS"`
	ExcludeFiles   []string `json:"EXCLUDE_FILES"`
	ExcludeDirs    []string `json:"EXCLUDE_DIRS"`
	RulesFile      string   `json:"RULES_FILE"`
	ReportingMode  string   `json:"REPORTING_MODE"`
	IncludeDeleted bool     `json:"INCLUDE_DELETED"`
	FastScan       bool     `json:"YARA_FASTSCAN_MODE"`
	TaskID         string   `json:"TASK_ID,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty"`
}

// MaxSizeBytes converts the MiB limit to bytes.
func (s ScanConfig) MaxSizeBytes() int64 {
	return int64(s.MaxSize) * 1024 * 1024
}

// Overrides carries caller supplied scan settings. Only non-zero values are
// applied by Merge.
type Overrides struct {
	MaxSize        int      `json:"max_size"`
	ScanRoots      []string `json:"scan_roots"`
	ScanExtensions []string `json:"scan_extensions"`
	ExcludeFiles   []string `json:"exclude_files"`
	ExcludeDirs    []string `json:"exclude_dirs"`
	RulesFile      string   `json:"rules_file"`
	ReportingMode  string   `json:"reporting_mode"`
	IncludeDeleted bool     `json:"include_deleted"`
	TaskID         string   `json:"task_id"`
	// Thorough disables the fast scan mode of the preset.
	Thorough bool `json:"thorough"`
}

const (
	PlatformWindows = "win32"
	PlatformUnix    = "unix"
	PlatformAndroid = "android"
)

// Platforms lists the known preset names.
func Platforms() []string {
	return []string{PlatformWindows, PlatformUnix, PlatformAndroid}
}

// DetectPlatform maps the running OS to a preset name.
func DetectPlatform() string {
	switch runtime.GOOS {
	case "windows":
		return PlatformWindows
	case "android":
		return PlatformAndroid
	default:
		return PlatformUnix
	}
}

// Preset returns a fresh copy of the defaults for platform.
func Preset(platform string) (ScanConfig, error) {
	base := ScanConfig{
		MaxSize:       256,
		RulesFile:     "yara_rules",
		ReportingMode: "standard",
		FastScan:      true,
	}
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case PlatformWindows:
		base.ScanExtensions = []string{".exe", ".dll", ".sys", ".scr"}
		base.ExcludeFiles = []string{"pagefile.sys", "hiberfil.sys", "swapfile.sys"}
		base.ExcludeDirs = []string{}
	case PlatformUnix:
		base.ExcludeFiles = []string{}
		base.ExcludeDirs = []string{"/proc", "/run", "/dev", ".git"}
	case PlatformAndroid:
		base.ScanRoots = []string{"/system", "/sdcard"}
		base.ExcludeFiles = []string{}
		base.ExcludeDirs = []string{"/proc", "/run", "/dev", "/sdcard/DCIM", "/sdcard/Android"}
	default:
		return ScanConfig{}, fmt.Errorf("unknown platform: %s", platform)
	}
	return base, nil
}

// Merge returns s with every truthy field of o applied.
func (s ScanConfig) Merge(o Overrides) ScanConfig {
	if o.MaxSize > 0 {
		s.MaxSize = o.MaxSize
	}
	if len(o.ScanRoots) > 0 {
		s.ScanRoots = append([]string(nil), o.ScanRoots...)
	}
	if len(o.ScanExtensions) > 0 {
		s.ScanExtensions = normalizeExtensions(o.ScanExtensions)
	}
	if len(o.ExcludeFiles) > 0 {
		s.ExcludeFiles = append([]string(nil), o.ExcludeFiles...)
	}
	if len(o.ExcludeDirs) > 0 {
		s.ExcludeDirs = append([]string(nil), o.ExcludeDirs...)
	}
	if o.RulesFile != "" {
		s.RulesFile = o.RulesFile
	}
	if o.ReportingMode != "" {
		s.ReportingMode = o.ReportingMode
	}
	if o.IncludeDeleted {
		s.IncludeDeleted = true
	}
	if o.TaskID != "" {
		s.TaskID = o.TaskID
	}
	if o.Thorough {
		s.FastScan = false
	}
	return s
}

func normalizeExtensions(items []string) []string {
	out := make([]string, 0, len(items))
	for _, ext := range items {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
