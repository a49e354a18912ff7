package drive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"

	"iocscan/logger"
	"iocscan/utils"
)

// pseudoFilesystems never hold regular files worth scanning.
var pseudoFilesystems = map[string]bool{
	"autofs": true, "binfmt_misc": true, "bpf": true, "cgroup": true,
	"cgroup2": true, "configfs": true, "debugfs": true, "devpts": true,
	"devtmpfs": true, "efivarfs": true, "fusectl": true, "hugetlbfs": true,
	"mqueue": true, "nsfs": true, "proc": true, "pstore": true,
	"rpc_pipefs": true, "securityfs": true, "selinuxfs": true, "sysfs": true,
	"tracefs": true,
}

// LocalManager exposes the mounted filesystems of this host.
type LocalManager struct {
	fixed []Partition
	// mounts is every mountpoint seen by the last listing; a drive does not
	// descend into another drive's mountpoint.
	mounts []string
}

type LocalOption func(*LocalManager)

// WithPartitions replaces partition discovery with a fixed list.
func WithPartitions(parts ...Partition) LocalOption {
	return func(m *LocalManager) {
		m.fixed = append([]Partition(nil), parts...)
	}
}

func NewLocalManager(opts ...LocalOption) *LocalManager {
	m := &LocalManager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListAvailable returns one partition per mountpoint, in listing order,
// skipping pseudo filesystems.
func (m *LocalManager) ListAvailable(ctx context.Context) ([]Partition, error) {
	var parts []Partition
	if m.fixed != nil {
		parts = append(parts, m.fixed...)
	} else {
		stats, err := disk.PartitionsWithContext(ctx, true)
		if err != nil && len(stats) == 0 {
			return nil, fmt.Errorf("list partitions: %w", err)
		}
		if err != nil {
			logger.Warnf("Partial partition listing: %v", err)
		}
		for _, s := range stats {
			parts = append(parts, Partition{Device: s.Device, Mountpoint: s.Mountpoint, Fstype: s.Fstype})
		}
	}

	seen := make(map[string]bool, len(parts))
	out := make([]Partition, 0, len(parts))
	for _, p := range parts {
		if p.Mountpoint == "" || seen[p.Mountpoint] || pseudoFilesystems[strings.ToLower(p.Fstype)] {
			continue
		}
		seen[p.Mountpoint] = true
		out = append(out, p)
	}
	m.mounts = m.mounts[:0]
	for _, p := range out {
		m.mounts = append(m.mounts, p.Mountpoint)
	}
	return out, nil
}

func (m *LocalManager) Open(device, mountpoint string) (Drive, error) {
	info, err := os.Stat(mountpoint)
	if err != nil {
		return nil, fmt.Errorf("open drive %s: %w", mountpoint, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open drive %s: not a directory", mountpoint)
	}
	mounts := m.mounts
	if len(mounts) == 0 {
		mounts = []string{mountpoint}
	}
	return &localDrive{
		device:     device,
		mountpoint: mountpoint,
		mounts:     append([]string(nil), mounts...),
		walker:     fastWalker{},
	}, nil
}

type localDrive struct {
	device     string
	mountpoint string
	mounts     []string
	walker     walker
}

func (d *localDrive) Device() string     { return d.device }
func (d *localDrive) Mountpoint() string { return d.mountpoint }

// ownedRoots keeps the roots this drive is the most specific mount for, so
// that each root is walked by exactly one drive.
func (d *localDrive) ownedRoots(roots []string) []string {
	if len(roots) == 0 {
		return []string{d.mountpoint}
	}
	var owned []string
	for _, root := range roots {
		if utils.LongestOwner(root, d.mounts) == d.mountpoint {
			owned = append(owned, root)
		}
	}
	sort.Strings(owned)
	return owned
}

func (d *localDrive) isForeignMount(path string) bool {
	for _, m := range d.mounts {
		if m != d.mountpoint && filepath.Clean(m) == filepath.Clean(path) {
			return true
		}
	}
	return false
}

func (d *localDrive) EnumerateFiles(roots []string, prune PruneFunc, fn func(File) error) error {
	for _, root := range d.ownedRoots(roots) {
		err := d.walker.Walk(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				logger.Debugf("Cannot read %s: %v", path, err)
				if entry != nil && entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if entry.IsDir() {
				if path != root && d.isForeignMount(path) {
					return fs.SkipDir
				}
				if prune != nil && !prune(path) {
					return fs.SkipDir
				}
			} else if !entry.Type().IsRegular() {
				return nil
			}

			f, statErr := newLocalFile(path, entry)
			if statErr != nil {
				logger.Debugf("Cannot stat %s: %v", path, statErr)
				return nil
			}
			if err := fn(f); err != nil {
				return err
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
