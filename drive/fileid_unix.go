//go:build !windows

package drive

import (
	"os"
	"syscall"
)

func fileID(path string, info os.FileInfo) uint64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok || stat == nil {
		return 0
	}
	return uint64(stat.Ino)
}
