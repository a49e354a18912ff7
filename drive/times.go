package drive

import (
	"os"
	"time"

	"github.com/djherbis/times"
)

// modTime prefers the precise timestamp from times.Stat; the FileInfo value
// is the fallback.
func modTime(path string, info os.FileInfo) time.Time {
	ts, err := times.Stat(path)
	if err != nil {
		return info.ModTime()
	}
	return ts.ModTime()
}

// Times are the timestamps reported alongside a detection. Zero values mean
// the platform does not record them.
type Times struct {
	Modified time.Time
	Changed  time.Time
	Created  time.Time
}

// StatTimes reads the timestamps of a file on the local filesystem.
func StatTimes(path string) (Times, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return Times{}, err
	}
	out := Times{Modified: ts.ModTime()}
	if ts.HasChangeTime() {
		out.Changed = ts.ChangeTime()
	}
	if ts.HasBirthTime() {
		out.Created = ts.BirthTime()
	}
	return out, nil
}
