//go:build windows

package drive

import (
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"

	"iocscan/logger"
)

const maxStreamName = windows.MAX_PATH + 36

type win32FindStreamData struct {
	StreamSize int64
	StreamName [maxStreamName]uint16
}

type namedStream struct {
	name string
	size int64
}

var (
	k32           = windows.NewLazySystemDLL("kernel32.dll")
	procFindFirst = k32.NewProc("FindFirstStreamW")
	procFindNext  = k32.NewProc("FindNextStreamW")
	procFindClose = k32.NewProc("FindClose")
)

// alternateStreams lists the named $DATA streams of path. The unnamed
// stream is left out.
func alternateStreams(path string) []namedStream {
	streams, err := findStreams(path)
	if err != nil {
		logger.Debugf("Cannot list streams of %s: %v", path, err)
	}
	return streams
}

func findStreams(path string) ([]namedStream, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}

	var data win32FindStreamData
	handle, _, err := procFindFirst.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(0),
		uintptr(unsafe.Pointer(&data)),
		uintptr(0),
	)
	if handle == uintptr(windows.InvalidHandle) {
		if err == windows.ERROR_HANDLE_EOF || err == windows.ERROR_FILE_NOT_FOUND {
			return nil, nil
		}
		return nil, err
	}
	defer procFindClose.Call(handle)

	var streams []namedStream
	for {
		name := windows.UTF16ToString(data.StreamName[:])
		if name != "" && name != "::$DATA" {
			streams = append(streams, namedStream{name: normalizeStreamName(name), size: data.StreamSize})
		}
		r1, _, err := procFindNext.Call(handle, uintptr(unsafe.Pointer(&data)))
		if r1 == 0 {
			if err == windows.ERROR_HANDLE_EOF {
				break
			}
			return streams, err
		}
	}
	return streams, nil
}

func normalizeStreamName(name string) string {
	name = strings.TrimPrefix(name, ":")
	return strings.TrimSuffix(name, ":$DATA")
}
