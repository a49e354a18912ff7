package drive

import (
	"io/fs"
	"os"
	"path/filepath"
)

type walker interface {
	Walk(startPath string, fn fs.WalkDirFunc) error
}

// fastWalker is a stack-based depth-first walk. Children are visited in
// lexical order; fs.SkipDir on a directory skips its contents.
type fastWalker struct{}

func (w fastWalker) Walk(startPath string, fn fs.WalkDirFunc) error {
	info, err := os.Lstat(startPath)
	if err != nil {
		return fn(startPath, nil, err)
	}
	root := fs.FileInfoToDirEntry(info)
	type item struct {
		path  string
		entry fs.DirEntry
	}
	stack := []item{{path: startPath, entry: root}}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(current.path, current.entry, nil); err != nil {
			if err == fs.SkipDir {
				continue
			}
			return err
		}
		if !current.entry.IsDir() {
			continue
		}

		entries, err := os.ReadDir(current.path)
		if err != nil {
			if ferr := fn(current.path, current.entry, err); ferr != nil && ferr != fs.SkipDir {
				return ferr
			}
			continue
		}
		for i := len(entries) - 1; i >= 0; i-- {
			child := entries[i]
			stack = append(stack, item{
				path:  filepath.Join(current.path, child.Name()),
				entry: child,
			})
		}
	}
	return nil
}
