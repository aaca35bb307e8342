package encoding

import (
	"io/fs"
	"os"
)

// FileSystem is the filesystem surface the runner touches.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	Remove(path string) error
	MkdirAll(path string, perm fs.FileMode) error
	ReadDir(dir string) ([]fs.DirEntry, error)
}

// OSFileSystem is the local filesystem.
type OSFileSystem struct{}

func (OSFileSystem) Stat(path string) (fs.FileInfo, error)        { return os.Stat(path) }
func (OSFileSystem) Remove(path string) error                     { return os.Remove(path) }
func (OSFileSystem) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }
func (OSFileSystem) ReadDir(dir string) ([]fs.DirEntry, error)    { return os.ReadDir(dir) }
