package storage

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/materials-commons/tierstore/pkg/dirlock"
	"github.com/materials-commons/tierstore/pkg/dsid"
	"github.com/spf13/afero"
)

// countingFs counts every call made to the wrapped filesystem.
type countingFs struct {
	afero.Fs
	calls atomic.Int64
}

func newCountingFs() *countingFs {
	return &countingFs{Fs: afero.NewOsFs()}
}

func (c *countingFs) Create(name string) (afero.File, error) {
	c.calls.Add(1)
	return c.Fs.Create(name)
}

func (c *countingFs) Mkdir(name string, perm os.FileMode) error {
	c.calls.Add(1)
	return c.Fs.Mkdir(name, perm)
}

func (c *countingFs) MkdirAll(path string, perm os.FileMode) error {
	c.calls.Add(1)
	return c.Fs.MkdirAll(path, perm)
}

func (c *countingFs) Open(name string) (afero.File, error) {
	c.calls.Add(1)
	return c.Fs.Open(name)
}

func (c *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	c.calls.Add(1)
	return c.Fs.OpenFile(name, flag, perm)
}

func (c *countingFs) Remove(name string) error {
	c.calls.Add(1)
	return c.Fs.Remove(name)
}

func (c *countingFs) RemoveAll(path string) error {
	c.calls.Add(1)
	return c.Fs.RemoveAll(path)
}

func (c *countingFs) Rename(oldname, newname string) error {
	c.calls.Add(1)
	return c.Fs.Rename(oldname, newname)
}

func (c *countingFs) Stat(name string) (os.FileInfo, error) {
	c.calls.Add(1)
	return c.Fs.Stat(name)
}

func (c *countingFs) Chmod(name string, mode os.FileMode) error {
	c.calls.Add(1)
	return c.Fs.Chmod(name, mode)
}

func (c *countingFs) Chown(name string, uid, gid int) error {
	c.calls.Add(1)
	return c.Fs.Chown(name, uid, gid)
}

func (c *countingFs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	c.calls.Add(1)
	return c.Fs.Chtimes(name, atime, mtime)
}

type countingLocker struct {
	dirlock.Locker
	acquires atomic.Int64
}

func (c *countingLocker) Acquire(dir string, mode dirlock.Mode) (*dirlock.Handle, error) {
	c.acquires.Add(1)
	return c.Locker.Acquire(dir, mode)
}

// failingRemoveFs fails Remove on a single path with EIO.
type failingRemoveFs struct {
	afero.Fs
	path string
}

func (f *failingRemoveFs) Remove(name string) error {
	if filepath.Clean(name) == filepath.Clean(f.path) {
		return &os.PathError{Op: "remove", Path: name, Err: syscall.EIO}
	}
	return f.Fs.Remove(name)
}

// vanishingParentLocker removes the parent of the locked path before the
// first n acquisitions, the way a concurrent prune of an empty directory
// would.
type vanishingParentLocker struct {
	dirlock.Locker
	n        int
	acquires atomic.Int64
}

func (l *vanishingParentLocker) Acquire(dir string, mode dirlock.Mode) (*dirlock.Handle, error) {
	if int(l.acquires.Add(1)) <= l.n {
		_ = os.Remove(filepath.Dir(dir))
	}
	return l.Locker.Acquire(dir, mode)
}

func testIdentity(dataset string) dsid.Identity {
	return dsid.Identity{
		Facility:      "HZB",
		Investigation: "18201234-ST",
		Visit:         "1.1-P",
		Dataset:       dataset,
	}
}

const testVisitDir = "HZB/182/18201234-ST/1.1-P/data"
