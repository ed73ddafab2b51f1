package storage

import (
	"io"
	"os"
	"path"
	"time"

	"github.com/materials-commons/tierstore/pkg/clog"
	"github.com/materials-commons/tierstore/pkg/dirlock"
	"github.com/materials-commons/tierstore/pkg/dsid"
	"github.com/materials-commons/tierstore/pkg/eviction"
	"github.com/materials-commons/tierstore/pkg/fsutil"
	"github.com/materials-commons/tierstore/pkg/treescan"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// MainStore is the online tier. Each dataset is a directory of files, the
// lock of a dataset is the lock of its directory.
type MainStore struct {
	*tier
	staleLockAge time.Duration
}

// NewMainStore opens the main tier. staleLockAge is handed to the tree
// scanner, see treescan.New.
func NewMainStore(opts TierOptions, staleLockAge time.Duration) (*MainStore, error) {
	t, err := newTier(opts, clog.MainCtx)
	if err != nil {
		return nil, err
	}

	return &MainStore{tier: t, staleLockAge: staleLockAge}, nil
}

// Put stores the content of r as file name of the dataset and returns the
// location of the file. The file must not exist yet.
func (s *MainStore) Put(id dsid.Identity, name string, r io.Reader) (string, error) {
	if err := s.resolver.CheckName(name); err != nil {
		return "", err
	}

	loc, err := s.resolver.Resolve(id)
	if err != nil {
		return "", err
	}

	location := loc.Join(name)
	if err := s.put(loc, name, r); err != nil {
		return "", err
	}

	return location, nil
}

// PutLocation stores r at a location previously returned by Put.
func (s *MainStore) PutLocation(location string, r io.Reader) error {
	id, name, err := s.resolver.ParseLocation(location)
	if err != nil {
		return err
	}

	loc, err := s.resolver.Resolve(id)
	if err != nil {
		return err
	}

	return s.put(loc, name, r)
}

func (s *MainStore) put(loc dsid.Location, name string, r io.Reader) error {
	// The lock file lives in the parent, which has to exist before locking.
	h, err := s.lockInParent(loc.Parent().String(), s.abs(loc.String()))
	if err != nil {
		return err
	}
	defer s.release(h)

	if err := s.createDirectories(loc.String()); err != nil {
		return err
	}

	n, err := s.writeNewFile(s.abs(loc.Join(name)), r)
	if err != nil {
		return err
	}

	s.log.Debugf("Stored %s (%d bytes)", loc.Join(name), n)

	return nil
}

// Get opens the file at location for reading. The dataset stays share
// locked until the returned reader is closed.
func (s *MainStore) Get(location string) (io.ReadCloser, error) {
	id, name, err := s.resolver.ParseLocation(location)
	if err != nil {
		return nil, err
	}

	loc, err := s.resolver.Resolve(id)
	if err != nil {
		return nil, err
	}

	// Checked before locking so that reading a missing dataset does not
	// leave a lock file behind.
	p := s.abs(loc.Join(name))
	if exists, err := afero.Exists(s.fs, p); err != nil {
		return nil, errors.Wrapf(err, "stat %s", p)
	} else if !exists {
		return nil, errors.Wrapf(ErrNotFound, "%s", location)
	}

	h, err := s.locker.Acquire(s.abs(loc.String()), dirlock.Shared)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(p)
	if err != nil {
		s.release(h)
		if fsutil.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", location)
		}
		return nil, errors.Wrapf(err, "open %s", p)
	}

	return &lockedReader{File: f, handle: h, release: s.release}, nil
}

// ReadDataset calls fn for every file of the dataset in name order while
// holding a shared lock on the dataset.
func (s *MainStore) ReadDataset(id dsid.Identity, fn func(name string, r io.Reader) error) error {
	loc, err := s.resolver.Resolve(id)
	if err != nil {
		return err
	}

	dir := s.abs(loc.String())
	if exists, err := afero.DirExists(s.fs, dir); err != nil {
		return errors.Wrapf(err, "stat %s", dir)
	} else if !exists {
		return errors.Wrapf(ErrNotFound, "dataset %s", id)
	}

	h, err := s.locker.Acquire(dir, dirlock.Shared)
	if err != nil {
		return err
	}
	defer s.release(h)

	entries, err := afero.ReadDir(s.fs, dir)
	switch {
	case fsutil.IsNotExist(err):
		return errors.Wrapf(ErrNotFound, "dataset %s", id)
	case err != nil:
		return errors.Wrapf(err, "read %s", dir)
	}

	for _, entry := range entries {
		if !entry.Mode().IsRegular() {
			continue
		}

		if err := s.readFile(path.Join(loc.String(), entry.Name()), entry.Name(), fn); err != nil {
			return err
		}
	}

	return nil
}

func (s *MainStore) readFile(rel, name string, fn func(name string, r io.Reader) error) error {
	f, err := s.fs.Open(s.abs(rel))
	if err != nil {
		return errors.Wrapf(err, "open %s", rel)
	}
	defer func() { _ = f.Close() }()

	return fn(name, f)
}

// Delete removes the dataset and every directory above it that becomes
// empty. Deleting a missing dataset is not an error.
func (s *MainStore) Delete(id dsid.Identity) error {
	loc, err := s.resolver.Resolve(id)
	if err != nil {
		return err
	}

	dir := s.abs(loc.String())
	if exists, err := afero.DirExists(s.fs, dir); err != nil {
		return errors.Wrapf(err, "stat %s", dir)
	} else if exists {
		if err := s.deleteDataset(dir); err != nil {
			return err
		}
		s.log.Infof("Deleted dataset %s", id)
	}

	return s.pruneDirectories(loc.Parent().String())
}

func (s *MainStore) deleteDataset(dir string) error {
	h, err := s.locker.Acquire(dir, dirlock.Exclusive)
	if err != nil {
		return err
	}
	defer s.release(h)

	entries, err := afero.ReadDir(s.fs, dir)
	switch {
	case fsutil.IsNotExist(err):
		return nil
	case err != nil:
		return errors.Wrapf(err, "read %s", dir)
	}

	for _, entry := range entries {
		p := dir + string(os.PathSeparator) + entry.Name()
		if err := s.fs.Remove(p); err != nil && !fsutil.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", p)
		}
	}

	if err := s.fs.Remove(dir); err != nil && !fsutil.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", dir)
	}

	return s.removeLockFile(dir)
}

// DeleteLocation removes a single file. The dataset directory goes as well
// when it is left empty.
func (s *MainStore) DeleteLocation(location string) error {
	id, name, err := s.resolver.ParseLocation(location)
	if err != nil {
		return err
	}

	loc, err := s.resolver.Resolve(id)
	if err != nil {
		return err
	}

	dir := s.abs(loc.String())
	if exists, err := afero.DirExists(s.fs, dir); err != nil {
		return errors.Wrapf(err, "stat %s", dir)
	} else if !exists {
		return s.pruneDirectories(loc.Parent().String())
	}

	if err := s.deleteFile(dir, loc.Join(name)); err != nil {
		return err
	}

	return s.pruneDirectories(loc.Parent().String())
}

func (s *MainStore) deleteFile(dir, rel string) error {
	h, err := s.locker.Acquire(dir, dirlock.Exclusive)
	if err != nil {
		return err
	}
	defer s.release(h)

	p := s.abs(rel)
	if err := s.fs.Remove(p); err != nil && !fsutil.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", p)
	}

	err = s.fs.Remove(dir)
	switch {
	case err == nil:
		return s.removeLockFile(dir)
	case fsutil.IsNotEmpty(err), fsutil.IsNotExist(err):
		return nil
	default:
		return errors.Wrapf(err, "remove %s", dir)
	}
}

// Exists reports whether the dataset directory exists. No lock is taken.
func (s *MainStore) Exists(id dsid.Identity) (bool, error) {
	loc, err := s.resolver.Resolve(id)
	if err != nil {
		return false, err
	}

	return afero.DirExists(s.fs, s.abs(loc.String()))
}

// ExistsLocation reports whether the file at location exists. No lock is
// taken.
func (s *MainStore) ExistsLocation(location string) (bool, error) {
	if _, _, err := s.resolver.ParseLocation(location); err != nil {
		return false, err
	}

	return afero.Exists(s.fs, s.abs(location))
}

// Path returns the filesystem path of a validated location.
func (s *MainStore) Path(location string) (string, error) {
	if _, _, err := s.resolver.ParseLocation(location); err != nil {
		return "", err
	}

	return s.abs(location), nil
}

// Scan sizes every dataset of the tier, see treescan.
func (s *MainStore) Scan() (*treescan.Result, error) {
	return treescan.New(s.fs, s.baseDir, s.locker, s.staleLockAge).Scan()
}

// DatasetsToArchive scans the tier and plans which datasets to evict.
func (s *MainStore) DatasetsToArchive(w eviction.Watermarks) ([]treescan.Record, *treescan.Result, error) {
	if err := w.Validate(); err != nil {
		return nil, nil, err
	}

	result, err := s.Scan()
	if err != nil {
		return nil, nil, err
	}

	return eviction.Plan(result.TotalSize, w, result.Records), result, nil
}
