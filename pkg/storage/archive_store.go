package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/materials-commons/tierstore/pkg/clog"
	"github.com/materials-commons/tierstore/pkg/dirlock"
	"github.com/materials-commons/tierstore/pkg/dsid"
	"github.com/materials-commons/tierstore/pkg/fsutil"
	"github.com/pkg/errors"
	"github.com/saracen/walker"
	"github.com/spf13/afero"
)

// ArchiveExt is appended to the dataset location to name its artifact.
const ArchiveExt = ".zip"

// ArchiveStore is the offline tier. A dataset is stored as a single packed
// artifact, locks are taken on the artifact path.
type ArchiveStore struct {
	*tier
}

func NewArchiveStore(opts TierOptions) (*ArchiveStore, error) {
	t, err := newTier(opts, clog.ArchiveCtx)
	if err != nil {
		return nil, err
	}

	return &ArchiveStore{tier: t}, nil
}

func (s *ArchiveStore) artifact(id dsid.Identity) (dsid.Location, string, error) {
	loc, err := s.resolver.Resolve(id)
	if err != nil {
		return "", "", err
	}

	return loc, s.abs(loc.String()) + ArchiveExt, nil
}

// Put stores the artifact of a dataset, replacing an existing one. The
// content is written to a temporary file first, readers never see a
// partial artifact.
func (s *ArchiveStore) Put(id dsid.Identity, r io.Reader) error {
	loc, p, err := s.artifact(id)
	if err != nil {
		return err
	}

	h, err := s.lockInParent(loc.Parent().String(), p)
	if err != nil {
		return err
	}
	defer s.release(h)

	tmp, err := afero.TempFile(s.fs, filepath.Dir(p), "."+filepath.Base(p)+".tmp-")
	if err != nil {
		return errors.Wrapf(err, "create temporary file for %s", p)
	}

	n, err := s.copyAndClose(tmp, r)
	if err == nil {
		err = s.applyPermissions(tmp.Name(), s.fileMode)
	}

	if err == nil {
		err = errors.Wrapf(s.fs.Rename(tmp.Name(), p), "rename %s", tmp.Name())
	}

	if err != nil {
		_ = s.fs.Remove(tmp.Name())
		return err
	}

	s.log.Infof("Archived dataset %s (%d bytes)", id, n)

	return nil
}

// Get opens the artifact of a dataset. The artifact stays share locked until
// the returned reader is closed.
func (s *ArchiveStore) Get(id dsid.Identity) (io.ReadCloser, error) {
	_, p, err := s.artifact(id)
	if err != nil {
		return nil, err
	}

	if exists, err := afero.Exists(s.fs, p); err != nil {
		return nil, errors.Wrapf(err, "stat %s", p)
	} else if !exists {
		return nil, errors.Wrapf(ErrNotFound, "archive of %s", id)
	}

	h, err := s.locker.Acquire(p, dirlock.Shared)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(p)
	if err != nil {
		s.release(h)
		if fsutil.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "archive of %s", id)
		}
		return nil, errors.Wrapf(err, "open %s", p)
	}

	return &lockedReader{File: f, handle: h, release: s.release}, nil
}

// Delete removes the artifact of a dataset and every directory above it that
// becomes empty. Deleting a missing artifact is not an error.
func (s *ArchiveStore) Delete(id dsid.Identity) error {
	loc, p, err := s.artifact(id)
	if err != nil {
		return err
	}

	if exists, err := afero.Exists(s.fs, p); err != nil {
		return errors.Wrapf(err, "stat %s", p)
	} else if exists {
		if err := s.deleteArtifact(p); err != nil {
			return err
		}
		s.log.Infof("Deleted archive of %s", id)
	}

	return s.pruneDirectories(loc.Parent().String())
}

func (s *ArchiveStore) deleteArtifact(p string) error {
	h, err := s.locker.Acquire(p, dirlock.Exclusive)
	if err != nil {
		return err
	}
	defer s.release(h)

	if err := s.fs.Remove(p); err != nil && !fsutil.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", p)
	}

	return s.removeLockFile(p)
}

// Exists reports whether the dataset has an artifact. No lock is taken.
func (s *ArchiveStore) Exists(id dsid.Identity) (bool, error) {
	_, p, err := s.artifact(id)
	if err != nil {
		return false, err
	}

	return afero.Exists(s.fs, p)
}

// The archive tier only stores whole datasets.

func (s *ArchiveStore) PutLocation(location string, _ io.Reader) error {
	return errors.Wrapf(ErrUnsupported, "put %s on archive tier", location)
}

func (s *ArchiveStore) GetLocation(location string) (io.ReadCloser, error) {
	return nil, errors.Wrapf(ErrUnsupported, "get %s from archive tier", location)
}

func (s *ArchiveStore) DeleteLocation(location string) error {
	return errors.Wrapf(ErrUnsupported, "delete %s from archive tier", location)
}

// Usage is the number and total size of the artifacts in the tier.
type Usage struct {
	Artifacts int64
	Bytes     int64
}

// Usage walks the whole archive tree. On the OS filesystem directories are
// read in parallel.
func (s *ArchiveStore) Usage(ctx context.Context) (Usage, error) {
	var artifacts, size atomic.Int64

	count := func(pathname string, fi os.FileInfo) error {
		if fi.Mode().IsRegular() && strings.HasSuffix(pathname, ArchiveExt) {
			artifacts.Add(1)
			size.Add(fi.Size())
		}
		return nil
	}

	var err error
	if _, ok := s.fs.(*afero.OsFs); ok {
		err = walker.WalkWithContext(ctx, s.baseDir, count)
	} else {
		err = afero.Walk(s.fs, s.baseDir, func(pathname string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return count(pathname, fi)
		})
	}

	if err != nil {
		return Usage{}, errors.Wrapf(err, "walk %s", s.baseDir)
	}

	return Usage{Artifacts: artifacts.Load(), Bytes: size.Load()}, nil
}
