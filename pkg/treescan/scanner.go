// Package treescan walks a main tier tree once to size its datasets, to
// remove lock files left behind by deleted datasets and to prune empty
// intermediate directories.
package treescan

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/materials-commons/tierstore/pkg/clog"
	"github.com/materials-commons/tierstore/pkg/dirlock"
	"github.com/materials-commons/tierstore/pkg/dsid"
	"github.com/materials-commons/tierstore/pkg/fsutil"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrStructuralViolation is returned when the tree holds a directory below
// dataset depth. The scan is aborted, nothing it computed is returned.
var ErrStructuralViolation = errors.New("structural violation")

// Record is the usage of one dataset directory.
type Record struct {
	Identity     dsid.Identity
	Location     dsid.Location
	Size         int64
	LastModified time.Time
}

type ActionKind string

const (
	LockRemoved ActionKind = "lock-removed"
	DirPruned   ActionKind = "dir-pruned"
)

// Action is a cleanup the scan performed on the tree.
type Action struct {
	Kind ActionKind
	Path string
}

type Result struct {
	TotalSize int64

	// Records are sorted by LastModified, least recently modified first.
	Records []Record

	Actions []Action
}

type Scanner struct {
	fs           afero.Fs
	baseDir      string
	locker       dirlock.Locker
	staleLockAge time.Duration
	now          func() time.Time
}

type Option func(*Scanner)

// WithClock replaces time.Now when deciding if a lock file is stale.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		s.now = now
	}
}

// New creates a scanner for the tree rooted at baseDir. Lock files older than
// staleLockAge are candidates for removal. A staleLockAge <= 0 turns lock
// file cleanup off. Paths handed to locker are fs paths, so fs must be backed
// by the real filesystem when locker takes real locks.
func New(fs afero.Fs, baseDir string, locker dirlock.Locker, staleLockAge time.Duration, opts ...Option) *Scanner {
	s := &Scanner{
		fs:           fs,
		baseDir:      filepath.Clean(baseDir),
		locker:       locker,
		staleLockAge: staleLockAge,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type walkState struct {
	staleBefore time.Time
	records     map[dsid.Location]*Record
	result      *Result
}

// Scan walks the tree. Datasets that disappear while the walk is running are
// left out of the result.
func (s *Scanner) Scan() (*Result, error) {
	state := &walkState{
		staleBefore: s.now().Add(-s.staleLockAge),
		records:     make(map[dsid.Location]*Record),
		result:      &Result{},
	}

	clog.UsingCtx(clog.ScanCtx).Debugf("Scanning %s", s.baseDir)

	if err := s.walk(state, s.baseDir, "", 0); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(state.records))
	for _, r := range state.records {
		state.result.TotalSize += r.Size
		records = append(records, *r)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].LastModified.Equal(records[j].LastModified) {
			return records[i].Location < records[j].Location
		}
		return records[i].LastModified.Before(records[j].LastModified)
	})

	state.result.Records = records

	clog.UsingCtx(clog.ScanCtx).Debugf("Scanned %s: %d datasets, %d bytes, %d cleanup actions",
		s.baseDir, len(records), state.result.TotalSize, len(state.result.Actions))

	return state.result, nil
}

func (s *Scanner) walk(state *walkState, dir, rel string, depth int) error {
	entries, err := afero.ReadDir(s.fs, dir)
	switch {
	case err != nil && depth > 0 && fsutil.IsNotExist(err):
		if depth == dsid.DatasetDepth {
			delete(state.records, dsid.Location(rel))
		}
		return nil
	case err != nil:
		return errors.Wrapf(err, "read %s", dir)
	}

	for _, entry := range entries {
		childPath := filepath.Join(dir, entry.Name())
		childRel := path.Join(rel, entry.Name())
		childDepth := depth + 1

		if entry.IsDir() {
			if childDepth > dsid.DatasetDepth {
				return errors.Wrapf(ErrStructuralViolation, "directory %s below dataset depth", childPath)
			}

			if childDepth == dsid.DatasetDepth {
				id, err := dsid.IdentityFromPath(childRel)
				if err != nil {
					return err
				}
				state.records[dsid.Location(childRel)] = &Record{
					Identity:     id,
					Location:     dsid.Location(childRel),
					LastModified: entry.ModTime(),
				}
			}

			if err := s.walk(state, childPath, childRel, childDepth); err != nil {
				return err
			}
			continue
		}

		switch {
		case childDepth < dsid.DatasetDepth:
			// Lock files of datasets live one level up from here, anything
			// else above dataset depth is not ours.
		case childDepth == dsid.DatasetDepth:
			if err := s.checkLockFile(state, childPath, entry); err != nil {
				return err
			}
		case !entry.Mode().IsRegular():
			// Symlinks are not followed. Like sockets and fifos they are
			// not part of the dataset content.
		default:
			r := state.records[dsid.Location(rel)]
			if r == nil {
				continue
			}
			r.Size += entry.Size()
			if entry.ModTime().After(r.LastModified) {
				r.LastModified = entry.ModTime()
			}
		}
	}

	if depth > 0 && depth < dsid.DatasetDepth {
		return s.prune(state, dir)
	}

	return nil
}

func (s *Scanner) prune(state *walkState, dir string) error {
	err := s.fs.Remove(dir)
	switch {
	case err == nil:
		state.result.Actions = append(state.result.Actions, Action{Kind: DirPruned, Path: dir})
		clog.UsingCtx(clog.ScanCtx).Debugf("Pruned empty directory %s", dir)
		return nil
	case fsutil.IsNotEmpty(err), fsutil.IsNotExist(err):
		return nil
	default:
		return errors.Wrapf(err, "prune %s", dir)
	}
}

// checkLockFile removes a lock file when it is stale and the directory it
// protects is gone. The directory is checked before taking the lock, locking
// an existing dataset would refresh its modification time.
func (s *Scanner) checkLockFile(state *walkState, lockFile string, info os.FileInfo) error {
	if s.staleLockAge <= 0 || !info.ModTime().Before(state.staleBefore) {
		return nil
	}

	protected, ok := dirlock.ProtectedPath(lockFile)
	if !ok {
		return nil
	}

	if exists, err := afero.Exists(s.fs, protected); err != nil {
		return errors.Wrapf(err, "stat %s", protected)
	} else if exists {
		return nil
	}

	h, err := s.locker.Acquire(protected, dirlock.Exclusive)
	if errors.Is(err, dirlock.ErrAlreadyLocked) {
		clog.UsingCtx(clog.ScanCtx).Debugf("Stale lock file %s is in use, leaving it", lockFile)
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = h.Release() }()

	if exists, err := afero.Exists(s.fs, protected); err != nil {
		return errors.Wrapf(err, "stat %s", protected)
	} else if exists {
		return nil
	}

	if err := s.fs.Remove(lockFile); err != nil && !fsutil.IsNotExist(err) {
		return errors.Wrapf(err, "remove lock file %s", lockFile)
	}

	state.result.Actions = append(state.result.Actions, Action{Kind: LockRemoved, Path: lockFile})
	clog.UsingCtx(clog.ScanCtx).Infof("Removed stale lock file %s", lockFile)

	return nil
}
