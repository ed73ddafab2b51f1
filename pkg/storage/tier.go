// Package storage implements the main (online) and archive (offline) tiers.
// Both keep one directory tree per tier laid out by dsid.Resolver and guard
// every access with a dirlock.Locker.
package storage

import (
	"io"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/materials-commons/tierstore/pkg/clog"
	"github.com/materials-commons/tierstore/pkg/config"
	"github.com/materials-commons/tierstore/pkg/dirlock"
	"github.com/materials-commons/tierstore/pkg/dsid"
	"github.com/materials-commons/tierstore/pkg/fsutil"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// TierOptions configure a tier. Only BaseDir is required.
type TierOptions struct {
	BaseDir string

	// Fs defaults to the OS filesystem. Lock files are always created on the
	// OS filesystem, so a different Fs only makes sense with a NopLocker or
	// when it wraps the OS filesystem.
	Fs afero.Fs

	Resolver *dsid.Resolver

	// Locker defaults to a dirlock.FileLocker.
	Locker dirlock.Locker

	// Umask is removed from 0777 for directories and 0666 for files.
	Umask os.FileMode

	// Group, when set, is the group given to every directory and file the
	// tier creates.
	Group string
}

// OptionsFromConfig builds the options for a configured tier.
func OptionsFromConfig(cfg config.TierConfig) TierOptions {
	return TierOptions{
		BaseDir: cfg.Dir,
		Locker:  dirlock.New(cfg.FileLock),
		Umask:   cfg.Umask,
		Group:   cfg.Group,
	}
}

type tier struct {
	fs       afero.Fs
	baseDir  string
	resolver *dsid.Resolver
	locker   dirlock.Locker
	dirMode  os.FileMode
	fileMode os.FileMode
	gid      int
	log      *log.Entry
}

func newTier(opts TierOptions, ctx string) (*tier, error) {
	if opts.BaseDir == "" {
		return nil, errors.New("tier base directory not set")
	}

	t := &tier{
		fs:       opts.Fs,
		baseDir:  filepath.Clean(opts.BaseDir),
		resolver: opts.Resolver,
		locker:   opts.Locker,
		dirMode:  0777 &^ opts.Umask,
		fileMode: 0666 &^ opts.Umask,
		gid:      -1,
		log:      clog.UsingCtx(ctx),
	}

	if t.fs == nil {
		t.fs = afero.NewOsFs()
	}

	if t.resolver == nil {
		t.resolver = dsid.NewResolver(dsid.DefaultGrammar())
	}

	if t.locker == nil {
		t.locker = dirlock.NewFileLocker()
	}

	if opts.Group != "" {
		g, err := user.LookupGroup(opts.Group)
		if err != nil {
			return nil, errors.Wrapf(err, "group %s", opts.Group)
		}

		if t.gid, err = strconv.Atoi(g.Gid); err != nil {
			return nil, errors.Wrapf(err, "gid of group %s", opts.Group)
		}
	}

	isDir, err := afero.IsDir(t.fs, t.baseDir)
	switch {
	case err != nil:
		return nil, errors.Wrapf(err, "tier base directory %s", t.baseDir)
	case !isDir:
		return nil, errors.Errorf("tier base directory %s is not a directory", t.baseDir)
	}

	return t, nil
}

// BaseDir is the root of the tier tree.
func (t *tier) BaseDir() string {
	return t.baseDir
}

func (t *tier) abs(rel string) string {
	return filepath.Join(t.baseDir, filepath.FromSlash(rel))
}

// createDirectories creates the missing directories of rel, a slash separated
// path below the base directory. Only directories created here get their mode
// and group set. Directories that already exist, possibly owned by someone
// else, are left as they are.
func (t *tier) createDirectories(rel string) error {
	dir := t.baseDir
	for _, elem := range splitPath(rel) {
		dir = filepath.Join(dir, elem)

		err := t.fs.Mkdir(dir, t.dirMode)
		switch {
		case err == nil:
			if err := t.applyPermissions(dir, t.dirMode); err != nil {
				return err
			}
		case os.IsExist(err):
			if isDir, err := afero.IsDir(t.fs, dir); err != nil {
				return errors.Wrapf(err, "stat %s", dir)
			} else if !isDir {
				return errors.Errorf("%s exists and is not a directory", dir)
			}
		default:
			return errors.Wrapf(err, "create directory %s", dir)
		}
	}

	return nil
}

// applyPermissions sets the mode (Mkdir and OpenFile are subject to the
// process umask) and the configured group.
func (t *tier) applyPermissions(p string, mode os.FileMode) error {
	if err := t.fs.Chmod(p, mode); err != nil {
		return errors.Wrapf(err, "chmod %s", p)
	}

	if t.gid >= 0 {
		if err := t.fs.Chown(p, -1, t.gid); err != nil {
			return errors.Wrapf(err, "chgrp %s", p)
		}
	}

	return nil
}

// pruneDirectories removes rel and its ancestors while they are empty. The
// base directory is never removed. Pruning stops quietly at the first
// directory that is not empty.
func (t *tier) pruneDirectories(rel string) error {
	for rel != "." && rel != "" && rel != "/" {
		dir := t.abs(rel)
		err := t.fs.Remove(dir)
		switch {
		case err == nil:
			t.log.Debugf("Removed empty directory %s", dir)
		case fsutil.IsNotExist(err):
		case fsutil.IsNotEmpty(err):
			return nil
		default:
			return errors.Wrapf(err, "remove directory %s", dir)
		}

		rel = path.Dir(rel)
	}

	return nil
}

// lockInParent creates the directory parentRel and takes an exclusive lock
// on p, which lives in it. A concurrent prune may remove the new parent before
// the lock file is created, in that case both steps are repeated once.
func (t *tier) lockInParent(parentRel, p string) (*dirlock.Handle, error) {
	for attempt := 0; ; attempt++ {
		if err := t.createDirectories(parentRel); err != nil {
			return nil, err
		}

		h, err := t.locker.Acquire(p, dirlock.Exclusive)
		if err != nil && attempt == 0 && fsutil.IsNotExist(err) {
			t.log.Debugf("Parent of %s vanished before locking, retrying", p)
			continue
		}

		return h, err
	}
}

// removeLockFile removes the lock file of dir. The caller must hold the lock.
func (t *tier) removeLockFile(dir string) error {
	lockFile := dirlock.LockFilePath(dir)
	if err := t.fs.Remove(lockFile); err != nil && !fsutil.IsNotExist(err) {
		return errors.Wrapf(err, "remove lock file %s", lockFile)
	}

	return nil
}

func (t *tier) release(h *dirlock.Handle) {
	if err := h.Release(); err != nil {
		t.log.Warnf("Releasing lock on %s failed: %s", h.Dir(), err)
	}
}

// writeNewFile copies r into p, which must not exist yet. A partially
// written file is removed.
func (t *tier) writeNewFile(p string, r io.Reader) (int64, error) {
	f, err := t.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, t.fileMode)
	switch {
	case os.IsExist(err):
		return 0, errors.Wrapf(ErrExists, "%s", p)
	case err != nil:
		return 0, errors.Wrapf(err, "create %s", p)
	}

	n, err := t.copyAndClose(f, r)
	if err != nil {
		_ = t.fs.Remove(p)
		return 0, err
	}

	if err := t.applyPermissions(p, t.fileMode); err != nil {
		_ = t.fs.Remove(p)
		return 0, err
	}

	return n, nil
}

func (t *tier) copyAndClose(f afero.File, r io.Reader) (int64, error) {
	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		return 0, errors.Wrapf(err, "write %s", f.Name())
	}

	if err := f.Close(); err != nil {
		return 0, errors.Wrapf(err, "close %s", f.Name())
	}

	return n, nil
}

func splitPath(rel string) []string {
	if rel == "" || rel == "." {
		return nil
	}

	return strings.Split(rel, "/")
}
