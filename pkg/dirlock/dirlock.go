package dirlock

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrAlreadyLocked is returned when a lock cannot be acquired immediately.
// It is transient, callers may retry after a backoff.
var ErrAlreadyLocked = errors.New("already locked")

type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	switch m {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

const lockFileMode = 0666

var lockFileRegExp = regexp.MustCompile(`^\.(.+)\.lock$`)

// LockFilePath returns the path of the lock file guarding dir.
func LockFilePath(dir string) string {
	dir = filepath.Clean(dir)
	return filepath.Join(filepath.Dir(dir), "."+filepath.Base(dir)+".lock")
}

// ProtectedPath is the inverse of LockFilePath. ok is false when lockFile
// does not follow the lock file naming pattern.
func ProtectedPath(lockFile string) (dir string, ok bool) {
	m := lockFileRegExp.FindStringSubmatch(filepath.Base(lockFile))
	if m == nil {
		return "", false
	}

	return filepath.Join(filepath.Dir(lockFile), m[1]), true
}

// Locker acquires directory locks. Stores take a Locker so locking can be
// switched off by configuration.
type Locker interface {
	Acquire(dir string, mode Mode) (*Handle, error)
}

// Handle is one held lock. The zero value is a lock that was never taken,
// releasing it does nothing.
type Handle struct {
	dir  string
	mode Mode
	f    *os.File
}

// Release drops the lock and closes the lock file. It is safe to call more
// than once.
func (h *Handle) Release() error {
	if h == nil || h.f == nil {
		return nil
	}

	f := h.f
	h.f = nil

	log.Debugf("Release %s lock on %s", h.mode, h.dir)

	// Close drops the lock too, unlock first so its error is reported.
	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()

	if unlockErr != nil {
		return errors.Wrapf(unlockErr, "unlock %s", h.dir)
	}

	return errors.Wrapf(closeErr, "close lock file for %s", h.dir)
}

// Dir returns the locked directory.
func (h *Handle) Dir() string {
	return h.dir
}

// FileLocker takes real flock(2) locks.
type FileLocker struct {
	now func() time.Time
}

func NewFileLocker() *FileLocker {
	return &FileLocker{now: time.Now}
}

// New returns a FileLocker when enabled is true, otherwise a Locker whose
// acquisitions always succeed without touching the filesystem.
func New(enabled bool) Locker {
	if enabled {
		return NewFileLocker()
	}

	return NopLocker{}
}

// Acquire takes a non-blocking lock on dir in the given mode. On success the
// modification times of dir (if it exists) and of the lock file are set to
// the current time. The tree scanner reads these as a recently-used signal.
func (l *FileLocker) Acquire(dir string, mode Mode) (*Handle, error) {
	dir = filepath.Clean(dir)
	lockFile := LockFilePath(dir)

	log.Debugf("Try to acquire %s lock on %s", mode, dir)

	f, err := os.OpenFile(lockFile, os.O_RDWR|os.O_CREATE, lockFileMode)
	if err != nil {
		return nil, errors.Wrapf(err, "open lock file for %s", dir)
	}

	how := unix.LOCK_SH | unix.LOCK_NB
	if mode == Exclusive {
		how = unix.LOCK_EX | unix.LOCK_NB
	}

	if err := flock(f, how); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errors.Wrapf(ErrAlreadyLocked, "%s", dir)
		}
		return nil, errors.Wrapf(err, "lock %s", dir)
	}

	h := &Handle{dir: dir, mode: mode, f: f}

	// Every account sharing the tree must be able to open the lock file.
	// Only the owner can change the mode, so errors are ignored.
	_ = f.Chmod(lockFileMode)

	now := l.now()
	if err := os.Chtimes(dir, now, now); err != nil && !os.IsNotExist(err) {
		_ = h.Release()
		return nil, errors.Wrapf(err, "touch %s", dir)
	}

	if err := os.Chtimes(lockFile, now, now); err != nil {
		_ = h.Release()
		return nil, errors.Wrapf(err, "touch %s", lockFile)
	}

	log.Debugf("%s lock on %s acquired", mode, dir)

	return h, nil
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}

// NopLocker is used when locking is disabled.
type NopLocker struct{}

func (NopLocker) Acquire(dir string, mode Mode) (*Handle, error) {
	return &Handle{dir: filepath.Clean(dir), mode: mode}, nil
}
