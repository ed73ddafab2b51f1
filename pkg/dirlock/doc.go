// Package dirlock implements advisory directory locks built only from
// filesystem primitives, so independent processes (possibly on different
// hosts sharing the filesystem) can coordinate without a lock server.
//
// A lock on directory /a/b/dir is an flock(2) on the sidecar file
// /a/b/.dir.lock. Acquisition never blocks: if the lock is held in a
// conflicting mode the call returns ErrAlreadyLocked and retrying is up to
// the caller.
//
// Lock files are not removed on Release. Unlinking a lock file right before
// releasing it opens a window where another actor, which already opened the
// old file, still holds a lock that no longer conflicts with a lock taken on
// a newly created file of the same name. That cannot be fixed with
// descriptor based locks. Lock files are instead removed by the tree
// scanner once they are stale and the protected directory is gone, which
// bounds the risk rather than eliminating it.
//
// flock locks belong to the open file description, so two acquisitions in
// the same process conflict exactly like acquisitions from two processes.
// Still, a single actor must not take two locks on the same directory.
//
// Only processes that lock through this package coordinate. On Linux flock
// locks and fcntl record locks (used by Java's FileChannel.lock, among
// others) do not exclude each other, so tools taking fcntl locks on the same
// tree do not see these locks.
package dirlock
