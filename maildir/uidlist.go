package maildir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// SyncFlags describes the per-message flags a UID-list sync session
// records alongside each newly published filename.
type SyncFlags uint8

const (
	// SyncFlagNewDir marks an appended filename as living in new/.
	SyncFlagNewDir SyncFlags = 1 << iota
	// SyncFlagRecent marks an appended message as recent.
	SyncFlagRecent
)

// UidList is the contract the save engine needs from the external
// UID-list persistence layer named in spec.md section 1. FileUidList
// below is a reference implementation; production callers are
// expected to supply their own, the way a real deployment supplies
// metrics.PrometheusCollector instead of metrics.NoopCollector.
type UidList interface {
	// Lock acquires the UID-list's commit lock, waiting up to timeout.
	// It returns ErrUidlistLockTimeout if the lock isn't acquired in
	// time.
	Lock(ctx context.Context, timeout time.Duration) (UidListLock, error)
}

// UidListLock is held for the duration of one transaction's commit.
type UidListLock interface {
	// NextUID returns the next UID the list would hand out.
	NextUID() uint32

	// BeginSync opens a sync session used to record newly published
	// filenames as they're linked into place.
	BeginSync() (UidListSync, error)

	// Unlock releases the lock. It must be called exactly once,
	// regardless of whether the sync session committed or was
	// aborted.
	Unlock() error
}

// UidListSync accumulates newly published filenames during commit and
// persists them (and the new next-UID value) on Close.
type UidListSync interface {
	// Append records that filename was just published with the given
	// flags.
	Append(filename string, flags SyncFlags) error

	// Close persists the session: the new next-UID value and the
	// appended filenames. After Close returns successfully,
	// UidListLock.NextUID reflects the committed value.
	Close() error

	// Abort discards the session without persisting anything.
	Abort()
}

// FileUidList is a minimal reference UidList backed by a single file
// holding the next-UID counter as decimal text, with a sibling
// ".lock" file providing the cross-process advisory lock via
// github.com/gofrs/flock. It does not persist the list of published
// filenames (spec.md treats that format as entirely external); it
// only tracks the counter needed to satisfy this package's commit
// algorithm and tests.
type FileUidList struct {
	path string
	mu   sync.Mutex
}

// NewFileUidList creates a FileUidList backed by path. The file need
// not exist yet: Lock reports a next-UID of 1 until a sync session
// that recorded at least one filename is closed, which writes it.
func NewFileUidList(path string) *FileUidList {
	return &FileUidList{path: path}
}

func (u *FileUidList) Lock(ctx context.Context, timeout time.Duration) (UidListLock, error) {
	fl := flock.New(u.path + ".lock")

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := fl.TryLockContext(lockCtx, 10*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrUidlistLockTimeout
		}
		return nil, fmt.Errorf("maildir: lock uidlist: %w", err)
	}
	if !ok {
		return nil, ErrUidlistLockTimeout
	}

	u.mu.Lock()
	next, err := u.readNext()
	if err != nil {
		u.mu.Unlock()
		_ = fl.Unlock()
		return nil, classifyIOError("read uidlist", err)
	}

	return &fileUidListLock{list: u, flock: fl, next: next}, nil
}

func (u *FileUidList) readNext() (uint32, error) {
	data, err := os.ReadFile(u.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, err
	}
	var next uint32
	if _, err := fmt.Sscanf(string(data), "%d", &next); err != nil {
		return 0, fmt.Errorf("maildir: corrupt uidlist %s: %w", u.path, err)
	}
	if next == 0 {
		next = 1
	}
	return next, nil
}

func (u *FileUidList) writeNext(next uint32) error {
	tmp := u.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREAT|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%d\n", next); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, u.path)
}

type fileUidListLock struct {
	list  *FileUidList
	flock *flock.Flock
	next  uint32
}

func (l *fileUidListLock) NextUID() uint32 { return l.next }

func (l *fileUidListLock) BeginSync() (UidListSync, error) {
	return &fileUidListSync{lock: l}, nil
}

func (l *fileUidListLock) Unlock() error {
	defer l.list.mu.Unlock()
	return l.flock.Unlock()
}

type fileUidListSync struct {
	lock      *fileUidListLock
	names     []string
	committed uint32
	haveNew   bool
}

func (s *fileUidListSync) Append(filename string, _ SyncFlags) error {
	s.names = append(s.names, filename)
	s.haveNew = true
	return nil
}

func (s *fileUidListSync) Close() error {
	if !s.haveNew {
		return nil
	}
	next := s.lock.next + uint32(len(s.names))
	if err := s.lock.list.writeNext(next); err != nil {
		return classifyIOError("write uidlist", err)
	}
	s.lock.next = next
	return nil
}

func (s *fileUidListSync) Abort() {
	s.names = nil
	s.haveNew = false
}
