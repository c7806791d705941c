package maildir

import "errors"

// Error kinds surfaced by the save engine. Callers should use errors.Is
// against these sentinels; additional context is wrapped with %w.
var (
	// ErrNoSpace means a staging or commit write failed because the
	// filesystem is full. It is the only kind with a user-visible
	// message; everything else is reported as ErrCritical.
	ErrNoSpace = errors.New("not enough disk space")

	// ErrCritical wraps an unexpected storage failure (a failing
	// syscall other than ENOSPC). The underlying error is preserved
	// with %w for logging; callers should present an opaque message.
	ErrCritical = errors.New("internal storage error")

	// ErrUidlistLockTimeout means the UID-list lock could not be
	// acquired before the configured timeout. The whole transaction is
	// rolled back when this occurs.
	ErrUidlistLockTimeout = errors.New("timed out acquiring uidlist lock")

	// ErrSaveFailed is returned by Continue/Finish/SaveInit once a
	// SaveContext's failed flag has been set. The flag is sticky for
	// the lifetime of the context.
	ErrSaveFailed = errors.New("save context has already failed")

	// ErrNoMessageOpen is returned when Continue or Finish is called
	// without a preceding SaveInit, or after Finish/Cancel has already
	// closed the current message.
	ErrNoMessageOpen = errors.New("no message is currently being staged")
)
