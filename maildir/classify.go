package maildir

import (
	"errors"
	"fmt"
	"syscall"
)

// classifyIOError turns a raw filesystem error into one of the save
// engine's error kinds. ENOSPC is the only kind with a user-visible
// message; everything else is reported as a critical storage error,
// with the original error preserved via %w for logging.
func classifyIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%s: %w", op, ErrNoSpace)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrCritical, err)
}
