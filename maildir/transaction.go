package maildir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// envCRLF is the environment variable that enables LF->CRLF
// conversion on save, read once at Transaction construction.
const envCRLF = "MAIL_SAVE_CRLF"

// defaultUidlistLockTimeout bounds how long Commit waits to acquire
// the UID-list lock before aborting the whole transaction.
const defaultUidlistLockTimeout = 30 * time.Second

// Transaction coordinates one or more SaveContext-driven message
// appends against a single Mailbox, followed by Commit or Rollback.
// One Transaction corresponds to one commit of N>=0 messages; SaveInit
// may be called any number of times before Commit.
type Transaction struct {
	mailbox   *Mailbox
	uidlist   UidList
	index     IndexTransaction
	logger    *slog.Logger
	lockWait  time.Duration
	crlf      bool
	ctx       *SaveContext
}

// TransactionConfig groups the dependencies a Transaction needs.
// Logger and LockTimeout are optional.
type TransactionConfig struct {
	Mailbox     *Mailbox
	UidList     UidList
	Index       IndexTransaction
	Logger      *slog.Logger
	LockTimeout time.Duration
}

// NewTransaction starts a new append transaction against cfg.Mailbox.
// CRLF conversion is enabled for the lifetime of the transaction based
// on whether MAIL_SAVE_CRLF is set in the environment at construction
// time, matching spec.md section 6.
func NewTransaction(cfg TransactionConfig) *Transaction {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lockWait := cfg.LockTimeout
	if lockWait <= 0 {
		lockWait = defaultUidlistLockTimeout
	}
	crlf := os.Getenv(envCRLF) != ""
	return &Transaction{
		mailbox:  cfg.Mailbox,
		uidlist:  cfg.UidList,
		index:    cfg.Index,
		logger:   logger,
		lockWait: lockWait,
		crlf:     crlf,
	}
}

// SaveInit allocates the transaction's SaveContext on first call,
// opens a fresh temp file for a new message, and appends a placeholder
// record to the index transaction, capturing the assigned in-memory
// sequence number. flags selects the eventual destination: a message
// whose flags are exactly FlagRecent lands in new/; any other
// combination lands in cur/ with a flag-encoded filename suffix.
func (t *Transaction) SaveInit(flags Flags, received time.Time, haveReceived bool, input io.Reader) (*SaveHandle, error) {
	if t.ctx == nil {
		t.ctx = newSaveContext(t.mailbox, t.crlf)
	}

	cur, err := t.ctx.saveInit(flags)
	if err != nil {
		return nil, err
	}

	seq, err := t.index.AppendPlaceholder(flags)
	if err != nil {
		t.ctx.failed = true
		_ = t.ctx.discardCurrent()
		return nil, fmt.Errorf("maildir: append index placeholder: %w", err)
	}
	cur.seq = seq
	cur.received = received
	cur.haveReceived = haveReceived

	return &SaveHandle{ctx: t.ctx, input: input}, nil
}

func (t *Transaction) destPath(f StagedFile) string {
	if !f.HasDestname() {
		return filepath.Join(t.mailbox.NewDir(), f.Basename)
	}
	return filepath.Join(t.mailbox.CurDir(), f.Destname)
}

// Commit is the atomic publication step described in spec.md section
// 4.2: it locks the UID list, assigns a contiguous UID range to every
// staged message, hard-links each tmp/ file into its destination in
// insertion order, and records the new filenames in a UID-list sync
// session. Any failure along the way rolls back everything already
// published by this transaction and leaves the mailbox as if it had
// never been called (modulo UIDs the next sync will reclaim).
func (t *Transaction) Commit(ctx context.Context) (firstUID, lastUID uint32, err error) {
	if t.ctx == nil || len(t.ctx.files) == 0 {
		return 0, 0, nil
	}

	lock, err := t.uidlist.Lock(ctx, t.lockWait)
	if err != nil {
		_ = t.Rollback()
		if errors.Is(err, ErrUidlistLockTimeout) {
			return 0, 0, ErrUidlistLockTimeout
		}
		return 0, 0, err
	}
	defer func() { _ = lock.Unlock() }()

	n := uint32(len(t.ctx.files))
	first := lock.NextUID()
	last := first + n - 1

	if err := t.index.AssignUIDRange(first, last); err != nil {
		_ = t.Rollback()
		return 0, 0, fmt.Errorf("maildir: assign uid range: %w", err)
	}

	sync, err := lock.BeginSync()
	if err != nil {
		_ = t.Rollback()
		return 0, 0, fmt.Errorf("maildir: begin uidlist sync: %w", err)
	}

	failAt := -1
	var failErr error
	for i, f := range t.ctx.files {
		dest := t.destPath(f)
		src := filepath.Join(t.mailbox.TmpDir(), f.Basename)

		linkErr := os.Link(src, dest)
		if linkErr != nil {
			if !errors.Is(linkErr, syscall.ENOSPC) {
				t.logger.Error("maildir: critical error linking staged file into place",
					slog.String("src", src), slog.String("dest", dest), slog.String("error", linkErr.Error()))
			}
			failAt = i
			failErr = classifyIOError("link staged file", linkErr)
		} else {
			flags := SyncFlagNewDir | SyncFlagRecent
			if appendErr := sync.Append(filepath.Base(dest), flags); appendErr != nil {
				// dest was linked but is not recorded; rollbackFrom only
				// unlinks destinations before failAt, so drop it here.
				_ = os.Remove(dest)
				failAt = i
				failErr = classifyIOError("record published file", appendErr)
			}
		}

		if rmErr := os.Remove(src); rmErr != nil && !os.IsNotExist(rmErr) {
			t.logger.Warn("maildir: failed to unlink tmp file after link attempt",
				slog.String("path", src), slog.String("error", rmErr.Error()))
		}

		if failAt >= 0 {
			break
		}
	}

	if failAt >= 0 {
		sync.Abort()
		t.rollbackFrom(failAt)
		return 0, 0, fmt.Errorf("maildir: commit failed staging file %d of %d: %w", failAt+1, n, failErr)
	}

	if err := sync.Close(); err != nil {
		t.rollbackFrom(int(n))
		return 0, 0, fmt.Errorf("maildir: close uidlist sync: %w", err)
	}

	if got := lock.NextUID(); got != last+1 {
		t.rollbackFrom(int(n))
		return 0, 0, fmt.Errorf("maildir: uidlist next-uid mismatch after commit: got %d want %d (concurrent appender slipped past the lock)", got, last+1)
	}

	t.ctx = nil
	return first, last, nil
}

// Rollback unlinks every file this transaction staged under tmp/ and
// discards the context. ENOENT is ignored: a file may already have
// been removed by Commit's per-message cleanup.
func (t *Transaction) Rollback() error {
	if t.ctx == nil {
		return nil
	}
	var firstErr error
	if t.ctx.current != nil {
		if err := t.ctx.discardCurrent(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, f := range t.ctx.files {
		path := filepath.Join(t.mailbox.TmpDir(), f.Basename)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = classifyIOError("unlink tmp file", err)
		}
	}
	t.ctx = nil
	return firstErr
}

// rollbackFrom unlinks the destination files already published for
// staged entries before pos (pos itself was never successfully
// linked), then falls through to Rollback to clean up tmp/.
func (t *Transaction) rollbackFrom(pos int) {
	for i := 0; i < pos; i++ {
		dest := t.destPath(t.ctx.files[i])
		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			t.logger.Error("maildir: failed to unlink already-published file during rollback",
				slog.String("path", dest), slog.String("error", err.Error()))
		}
	}
	_ = t.Rollback()
}
