package maildir

import (
	"io"
	"os"
	"path/filepath"
	"time"
)

// MailView is the minimal materialized view of a just-finished message
// that Finish hands back to the caller, keyed by its in-memory
// sequence number (the UID is not known until Commit).
type MailView struct {
	Seq      int
	Basename string
	Destname string
}

// stagedFileState is the single message currently being streamed into
// a SaveContext, if any. ctx.current is non-nil exactly while a
// message body is open, matching spec.md's SaveContext invariant.
type stagedFileState struct {
	basename     string
	destname     string
	file         *os.File
	out          *outputStream
	seq          int
	received     time.Time
	haveReceived bool
}

// SaveContext owns the staged files belonging to one append
// transaction and the state of whichever message is currently being
// streamed. spec.md models ctx.files as a linked list prepended on
// each save_init, with the head always being the current message;
// this re-architecture instead appends in insertion order and tracks
// "current" through the dedicated current field, so Commit's
// insertion-order walk is a plain forward range with no prepend/
// reverse subtlety to preserve. The "scoped allocation arena" named in
// spec.md's data model has no equivalent here: Go's garbage collector
// reclaims everything a SaveContext allocates once it's unreferenced.
type SaveContext struct {
	mailbox *Mailbox
	crlf    bool

	files   []StagedFile
	current *stagedFileState
	failed  bool
}

// StagedFile is one message staged under tmp/ within a save
// transaction, immutable once created by Finish.
type StagedFile struct {
	// Basename is the file's name under tmp/.
	Basename string
	// Destname is the file's name under cur/, set unless the message's
	// flags were exactly FlagRecent; the empty string means the
	// destination is new/ under the original Basename.
	Destname string
}

// HasDestname reports whether f's destination is cur/ (true) or new/
// (false).
func (f StagedFile) HasDestname() bool { return f.Destname != "" }

func newSaveContext(mb *Mailbox, crlf bool) *SaveContext {
	return &SaveContext{mailbox: mb, crlf: crlf}
}

// saveInit opens a fresh temp file for a new message and records its
// staged-file shape. It does not touch the index; that is the
// Transaction's job, since only the Transaction holds the
// IndexTransaction handle.
func (ctx *SaveContext) saveInit(flags Flags) (*stagedFileState, error) {
	if ctx.failed {
		return nil, ErrSaveFailed
	}

	f, basename, err := CreateTmp(ctx.mailbox.TmpDir(), 0o600)
	if err != nil {
		ctx.failed = true
		return nil, err
	}

	destname := ""
	if !flags.IsRecentOnly() {
		destname = destnameForFlags(basename, flags)
	}

	cur := &stagedFileState{
		basename: basename,
		destname: destname,
		file:     f,
		out:      newOutputStream(f, ctx.crlf),
	}
	ctx.current = cur
	return cur, nil
}

// discardCurrent unlinks the current message's temp file (if any) and
// clears current without recording it as a staged file. It is used on
// every failure path and by Cancel.
func (ctx *SaveContext) discardCurrent() error {
	cur := ctx.current
	ctx.current = nil
	if cur == nil {
		return nil
	}
	_ = cur.file.Close()
	path := filepath.Join(ctx.mailbox.TmpDir(), cur.basename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return classifyIOError("unlink tmp file", err)
	}
	return nil
}

// SaveHandle is the caller's handle to one message being staged. It
// is returned by Transaction.SaveInit and retired by Finish or
// Cancel.
type SaveHandle struct {
	ctx   *SaveContext
	input io.Reader
}

// continueChunkSize bounds how much of the input stream a single
// Continue call copies, so a caller driving Continue from a
// readiness-style event loop never blocks substantially longer than
// it takes to write one chunk.
const continueChunkSize = 64 * 1024

// Continue copies up to one chunk of the input stream into the
// message's output stream. It returns done=true once the input is
// exhausted. Once a write (or read) error occurs, the SaveContext's
// failed flag is set and every subsequent call on this handle or any
// other handle from the same context returns ErrSaveFailed.
func (h *SaveHandle) Continue() (done bool, err error) {
	if h.ctx.failed {
		return false, ErrSaveFailed
	}
	if h.ctx.current == nil {
		return false, ErrNoMessageOpen
	}

	_, err = io.CopyN(h.ctx.current.out, h.input, continueChunkSize)
	if err != nil {
		if err == io.EOF {
			return true, nil
		}
		h.ctx.failed = true
		return false, classifyIOError("write message body", err)
	}
	return false, nil
}

// Finish closes the current message: it flushes the buffered body,
// then, if a received-date was supplied to SaveInit, sets the file's
// modification time to it (and access time to now), and finally
// fsyncs and closes the staged file. The
// staged file is durable under tmp/ but not yet visible in new/ or
// cur/; that happens at Transaction.Commit. After Finish returns
// successfully the context is ready for another SaveInit within the
// same transaction.
func (h *SaveHandle) Finish() (*MailView, error) {
	if h.ctx.failed {
		_ = h.ctx.discardCurrent()
		return nil, ErrSaveFailed
	}
	cur := h.ctx.current
	if cur == nil {
		return nil, ErrNoMessageOpen
	}

	if err := cur.out.Flush(); err != nil {
		h.ctx.failed = true
		_ = h.ctx.discardCurrent()
		return nil, classifyIOError("flush message body", err)
	}

	if cur.haveReceived {
		if err := os.Chtimes(cur.file.Name(), time.Now(), cur.received); err != nil {
			h.ctx.failed = true
			_ = h.ctx.discardCurrent()
			return nil, classifyIOError("set received-date mtime", err)
		}
	}
	if err := cur.file.Sync(); err != nil {
		h.ctx.failed = true
		_ = h.ctx.discardCurrent()
		return nil, classifyIOError("fsync message body", err)
	}
	if err := cur.file.Close(); err != nil {
		h.ctx.failed = true
		return nil, classifyIOError("close message body", err)
	}

	h.ctx.files = append(h.ctx.files, StagedFile{Basename: cur.basename, Destname: cur.destname})
	h.ctx.current = nil

	return &MailView{Seq: cur.seq, Basename: cur.basename, Destname: cur.destname}, nil
}

// Cancel discards the current message: its temp file is unlinked and
// it is dropped without being added to the context's staged-file
// list. Cancel marks the context failed, exactly as spec.md's
// save_cancel ("equivalent to finish after setting failed"), so any
// further SaveInit on the same transaction also fails: once a message
// in a transaction is abandoned, the whole transaction is abandoned.
func (h *SaveHandle) Cancel() error {
	h.ctx.failed = true
	return h.ctx.discardCurrent()
}
