package maildir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestMailbox(t *testing.T) *Mailbox {
	t.Helper()
	mb, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return mb
}

func TestSaveContextStagesUnderTmp(t *testing.T) {
	mb := newTestMailbox(t)
	ctx := newSaveContext(mb, false)

	cur, err := ctx.saveInit(FlagSeen)
	if err != nil {
		t.Fatalf("saveInit: %v", err)
	}
	h := &SaveHandle{ctx: ctx, input: strings.NewReader("hello world\n")}

	for {
		done, err := h.Continue()
		if err != nil {
			t.Fatalf("Continue: %v", err)
		}
		if done {
			break
		}
	}

	view, err := h.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if view.Destname == "" {
		t.Fatal("message saved with FlagSeen should have a destname")
	}
	if !strings.Contains(view.Destname, ":2,S") {
		t.Errorf("destname %q should carry the S flag suffix", view.Destname)
	}
	if cur.seq != 0 {
		t.Errorf("saveInit-returned state should have seq 0 until a Transaction assigns it, got %d", cur.seq)
	}

	data, err := os.ReadFile(filepath.Join(mb.TmpDir(), view.Basename))
	if err != nil {
		t.Fatalf("staged file missing from tmp/: %v", err)
	}
	if string(data) != "hello world\n" {
		t.Errorf("staged content = %q", string(data))
	}
}

func TestSaveContextCancelUnlinksTmpAndStickyFails(t *testing.T) {
	mb := newTestMailbox(t)
	ctx := newSaveContext(mb, false)

	_, err := ctx.saveInit(FlagRecent)
	if err != nil {
		t.Fatalf("saveInit: %v", err)
	}
	h := &SaveHandle{ctx: ctx, input: strings.NewReader("body")}

	basename := ctx.current.basename
	if err := h.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if _, err := os.Stat(filepath.Join(mb.TmpDir(), basename)); !os.IsNotExist(err) {
		t.Errorf("cancelled tmp file still exists: err=%v", err)
	}

	if _, err := ctx.saveInit(FlagRecent); err != ErrSaveFailed {
		t.Errorf("saveInit after Cancel = %v, want ErrSaveFailed (sticky failure)", err)
	}
}

func TestSaveContextRecentOnlyHasNoDestname(t *testing.T) {
	mb := newTestMailbox(t)
	ctx := newSaveContext(mb, false)

	_, err := ctx.saveInit(FlagRecent)
	if err != nil {
		t.Fatalf("saveInit: %v", err)
	}
	h := &SaveHandle{ctx: ctx, input: strings.NewReader("")}
	for {
		done, err := h.Continue()
		if err != nil {
			t.Fatalf("Continue: %v", err)
		}
		if done {
			break
		}
	}
	view, err := h.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if view.Destname != "" {
		t.Errorf("Destname = %q, want empty for recent-only message", view.Destname)
	}
}

func TestSaveContextFinishAppliesReceivedDate(t *testing.T) {
	mb := newTestMailbox(t)
	ctx := newSaveContext(mb, false)

	cur, err := ctx.saveInit(FlagSeen)
	if err != nil {
		t.Fatalf("saveInit: %v", err)
	}
	want := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	cur.received = want
	cur.haveReceived = true

	h := &SaveHandle{ctx: ctx, input: strings.NewReader("x")}
	for {
		done, err := h.Continue()
		if err != nil {
			t.Fatalf("Continue: %v", err)
		}
		if done {
			break
		}
	}
	view, err := h.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	info, err := os.Stat(filepath.Join(mb.TmpDir(), view.Basename))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.ModTime().Equal(want) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), want)
	}
}
