package maildir

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/segmentio/ksuid"
)

// maxCreateAttempts bounds the number of unique-basename collisions
// CreateTmp will retry past before giving up. A collision here means
// something is wrong with the basename generator, not that the
// mailbox is busy: ksuid collisions are not expected in practice.
const maxCreateAttempts = 8

// CreateTmp creates a uniquely named file under dir, opened for
// writing, and returns it along with its basename. The caller owns
// the returned file: on any failure path the caller must unlink the
// temp file before returning.
func CreateTmp(dir string, mode os.FileMode) (*os.File, string, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		name := uniqueBasename()
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREAT|os.O_EXCL, mode)
		if err == nil {
			return f, name, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return nil, "", classifyIOError("create tmp file", err)
	}
	return nil, "", fmt.Errorf("maildir: could not create a unique tmp file after %d attempts: %w", maxCreateAttempts, ErrCritical)
}

// uniqueBasename generates a unique basename in the traditional
// maildir shape of "<distinguishing token>.<hostname>", using a ksuid
// (time-sortable, globally unique) in place of the classic
// time/pid/counter tuple that spec.md explicitly treats as an
// external, out-of-scope collaborator.
func uniqueBasename() string {
	return ksuid.New().String() + "." + hostnameForBasenames()
}

var cachedHostname string

func hostnameForBasenames() string {
	if cachedHostname != "" {
		return cachedHostname
	}
	h, err := os.Hostname()
	if err != nil || h == "" {
		h = "localhost"
	}
	cachedHostname = h
	return cachedHostname
}

// outputStream is the writable side of a staged file: a buffered
// writer, optionally passing through a CRLF filter, over the
// underlying *os.File so Finish can fsync and Close the descriptor
// directly.
type outputStream struct {
	file *os.File
	bw   *bufio.Writer
}

func newOutputStream(f *os.File, crlfConvert bool) *outputStream {
	var w = io.Writer(f)
	if crlfConvert {
		w = &crlfFilter{w: f}
	}
	return &outputStream{file: f, bw: bufio.NewWriter(w)}
}

func (o *outputStream) Write(p []byte) (int, error) { return o.bw.Write(p) }
func (o *outputStream) Flush() error                { return o.bw.Flush() }
