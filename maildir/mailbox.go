package maildir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Mailbox is an on-disk maildir: a root directory with the three
// sibling subdirectories tmp/, new/, and cur/.
type Mailbox struct {
	root string
}

// Open ensures the maildir's three sibling directories exist under
// root and returns a handle to it. It is safe to call on an
// already-initialized maildir.
func Open(root string) (*Mailbox, error) {
	for _, sub := range [...]string{"tmp", "new", "cur"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o700); err != nil {
			return nil, fmt.Errorf("maildir: create %s: %w", sub, err)
		}
	}
	return &Mailbox{root: root}, nil
}

// Root returns the mailbox's root directory.
func (m *Mailbox) Root() string { return m.root }

// TmpDir returns the mailbox's tmp/ directory, where messages are
// staged before being published.
func (m *Mailbox) TmpDir() string { return filepath.Join(m.root, "tmp") }

// NewDir returns the mailbox's new/ directory, the destination for
// messages saved with flags exactly FlagRecent.
func (m *Mailbox) NewDir() string { return filepath.Join(m.root, "new") }

// CurDir returns the mailbox's cur/ directory, the destination for
// messages saved with any other flag combination, including no flags
// at all.
func (m *Mailbox) CurDir() string { return filepath.Join(m.root, "cur") }
