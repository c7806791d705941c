package maildir

import (
	"sort"
	"strings"

	gomaildir "github.com/emersion/go-maildir"
)

// Flags is a bitmask of IMAP-style message flags. FlagRecent is not
// part of the maildir filename suffix alphabet: it is implied by a
// message living in new/ rather than cur/, so encodeFlags skips it.
type Flags uint8

const (
	FlagSeen Flags = 1 << iota
	FlagAnswered
	FlagFlagged
	FlagDeleted
	FlagDraft
	// FlagRecent marks a message as having arrived since the last
	// session. A staged file whose Flags is exactly FlagRecent (no
	// other bit set) is destined for new/; any other combination,
	// including the zero value, is destined for cur/.
	FlagRecent
)

// flagLetters maps each persistent flag to the rune the maildir
// ":2,<flags>" suffix uses for it, reusing emersion/go-maildir's
// exported Flag constants instead of re-declaring the alphabet.
var flagLetters = [...]struct {
	bit    Flags
	letter gomaildir.Flag
}{
	{FlagDraft, gomaildir.FlagDraft},
	{FlagFlagged, gomaildir.FlagFlagged},
	{FlagAnswered, gomaildir.FlagReplied},
	{FlagSeen, gomaildir.FlagSeen},
	{FlagDeleted, gomaildir.FlagTrashed},
}

// IsRecentOnly reports whether f is exactly FlagRecent, the only
// combination whose destination is new/ rather than cur/.
func (f Flags) IsRecentOnly() bool {
	return f == FlagRecent
}

// encodeFlags renders the persistent (non-Recent) flags of f as a
// maildir ":2,<flags>" suffix's flag letters, in the canonical sorted
// order maildir readers expect.
func encodeFlags(f Flags) string {
	letters := make([]byte, 0, len(flagLetters))
	for _, fl := range flagLetters {
		if f&fl.bit != 0 {
			letters = append(letters, byte(fl.letter))
		}
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })
	return string(letters)
}

// destnameForFlags returns the cur/ filename for a message staged
// under basename with the given flags, following maildir's
// "<basename>:2,<flags>" convention.
func destnameForFlags(basename string, flags Flags) string {
	return basename + ":2," + encodeFlags(flags)
}

// String renders f for logging.
func (f Flags) String() string {
	var parts []string
	if f&FlagRecent != 0 {
		parts = append(parts, "Recent")
	}
	if letters := encodeFlags(f); letters != "" {
		parts = append(parts, letters)
	}
	if len(parts) == 0 {
		return "(none)"
	}
	return strings.Join(parts, ",")
}
