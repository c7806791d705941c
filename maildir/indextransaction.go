package maildir

import "fmt"

// IndexTransaction is the contract the save engine needs from the
// enclosing mailbox transaction's mail-index handle. spec.md treats
// the mail index file format as an external collaborator specified
// only through this contract; arrayIndexTransaction below is a
// reference implementation backed by an in-memory IndexArray, used by
// this package's own tests and by callers that don't need real
// on-disk index persistence.
type IndexTransaction interface {
	// AppendPlaceholder records a pending append with the given flags
	// and returns its in-memory sequence number, assigned immediately
	// (before any UID is known).
	AppendPlaceholder(flags Flags) (seq int, err error)

	// AssignUIDRange assigns the contiguous UID range [first, last] to
	// every placeholder appended by this transaction, in the order
	// AppendPlaceholder was called. len of that range must equal the
	// number of placeholders appended so far.
	AssignUIDRange(first, last uint32) error
}

// arrayIndexTransaction adapts an IndexArray to IndexTransaction,
// tracking which sequence numbers belong to this transaction so
// AssignUIDRange can map the committed UID range back onto them in
// order.
type arrayIndexTransaction struct {
	arr             *IndexArray
	placeholderSeqs []int
}

// NewArrayIndexTransaction creates an IndexTransaction backed by arr.
func NewArrayIndexTransaction(arr *IndexArray) IndexTransaction {
	return &arrayIndexTransaction{arr: arr}
}

func (t *arrayIndexTransaction) AppendPlaceholder(flags Flags) (int, error) {
	seq := t.arr.appendPlaceholder(flags)
	t.placeholderSeqs = append(t.placeholderSeqs, seq)
	return seq, nil
}

func (t *arrayIndexTransaction) AssignUIDRange(first, last uint32) error {
	want := len(t.placeholderSeqs)
	got := int(last-first) + 1
	if want == 0 {
		return nil
	}
	if got != want {
		return fmt.Errorf("maildir: uid range [%d,%d] has %d slots, want %d", first, last, got, want)
	}
	uid := first
	for _, seq := range t.placeholderSeqs {
		t.arr.setUID(seq, uid)
		uid++
	}
	return nil
}
