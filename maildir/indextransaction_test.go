package maildir

import "testing"

func TestArrayIndexTransactionAssignsInOrder(t *testing.T) {
	arr := NewIndexArray(100)
	txn := NewArrayIndexTransaction(arr)

	var seqs []int
	for i := 0; i < 3; i++ {
		seq, err := txn.AppendPlaceholder(FlagSeen)
		if err != nil {
			t.Fatalf("AppendPlaceholder: %v", err)
		}
		seqs = append(seqs, seq)
	}

	if err := txn.AssignUIDRange(100, 102); err != nil {
		t.Fatalf("AssignUIDRange: %v", err)
	}

	for i, seq := range seqs {
		rec, ok := arr.Lookup(seq)
		if !ok {
			t.Fatalf("Lookup(%d) failed", seq)
		}
		want := uint32(100 + i)
		if rec.UID != want {
			t.Errorf("seq %d: UID = %d, want %d", seq, rec.UID, want)
		}
	}
}

func TestArrayIndexTransactionRangeLengthMismatch(t *testing.T) {
	arr := NewIndexArray(100)
	txn := NewArrayIndexTransaction(arr)
	if _, err := txn.AppendPlaceholder(0); err != nil {
		t.Fatalf("AppendPlaceholder: %v", err)
	}
	if _, err := txn.AppendPlaceholder(0); err != nil {
		t.Fatalf("AppendPlaceholder: %v", err)
	}
	if err := txn.AssignUIDRange(1, 1); err == nil {
		t.Error("AssignUIDRange with a range shorter than the placeholder count should fail")
	}
}

func TestArrayIndexTransactionNoopOnEmpty(t *testing.T) {
	arr := NewIndexArray(100)
	txn := NewArrayIndexTransaction(arr)
	if err := txn.AssignUIDRange(5, 9); err != nil {
		t.Errorf("AssignUIDRange with no placeholders should be a no-op, got %v", err)
	}
}
