package maildir

import "testing"

func TestIndexArrayAppendAndLookup(t *testing.T) {
	arr := NewIndexArray(100)
	for i := 1; i <= 5; i++ {
		seq := arr.appendPlaceholder(FlagSeen)
		arr.setUID(seq, uint32(i*10))
	}
	if got := arr.Count(); got != 5 {
		t.Fatalf("Count() = %d, want 5", got)
	}
	if got := arr.UsedFileSize(); got != 500 {
		t.Fatalf("UsedFileSize() = %d, want 500", got)
	}
	rec, ok := arr.Lookup(3)
	if !ok || rec.UID != 30 {
		t.Fatalf("Lookup(3) = %+v, %v, want UID 30", rec, ok)
	}
	if _, ok := arr.Lookup(0); ok {
		t.Error("Lookup(0) should fail, seq is one-based")
	}
	if _, ok := arr.Lookup(6); ok {
		t.Error("Lookup(6) should fail, out of range")
	}
}

func TestIndexArrayNext(t *testing.T) {
	arr := NewIndexArray(100)
	for i := 1; i <= 3; i++ {
		seq := arr.appendPlaceholder(0)
		arr.setUID(seq, uint32(i))
	}
	rec, seq, ok := arr.Next(1)
	if !ok || seq != 2 || rec.UID != 2 {
		t.Fatalf("Next(1) = %+v, %d, %v, want UID 2 at seq 2", rec, seq, ok)
	}
	if _, _, ok := arr.Next(3); ok {
		t.Error("Next(3) should fail, 3 is the last record")
	}
}

func TestIndexArrayLookupUIDRange(t *testing.T) {
	arr := NewIndexArray(100)
	uids := []uint32{10, 20, 30, 40, 50}
	for _, uid := range uids {
		seq := arr.appendPlaceholder(0)
		arr.setUID(seq, uid)
	}

	cases := []struct {
		name        string
		first, last uint32
		wantUID     uint32
		wantSeq     int
		wantOK      bool
	}{
		{"exact hit", 30, 30, 30, 3, true},
		{"range spanning gap", 25, 35, 30, 3, true},
		{"range before first UID lands on it", 0, 15, 10, 1, true},
		{"range past last", 51, 100, 0, 0, false},
		{"range in a gap", 21, 29, 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, seq, ok := arr.LookupUIDRange(tc.first, tc.last)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if rec.UID != tc.wantUID || seq != tc.wantSeq {
				t.Errorf("got UID=%d seq=%d, want UID=%d seq=%d", rec.UID, seq, tc.wantUID, tc.wantSeq)
			}
		})
	}
}

func TestIndexArrayExpungeRangeCompactsAndRenumbers(t *testing.T) {
	arr := NewIndexArray(100)
	for i := 1; i <= 5; i++ {
		seq := arr.appendPlaceholder(Flags(i))
		arr.setUID(seq, uint32(i))
	}

	var changed []int
	arr.onFlagChange = func(seq int, old, new Flags) {
		changed = append(changed, seq)
		if new != 0 {
			t.Errorf("onFlagChange new = %v, want 0", new)
		}
	}

	removed, err := arr.ExpungeRange(2, 3)
	if err != nil {
		t.Fatalf("ExpungeRange: %v", err)
	}
	if len(removed) != 2 || removed[0].UID != 2 || removed[1].UID != 3 {
		t.Fatalf("removed = %+v, want UIDs 2,3", removed)
	}
	if len(changed) != 2 || changed[0] != 2 || changed[1] != 3 {
		t.Fatalf("onFlagChange called with seqs %v, want [2 3]", changed)
	}

	if got := arr.Count(); got != 3 {
		t.Fatalf("Count() after expunge = %d, want 3", got)
	}
	want := []uint32{1, 4, 5}
	for i, w := range want {
		rec, ok := arr.Lookup(i + 1)
		if !ok || rec.UID != w {
			t.Errorf("Lookup(%d) = %+v, %v, want UID %d", i+1, rec, ok, w)
		}
	}
	if got := arr.UsedFileSize(); got != 300 {
		t.Fatalf("UsedFileSize() after expunge = %d, want 300", got)
	}
}

func TestIndexArrayExpungeRangeOutOfBounds(t *testing.T) {
	arr := NewIndexArray(100)
	arr.appendPlaceholder(0)
	cases := []struct {
		name        string
		first, last int
	}{
		{"zero first", 0, 1},
		{"last before first", 2, 1},
		{"last beyond count", 1, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := arr.ExpungeRange(tc.first, tc.last); err == nil {
				t.Errorf("ExpungeRange(%d,%d) should fail", tc.first, tc.last)
			}
		})
	}
}
