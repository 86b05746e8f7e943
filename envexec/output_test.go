package envexec

import "testing"

func TestLimitedBuffer(t *testing.T) {
	calls := 0
	b := NewLimitedBuffer(4, func() { calls++ })
	n, err := b.Write([]byte("ab"))
	if n != 2 || err != nil {
		t.Fatal(n, err)
	}
	n, err = b.Write([]byte("cdef"))
	if n != 4 || err != nil {
		t.Fatal(n, err)
	}
	b.Write([]byte("gh"))
	if string(b.Bytes()) != "abcd" {
		t.Fatalf("got %q", b.Bytes())
	}
	if !b.Exceeded() || calls != 1 {
		t.Fatalf("exceeded=%v calls=%d", b.Exceeded(), calls)
	}
}

func TestLimitedBufferUnlimited(t *testing.T) {
	b := NewLimitedBuffer(0, func() { t.Fatal("unlimited buffer exceeded") })
	if n, err := b.Write(make([]byte, 1<<16)); n != 1<<16 || err != nil {
		t.Fatal(n, err)
	}
	if len(b.Bytes()) != 1<<16 || b.Exceeded() {
		t.Fatal("unlimited buffer truncated")
	}
}
