package codec

import (
	"bytes"
	"testing"

	"github.com/mco-piccolo/timpani/internal/errs"
)

// TestRoundTripScalarsAndBlobs mirrors §8 scenario 6: encode str("abcd")
// then int64(0xDEADBEEFCAFEBABE); decode in mirror (reverse) order.
func TestRoundTripScalarsAndBlobs(t *testing.T) {
	buf := NewBuffer(0)
	buf.PutString("abcd")
	buf.PutInt64(int64(uint64(0xDEADBEEFCAFEBABE)))

	want := []byte{
		'a', 'b', 'c', 'd',
		0x00, 0x00, 0x00, 0x04, // length of "abcd"
		0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE, 0xBA, 0xBE,
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("wire mismatch:\n got %x\nwant %x", buf.Bytes(), want)
	}

	r := NewReader(buf.Bytes())
	i, err := r.GetInt64()
	if err != nil || i != int64(uint64(0xDEADBEEFCAFEBABE)) {
		t.Fatalf("GetInt64: %v, %x", err, i)
	}
	s, err := r.GetString()
	if err != nil || s != "abcd" {
		t.Fatalf("GetString: %v, %q", err, s)
	}
	if r.Remaining() {
		t.Fatalf("expected buffer fully consumed, %d bytes remain", r.Pos())
	}
}

// TestPositionSafety checks invariant I7: pos equals the sum of encoded
// field sizes, and decoding advances the cursor by the exact same sum.
func TestPositionSafety(t *testing.T) {
	buf := NewBuffer(4)
	buf.PutUint8(1)         // 1
	buf.PutUint32(2)        // 4
	buf.PutString("hi")     // 2 + 4
	buf.PutFloat64(3.14159) // 8
	want := 1 + 4 + (2 + 4) + 8
	if buf.Pos() != want {
		t.Fatalf("Pos() = %d, want %d", buf.Pos(), want)
	}

	r := NewReader(buf.Bytes())
	if _, err := r.GetFloat64(); err != nil {
		t.Fatal(err)
	}
	if r.Pos() != want-8 {
		t.Fatalf("after GetFloat64, Pos() = %d, want %d", r.Pos(), want-8)
	}
	if _, err := r.GetString(); err != nil {
		t.Fatal(err)
	}
	if r.Pos() != 1+4 {
		t.Fatalf("after GetString, Pos() = %d, want %d", r.Pos(), 1+4)
	}
	if _, err := r.GetUint32(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetUint8(); err != nil {
		t.Fatal(err)
	}
	if r.Remaining() {
		t.Fatalf("buffer should be fully consumed")
	}
}

// TestTruncatedDecodeFails checks the boundary behavior: removing bytes
// from the tail of a serialized payload must fail decode with Protocol,
// never return garbage.
func TestTruncatedDecodeFails(t *testing.T) {
	buf := NewBuffer(0)
	buf.PutString("hello")
	full := buf.Bytes()

	truncatedPayload := full[:len(full)-1]
	r := NewReader(truncatedPayload)
	if _, err := r.GetString(); err == nil {
		t.Fatal("expected error decoding truncated payload")
	} else if !errs.Is(err, errs.Protocol) {
		t.Fatalf("expected Protocol kind, got %v", err)
	}
}

func TestGrowthPolicyDoublesThenExact(t *testing.T) {
	buf := NewBuffer(2)
	buf.PutUint8(1)
	buf.PutUint8(2)
	if cap(buf.buf) != 2 {
		t.Fatalf("expected no growth yet, cap=%d", cap(buf.buf))
	}
	buf.PutUint32(0xAABBCCDD) // forces growth beyond doubling to 4
	if cap(buf.buf) < 6 {
		t.Fatalf("expected capacity to cover 6 bytes, got %d", cap(buf.buf))
	}
}
