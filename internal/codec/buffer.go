// Package codec implements the reverse length-prefix-suffix binary codec
// of §4.1: scalars are network-byte-order and have no length prefix; blobs
// and strings append their payload first and a 32-bit big-endian length
// after it, so a Reader walks the buffer from its tail backwards. Producer
// and consumer must emit/consume fields in mirror order — the producer's
// last field is the consumer's first.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/mco-piccolo/timpani/internal/cos"
	"github.com/mco-piccolo/timpani/internal/errs"
)

// Buffer is an owned, growable byte buffer for encoding. The zero value is
// an empty buffer ready for use; NewBuffer preallocates capacity.
type Buffer struct {
	buf []byte
	pos int
}

// NewBuffer allocates a Buffer with the given initial capacity hint.
func NewBuffer(initialCap int) *Buffer {
	if initialCap < 0 {
		initialCap = 0
	}
	return &Buffer{buf: make([]byte, initialCap)}
}

// Pos returns the number of bytes written so far.
func (b *Buffer) Pos() int { return b.pos }

// Bytes returns the written prefix of the buffer. The returned slice
// aliases the Buffer's storage and must not be mutated by the caller.
func (b *Buffer) Bytes() []byte { return b.buf[:b.pos] }

// Reset clears the buffer for reuse without releasing its storage.
func (b *Buffer) Reset() { b.pos = 0 }

// ensure grows buf so that n more bytes can be written at pos. Growth
// policy (§4.1): double capacity; if still insufficient, grow by exactly
// the additional bytes required.
func (b *Buffer) ensure(n int) {
	need := b.pos + n
	if need <= cap(b.buf) {
		b.buf = b.buf[:cap(b.buf)]
		return
	}
	newCap := cap(b.buf) * 2
	if newCap < need {
		newCap = need
	}
	nb := make([]byte, newCap)
	copy(nb, b.buf[:b.pos])
	b.buf = nb
}

func (b *Buffer) append(p []byte) {
	b.ensure(len(p))
	copy(b.buf[b.pos:], p)
	b.pos += len(p)
}

func (b *Buffer) PutUint8(v uint8) { b.append([]byte{v}) }

func (b *Buffer) PutUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.append(tmp[:])
}

func (b *Buffer) PutUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.append(tmp[:])
}

func (b *Buffer) PutInt32(v int32) { b.PutUint32(uint32(v)) }

func (b *Buffer) PutUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.append(tmp[:])
}

func (b *Buffer) PutInt64(v int64) { b.PutUint64(uint64(v)) }

func (b *Buffer) PutFloat32(v float32) { b.PutUint32(math.Float32bits(v)) }

func (b *Buffer) PutFloat64(v float64) { b.PutUint64(math.Float64bits(v)) }

// PutBlob appends payload then its 32-bit big-endian length (reverse
// layout, §4.1): the consumer reads the length first by rewinding from
// the tail.
func (b *Buffer) PutBlob(p []byte) {
	b.append(p)
	b.PutUint32(uint32(len(p)))
}

// PutString is PutBlob over the string's UTF-8 bytes. Strings must not
// contain an interior NUL (§6).
func (b *Buffer) PutString(s string) { b.PutBlob([]byte(s)) }

// Reader decodes a Buffer's output from the tail backwards, per §4.1.
type Reader struct {
	buf []byte
	pos int // unread prefix length; shrinks toward 0 as fields are consumed
}

// NewReader wraps buf for reverse decoding, cursor starting at len(buf).
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf, pos: len(buf)}
}

// Pos returns the remaining unread-prefix length.
func (r *Reader) Pos() int { return r.pos }

// Remaining reports whether any bytes remain to be decoded.
func (r *Reader) Remaining() bool { return r.pos > 0 }

func truncated() error {
	return errs.New(errs.Protocol, "TRUNCATED")
}

func (r *Reader) takeTail(n int) ([]byte, error) {
	if n > r.pos {
		return nil, truncated()
	}
	r.pos -= n
	cos.Assert(r.pos >= 0, "codec: reader position underflowed", r.pos)
	return r.buf[r.pos : r.pos+n], nil
}

func (r *Reader) GetUint8() (uint8, error) {
	p, err := r.takeTail(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (r *Reader) GetUint16() (uint16, error) {
	p, err := r.takeTail(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (r *Reader) GetUint32() (uint32, error) {
	p, err := r.takeTail(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

func (r *Reader) GetInt32() (int32, error) {
	v, err := r.GetUint32()
	return int32(v), err
}

func (r *Reader) GetUint64() (uint64, error) {
	p, err := r.takeTail(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

func (r *Reader) GetInt64() (int64, error) {
	v, err := r.GetUint64()
	return int64(v), err
}

func (r *Reader) GetFloat32() (float32, error) {
	v, err := r.GetUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) GetFloat64() (float64, error) {
	v, err := r.GetUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// GetBlob reads a length-suffixed payload: rewind 4 bytes for the
// big-endian length, then rewind that many bytes for the payload.
// Decoding fails with a Protocol/"TRUNCATED" error if position would
// underflow, never returning a truncated or garbage payload.
func (r *Reader) GetBlob() ([]byte, error) {
	n, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	p, err := r.takeTail(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, nil
}

// GetString reads a blob and returns it as a string. The original C
// implementation null-terminates a scratch copy after reading the blob;
// that is an artifact of C string handling with no meaning for a Go
// string and is not reproduced here.
func (r *Reader) GetString() (string, error) {
	p, err := r.GetBlob()
	if err != nil {
		return "", err
	}
	return string(p), nil
}
