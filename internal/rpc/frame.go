package rpc

import (
	"encoding/binary"
	"io"

	"github.com/mco-piccolo/timpani/internal/errs"
)

// maxFrameLen bounds a single frame to guard against a corrupt peer
// claiming an unbounded length (Protocol error, never an unbounded read).
const maxFrameLen = 16 << 20 // 16 MiB; generous for a plan payload

// frame is one request or reply on the wire:
//
//	[4B BE length][1B kind][4B BE reqID][payload...]
//
// length counts everything after itself (1 + 4 + len(payload)). kind is
// a Method for requests, or a replyStatus for replies.
type frame struct {
	kind    uint8
	reqID   uint32
	payload []byte
}

type replyStatus uint8

const (
	statusOK  replyStatus = 0
	statusErr replyStatus = 1
)

func writeFrame(w io.Writer, f frame) error {
	hdr := make([]byte, 4+1+4)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(1+4+len(f.payload)))
	hdr[4] = f.kind
	binary.BigEndian.PutUint32(hdr[5:9], f.reqID)
	if _, err := w.Write(hdr); err != nil {
		return errs.Wrap(errs.Network, err, "write frame header")
	}
	if len(f.payload) > 0 {
		if _, err := w.Write(f.payload); err != nil {
			return errs.Wrap(errs.Network, err, "write frame payload")
		}
	}
	return nil
}

func readFrame(r io.Reader) (frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return frame{}, errs.Wrap(errs.Network, err, "read frame length")
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 5 || length > maxFrameLen {
		return frame{}, errs.New(errs.Protocol, "frame length out of bounds")
	}
	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return frame{}, errs.Wrap(errs.Network, err, "read frame body")
	}
	f := frame{
		kind:    rest[0],
		reqID:   binary.BigEndian.Uint32(rest[1:5]),
		payload: rest[5:],
	}
	return f, nil
}
