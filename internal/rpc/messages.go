package rpc

import (
	"encoding/binary"

	"github.com/mco-piccolo/timpani/internal/errs"
)

// The RPC envelope uses ordinary forward length-prefixed encoding — a
// distinct, simpler concern from the reverse length-prefix-suffix codec
// of §4.1, which applies only to the SchedInfo plan payload itself.

func putString(dst []byte, s string) []byte {
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(s)))
	dst = append(dst, lb[:]...)
	return append(dst, s...)
}

func getString(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, errs.New(errs.Protocol, "TRUNCATED: string length")
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return "", nil, errs.New(errs.Protocol, "TRUNCATED: string payload")
	}
	return string(b[:n]), b[n:], nil
}

func encodeRegisterReq(nodeID string) []byte {
	return putString(nil, nodeID)
}

func decodeRegisterReq(b []byte) (nodeID string, err error) {
	nodeID, _, err = getString(b)
	return
}

func encodeSchedInfoReq(nodeID string) []byte { return putString(nil, nodeID) }

func decodeSchedInfoReq(b []byte) (nodeID string, err error) {
	nodeID, _, err = getString(b)
	return
}

func encodeSyncReq(nodeID string) []byte { return putString(nil, nodeID) }

func decodeSyncReq(b []byte) (nodeID string, err error) {
	nodeID, _, err = getString(b)
	return
}

// SyncReply is the §4.2 Sync reply: an ack plus a (sec, nsec) wall-clock
// timestamp, meaningful only when ack == 1.
type SyncReply struct {
	Ack  int32
	Sec  int64
	Nsec int32
}

func encodeSyncReply(r SyncReply) []byte {
	b := make([]byte, 0, 4+8+4)
	var tmp [8]byte
	binary.BigEndian.PutUint32(tmp[:4], uint32(r.Ack))
	b = append(b, tmp[:4]...)
	binary.BigEndian.PutUint64(tmp[:8], uint64(r.Sec))
	b = append(b, tmp[:8]...)
	binary.BigEndian.PutUint32(tmp[:4], uint32(r.Nsec))
	b = append(b, tmp[:4]...)
	return b
}

func decodeSyncReply(b []byte) (SyncReply, error) {
	if len(b) < 4+8+4 {
		return SyncReply{}, errs.New(errs.Protocol, "TRUNCATED: sync reply")
	}
	ack := int32(binary.BigEndian.Uint32(b[0:4]))
	sec := int64(binary.BigEndian.Uint64(b[4:12]))
	nsec := int32(binary.BigEndian.Uint32(b[12:16]))
	return SyncReply{Ack: ack, Sec: sec, Nsec: nsec}, nil
}

func encodeDMissReq(nodeID, taskName string) []byte {
	b := putString(nil, nodeID)
	return putString(b, taskName)
}

func decodeDMissReq(b []byte) (nodeID, taskName string, err error) {
	nodeID, b, err = getString(b)
	if err != nil {
		return "", "", err
	}
	taskName, _, err = getString(b)
	return nodeID, taskName, err
}
