package rpc

import (
	"context"
	"net"
	"testing"
	"time"
)

type fakeHandler struct {
	registered []string
	plan       []byte
	syncAcks   map[string]bool
	dmisses    []string
}

func (f *fakeHandler) Register(nodeID string) error {
	f.registered = append(f.registered, nodeID)
	return nil
}

func (f *fakeHandler) SchedInfo(nodeID string) ([]byte, error) {
	return f.plan, nil
}

func (f *fakeHandler) Sync(nodeID string) (SyncReply, error) {
	if f.syncAcks == nil {
		f.syncAcks = make(map[string]bool)
	}
	if nodeID == "unknown" {
		return SyncReply{Ack: 0}, nil
	}
	f.syncAcks[nodeID] = true
	if len(f.syncAcks) >= 2 {
		return SyncReply{Ack: 1, Sec: 1000, Nsec: 5}, nil
	}
	return SyncReply{Ack: 0}, nil
}

func (f *fakeHandler) DMiss(nodeID, taskName string) error {
	f.dmisses = append(f.dmisses, nodeID+"/"+taskName)
	return nil
}

// TestSyncBarrierRequiresAllNodes exercises the handler contract directly
// (I5): ack=1 only once every known node has called Sync at least once;
// an unknown node always gets ack=0.
func TestSyncBarrierRequiresAllNodes(t *testing.T) {
	h := &fakeHandler{plan: []byte("plan-bytes")}
	r1, err := h.Sync("n1")
	if err != nil || r1.Ack != 0 {
		t.Fatalf("expected ack=0 after first node, got %+v, %v", r1, err)
	}
	r2, err := h.Sync("unknown")
	if err != nil || r2.Ack != 0 {
		t.Fatalf("expected ack=0 for unknown node, got %+v, %v", r2, err)
	}
	r3, err := h.Sync("n2")
	if err != nil || r3.Ack != 1 {
		t.Fatalf("expected ack=1 once all known nodes have called, got %+v, %v", r3, err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	pr, pw := net.Pipe()
	f := frame{kind: uint8(MethodDMiss), reqID: 42, payload: []byte("hello")}
	go func() {
		_ = writeFrame(pw, f)
	}()
	got, err := readFrame(pr)
	if err != nil {
		t.Fatal(err)
	}
	if got.kind != f.kind || got.reqID != f.reqID || string(got.payload) != string(f.payload) {
		t.Fatalf("frame mismatch: %+v", got)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	nodeID, err := decodeRegisterReq(encodeRegisterReq("n1"))
	if err != nil || nodeID != "n1" {
		t.Fatalf("register req roundtrip: %v %q", err, nodeID)
	}
	n, task, err := decodeDMissReq(encodeDMissReq("n1", "hello"))
	if err != nil || n != "n1" || task != "hello" {
		t.Fatalf("dmiss req roundtrip: %v %q %q", err, n, task)
	}
	sr, err := decodeSyncReply(encodeSyncReply(SyncReply{Ack: 1, Sec: 123, Nsec: 456}))
	if err != nil || sr.Ack != 1 || sr.Sec != 123 || sr.Nsec != 456 {
		t.Fatalf("sync reply roundtrip: %v %+v", err, sr)
	}
}

// TestEndToEnd spins up a real Server over a loopback TCP listener and
// drives all four RPCs through a real Client.
func TestEndToEnd(t *testing.T) {
	h := &fakeHandler{plan: []byte("plan-bytes")}
	s := NewServer(h)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	lis.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(ctx, addr) }()
	time.Sleep(20 * time.Millisecond) // let the listener bind

	c, err := Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	callCtx := context.Background()
	if err := c.Register(callCtx, "n1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	plan, err := c.SchedInfo(callCtx, "n1")
	if err != nil || string(plan) != "plan-bytes" {
		t.Fatalf("SchedInfo: %v %q", err, plan)
	}
	if err := c.DMiss(callCtx, "n1", "hello"); err != nil {
		t.Fatalf("DMiss: %v", err)
	}

	r, err := c.Sync(callCtx, "n1")
	if err != nil || r.Ack != 0 {
		t.Fatalf("Sync first call: %v %+v", err, r)
	}
	r, err = c.Sync(callCtx, "n2")
	if err != nil || r.Ack != 1 {
		t.Fatalf("Sync second call should unlock barrier: %v %+v", err, r)
	}

	cancel()
	<-serveErr
}

func TestCallTimesOut(t *testing.T) {
	pr, pw := net.Pipe()
	// Drain writes on the other end so Client.call's write doesn't block,
	// but never send a reply, so the call must time out.
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := pr.Read(buf); err != nil {
				return
			}
		}
	}()
	c := &Client{conn: pw, pending: make(map[uint32]chan frame), closed: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.call(ctx, MethodSync, encodeSyncReq("n1"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
