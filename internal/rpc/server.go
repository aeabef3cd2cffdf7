package rpc

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mco-piccolo/timpani/internal/errs"
	"github.com/mco-piccolo/timpani/internal/nlog"
)

// Handler implements the four RPCs of §4.2. Implementations must be safe
// for concurrent use: each accepted connection is served on its own
// goroutine, and methods may be called concurrently across connections.
type Handler interface {
	Register(nodeID string) error
	SchedInfo(nodeID string) ([]byte, error)
	Sync(nodeID string) (SyncReply, error)
	DMiss(nodeID, taskName string) error
}

// Server listens on object path §4.2's implicit single endpoint: every
// accepted TCP connection is an independent, anonymous session exposing
// all four methods.
type Server struct {
	handler Handler
	lis     net.Listener
	wg      sync.WaitGroup
}

func NewServer(h Handler) *Server {
	return &Server{handler: h}
}

// Serve listens on addr and runs the accept loop on a dedicated thread
// (via errgroup, §5's "dedicated thread owns the RPC server's event
// loop"), returning when ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errs.Wrap(errs.Network, err, "listen on "+addr)
	}
	s.lis = lis
	nlog.Infof("rpc: listening on %s (%s %s)", addr, ObjectPath, InterfaceName)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return lis.Close()
	})
	g.Go(func() error {
		for {
			conn, err := lis.Accept()
			if err != nil {
				select {
				case <-gctx.Done():
					return nil
				default:
					return errs.Wrap(errs.Network, err, "accept")
				}
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handleConn(gctx, conn)
			}()
		}
	})
	err = g.Wait()
	s.wg.Wait()
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tuneConn(tc); err != nil {
			nlog.Warningf("rpc: tune conn from %s: %v", conn.RemoteAddr(), err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		req, err := readFrame(conn)
		if err != nil {
			return // peer closed or framing error; session ends
		}
		reply := s.dispatch(Method(req.kind), req.payload)
		reply.reqID = req.reqID
		if err := writeFrame(conn, reply); err != nil {
			nlog.Warningf("rpc: write reply to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

func errReply(err error) frame {
	return frame{kind: uint8(statusErr), payload: []byte(err.Error())}
}

func okReply(payload []byte) frame {
	return frame{kind: uint8(statusOK), payload: payload}
}

func (s *Server) dispatch(m Method, payload []byte) frame {
	switch m {
	case MethodRegister:
		nodeID, err := decodeRegisterReq(payload)
		if err != nil {
			return errReply(err)
		}
		if err := s.handler.Register(nodeID); err != nil {
			return errReply(err)
		}
		return okReply(nil)

	case MethodSchedInfo:
		nodeID, err := decodeSchedInfoReq(payload)
		if err != nil {
			return errReply(err)
		}
		data, err := s.handler.SchedInfo(nodeID)
		if err != nil {
			return errReply(err)
		}
		return okReply(data)

	case MethodSync:
		nodeID, err := decodeSyncReq(payload)
		if err != nil {
			return errReply(err)
		}
		r, err := s.handler.Sync(nodeID)
		if err != nil {
			return errReply(err)
		}
		return okReply(encodeSyncReply(r))

	case MethodDMiss:
		nodeID, taskName, err := decodeDMissReq(payload)
		if err != nil {
			return errReply(err)
		}
		if err := s.handler.DMiss(nodeID, taskName); err != nil {
			return errReply(err)
		}
		return okReply(nil)

	default:
		return errReply(errs.New(errs.Protocol, "unknown method"))
	}
}
