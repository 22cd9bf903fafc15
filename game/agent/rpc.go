package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"sync"

	"github.com/wricardo/duel2048/logger"
)

// ServiceName is the net/rpc service exposed by Serve
const ServiceName = "Agent"

// Service is the net/rpc receiver wrapping a Solver
type Service struct {
	solver Solver
}

// Decide answers one request
func (s *Service) Decide(req Request, resp *Response) error {
	r, err := Solve(s.solver, req)
	if err != nil {
		return err
	}
	*resp = r
	logger.Log.Debugw("Agent decision served",
		"kind", req.Kind.String(), "game_id", req.GameID, "result", r.Result, "trace_id", req.TraceID)
	return nil
}

// Serve accepts agent connections on l until ctx is done or l fails
func Serve(ctx context.Context, l net.Listener, solver Solver) error {
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, &Service{solver: solver}); err != nil {
		return fmt.Errorf("failed to register agent service: %w", err)
	}

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	logger.Log.Infow("Agent listening", "addr", l.Addr().String())
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Log.Warnw("Agent accept failed", "error", err)
			continue
		}
		go srv.ServeConn(conn)
	}
}

// RemoteWorker forwards requests to an agent started with Serve. The
// connection is dialed lazily and redialed after a transport failure.
type RemoteWorker struct {
	addr string

	mu     sync.Mutex
	client *rpc.Client
}

// NewRemoteWorker returns a worker for the agent at addr (host:port)
func NewRemoteWorker(addr string) *RemoteWorker {
	return &RemoteWorker{addr: addr}
}

func (w *RemoteWorker) conn() (*rpc.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		return w.client, nil
	}
	client, err := rpc.Dial("tcp", w.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial agent %s: %w", w.addr, err)
	}
	w.client = client
	return client, nil
}

func (w *RemoteWorker) reset(client *rpc.Client) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client == client {
		w.client.Close()
		w.client = nil
	}
}

func (w *RemoteWorker) Decide(ctx context.Context, req Request) (Response, error) {
	client, err := w.conn()
	if err != nil {
		return Response{}, err
	}

	var resp Response
	call := client.Go(ServiceName+".Decide", req, &resp, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-call.Done:
	}

	if call.Error != nil {
		var serverErr rpc.ServerError
		if !errors.As(call.Error, &serverErr) {
			w.reset(client)
		}
		return Response{}, fmt.Errorf("agent call failed: %w", call.Error)
	}
	return resp, nil
}

// Close drops the connection, if any
func (w *RemoteWorker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client == nil {
		return nil
	}
	err := w.client.Close()
	w.client = nil
	return err
}
