package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	rundebug "runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/trellisml/trellis/internal/status"
	"github.com/trellisml/trellis/internal/store"
	"github.com/trellisml/trellis/internal/telemetry"
)

const rpcScopeName = "github.com/trellisml/trellis/rpc"

// Server serves store operations over the daemon socket. One server owns its
// store for the daemon's lifetime and closes it on Stop.
type Server struct {
	store      *store.Store
	socketPath string

	// Reported by the status operation.
	version  string
	backend  string
	database string

	mu       sync.RWMutex
	listener net.Listener
	shutdown bool

	stopOnce        sync.Once
	doneChan        chan struct{}
	readyChan       chan struct{}
	pendingShutdown atomic.Bool

	startTime      time.Time
	maxConns       int
	activeConns    int32
	connSemaphore  chan struct{}
	requestTimeout time.Duration

	handlers map[string]handlerFunc

	tracer   trace.Tracer
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

type handlerFunc func(context.Context, *Request) *Response

// NewServer creates a server for st listening on socketPath once started.
//
// Tunables come from the environment: TRELLIS_DAEMON_MAX_CONNS caps
// concurrent connections (default 100) and TRELLIS_DAEMON_REQUEST_TIMEOUT
// bounds each request (default 60s).
func NewServer(st *store.Store, socketPath string) *Server {
	maxConns := 100
	if env := os.Getenv("TRELLIS_DAEMON_MAX_CONNS"); env != "" {
		var conns int
		if _, err := fmt.Sscanf(env, "%d", &conns); err == nil && conns > 0 {
			maxConns = conns
		}
	}

	requestTimeout := 60 * time.Second
	if env := os.Getenv("TRELLIS_DAEMON_REQUEST_TIMEOUT"); env != "" {
		if timeout, err := time.ParseDuration(env); err == nil && timeout > 0 {
			requestTimeout = timeout
		}
	}

	m := telemetry.Meter(rpcScopeName)
	requests, _ := m.Int64Counter("trellis.rpc.requests",
		metric.WithDescription("Total RPC requests served"),
	)
	latency, _ := m.Float64Histogram("trellis.rpc.request.duration",
		metric.WithDescription("RPC request duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	s := &Server{
		store:          st,
		socketPath:     socketPath,
		doneChan:       make(chan struct{}),
		readyChan:      make(chan struct{}),
		startTime:      time.Now(),
		maxConns:       maxConns,
		connSemaphore:  make(chan struct{}, maxConns),
		requestTimeout: requestTimeout,
		tracer:         telemetry.Tracer(rpcScopeName),
		requests:       requests,
		latency:        latency,
	}
	s.initHandlers()
	return s
}

// SetInfo records the daemon identity reported by the status operation.
func (s *Server) SetInfo(version, backend, database string) {
	s.version = version
	s.backend = backend
	s.database = database
}

func (s *Server) initHandlers() {
	st := s.store
	s.handlers = map[string]handlerFunc{
		OpPing:     s.handlePing,
		OpStatus:   s.handleStatus,
		OpShutdown: s.handleShutdown,

		OpPutArtifactType:  handle(st.PutArtifactType),
		OpPutExecutionType: handle(st.PutExecutionType),
		OpPutContextType:   handle(st.PutContextType),
		OpPutTypes:         handle(st.PutTypes),

		OpGetArtifactType:       handle(st.GetArtifactType),
		OpGetExecutionType:      handle(st.GetExecutionType),
		OpGetContextType:        handle(st.GetContextType),
		OpGetArtifactTypes:      handle(st.GetArtifactTypes),
		OpGetExecutionTypes:     handle(st.GetExecutionTypes),
		OpGetContextTypes:       handle(st.GetContextTypes),
		OpGetArtifactTypesByID:  handle(st.GetArtifactTypesByID),
		OpGetExecutionTypesByID: handle(st.GetExecutionTypesByID),
		OpGetContextTypesByID:   handle(st.GetContextTypesByID),

		OpPutArtifacts:                   handle(st.PutArtifacts),
		OpPutExecutions:                  handle(st.PutExecutions),
		OpPutContexts:                    handle(st.PutContexts),
		OpPutEvents:                      handle(st.PutEvents),
		OpPutExecution:                   handle(st.PutExecution),
		OpPutAttributionsAndAssociations: handle(st.PutAttributionsAndAssociations),
		OpPutParentContexts:              handle(st.PutParentContexts),

		OpGetArtifacts:              handle(st.GetArtifacts),
		OpGetArtifactsByID:          handle(st.GetArtifactsByID),
		OpGetArtifactsByType:        handle(st.GetArtifactsByType),
		OpGetArtifactByTypeAndName:  handle(st.GetArtifactByTypeAndName),
		OpGetArtifactsByURI:         handle(st.GetArtifactsByURI),
		OpGetExecutions:             handle(st.GetExecutions),
		OpGetExecutionsByID:         handle(st.GetExecutionsByID),
		OpGetExecutionsByType:       handle(st.GetExecutionsByType),
		OpGetExecutionByTypeAndName: handle(st.GetExecutionByTypeAndName),
		OpGetContexts:               handle(st.GetContexts),
		OpGetContextsByID:           handle(st.GetContextsByID),
		OpGetContextsByType:         handle(st.GetContextsByType),
		OpGetContextByTypeAndName:   handle(st.GetContextByTypeAndName),

		OpGetEventsByArtifactIDs:  handle(st.GetEventsByArtifactIDs),
		OpGetEventsByExecutionIDs: handle(st.GetEventsByExecutionIDs),

		OpGetArtifactsByContext:        handle(st.GetArtifactsByContext),
		OpGetExecutionsByContext:       handle(st.GetExecutionsByContext),
		OpGetContextsByArtifact:        handle(st.GetContextsByArtifact),
		OpGetContextsByExecution:       handle(st.GetContextsByExecution),
		OpGetParentContextsByContext:   handle(st.GetParentContextsByContext),
		OpGetChildrenContextsByContext: handle(st.GetChildrenContextsByContext),

		OpGetLineageGraph: handle(st.GetLineageGraph),
	}
}

// handle adapts one store operation into a handlerFunc: decode args, run,
// encode the result.
func handle[Req any, Resp any](op func(context.Context, *Req) (*Resp, error)) handlerFunc {
	return func(ctx context.Context, req *Request) *Response {
		args := new(Req)
		if len(req.Args) > 0 {
			if err := json.Unmarshal(req.Args, args); err != nil {
				return errorResponse(status.InvalidArgumentf("invalid args for %s: %v", req.Operation, err))
			}
		}
		result, err := op(ctx, args)
		if err != nil {
			return errorResponse(err)
		}
		return successResponse(result)
	}
}

// Start listens on the socket and serves connections until Stop. It blocks;
// run it in a goroutine and use WaitReady to know when the socket is live.
func (s *Server) Start(ctx context.Context) error {
	if err := s.ensureSocketDir(); err != nil {
		return fmt.Errorf("failed to ensure socket directory: %w", err)
	}
	if err := s.removeOldSocket(); err != nil {
		return err
	}

	listener, err := listenRPC(s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}

	// Owner-only socket. Some filesystems reject chmod on sockets; the
	// directory permissions still protect it there.
	if runtime.GOOS != "windows" {
		if err := os.Chmod(s.socketPath, 0o600); err != nil && !isPermissionUnsupportedError(err) {
			_ = listener.Close()
			return fmt.Errorf("failed to set socket permissions: %w", err)
		}
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	close(s.readyChan)
	defer close(s.doneChan)

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.RLock()
			shutdown := s.shutdown
			s.mu.RUnlock()
			if shutdown || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		select {
		case s.connSemaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-s.connSemaphore }()
				atomic.AddInt32(&s.activeConns, 1)
				defer atomic.AddInt32(&s.activeConns, -1)
				s.handleConnection(c)
			}(conn)
		default:
			// Connection limit reached, reject immediately.
			_ = conn.Close()
		}
	}
}

// WaitReady returns a channel closed once the server accepts connections.
func (s *Server) WaitReady() <-chan struct{} {
	return s.readyChan
}

// Stop shuts the server down: no new connections, listener closed, socket
// removed, store closed. Safe to call more than once.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.shutdown = true
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()

		if s.store != nil {
			if closeErr := s.store.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", closeErr)
			}
		}

		if listener != nil {
			if closeErr := listener.Close(); closeErr != nil {
				err = fmt.Errorf("failed to close listener: %w", closeErr)
			}
		}

		if removeErr := os.Remove(s.socketPath); removeErr != nil && !os.IsNotExist(removeErr) {
			err = fmt.Errorf("failed to remove socket: %w", removeErr)
		}
	})

	// Wait for the accept loop to drain, bounded.
	select {
	case <-s.doneChan:
	case <-time.After(5 * time.Second):
	}
	return err
}

// isPermissionUnsupportedError checks if an error indicates the filesystem
// doesn't support permission changes on sockets (e.g., EINVAL on virtio-fs).
func isPermissionUnsupportedError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTSUP
	}
	return false
}

func (s *Server) ensureSocketDir() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	// Best-effort tighten permissions if the directory already existed.
	_ = os.Chmod(dir, 0o700)
	return nil
}

// removeOldSocket clears a stale socket left by a dead daemon. A socket that
// still answers a dial belongs to a live daemon and is left alone.
func (s *Server) removeOldSocket() error {
	if _, err := os.Stat(s.socketPath); err != nil {
		return nil
	}
	conn, err := dialRPC(s.socketPath, 500*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("socket %s is in use by another daemon", s.socketPath)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	// A panicking handler must not take the daemon down.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in handleConnection: %v\n%s\n", r, rundebug.Stack())
		}
	}()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.requestTimeout)); err != nil {
			return
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := errorResponse(status.InvalidArgumentf("invalid request: %v", err))
			if err := s.writeResponse(writer, resp); err != nil {
				return
			}
			continue
		}

		if err := conn.SetWriteDeadline(time.Now().Add(s.requestTimeout)); err != nil {
			return
		}

		resp := s.handleRequest(&req)
		if err := s.writeResponse(writer, resp); err != nil {
			return
		}

		// A shutdown request stops the server once its response is on the
		// wire.
		if s.pendingShutdown.Load() {
			go func() {
				if err := s.Stop(); err != nil {
					fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
				}
			}()
			return
		}
	}
}

func (s *Server) writeResponse(writer *bufio.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := writer.Write(data); err != nil {
		return err
	}
	if err := writer.WriteByte('\n'); err != nil {
		return err
	}
	return writer.Flush()
}

// handleRequest dispatches one request with a span and request metrics.
func (s *Server) handleRequest(req *Request) *Response {
	handler, ok := s.handlers[req.Operation]
	if !ok {
		return errorResponse(status.Unimplementedf("unknown operation: %s", req.Operation))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()

	attrs := []attribute.KeyValue{attribute.String("rpc.operation", req.Operation)}
	if req.Actor != "" {
		attrs = append(attrs, attribute.String("rpc.actor", req.Actor))
	}
	ctx, span := s.tracer.Start(ctx, "rpc."+req.Operation,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	start := time.Now()
	resp := handler(ctx, req)
	elapsed := float64(time.Since(start).Milliseconds())

	mattrs := metric.WithAttributes(
		attribute.String("rpc.operation", req.Operation),
		attribute.Bool("rpc.success", resp.Success),
	)
	s.requests.Add(ctx, 1, mattrs)
	s.latency.Record(ctx, elapsed, mattrs)

	if !resp.Success {
		span.SetStatus(codes.Error, resp.Error)
		span.SetAttributes(attribute.String("rpc.code", resp.Code))
	}
	return resp
}

func (s *Server) handlePing(_ context.Context, _ *Request) *Response {
	return successResponse(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(ctx context.Context, _ *Request) *Response {
	schemaVersion, err := s.store.GetSchemaVersion(ctx)
	if err != nil {
		return errorResponse(err)
	}
	return successResponse(&StatusResult{
		PID:           os.Getpid(),
		Version:       s.version,
		Backend:       s.backend,
		Database:      s.database,
		SocketPath:    s.socketPath,
		SchemaVersion: schemaVersion,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		ActiveConns:   int(atomic.LoadInt32(&s.activeConns)),
	})
}

func (s *Server) handleShutdown(_ context.Context, _ *Request) *Response {
	s.pendingShutdown.Store(true)
	return successResponse(map[string]string{"status": "shutting down"})
}
