package server

import (
	"context"
	"errors"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/cq"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"io"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("rpc")

// tracerName is the instrumentation name of the server spans
const tracerName = "github.com/ValentinKolb/cqrpc/rpc/server"

// Server accepts calls for the registered methods and drives them on a pool of
// completion queue workers. A server is created by Builder.Build, it can be started
// once and is not restarted after Shutdown.
type Server struct {
	config      common.ServerConfig
	transport   transport.IRPCServerTransport
	services    map[string]*Service
	order       []string
	methods     []*MethodDescriptor
	failureHook TransportFailureHook

	metrics    *serverMetrics
	tracer     trace.Tracer
	calls      *xsync.MapOf[uint64, *Call]
	nextCallID atomic.Uint64
	stopping   atomic.Bool

	mu            sync.Mutex
	started       bool
	workers       []*worker
	metricsServer *http.Server
	ready         chan struct{}
	done          chan struct{}
	doneOnce      sync.Once
	stopOnce      sync.Once
}

// newServer creates a server, called by Builder.Build
func newServer(
	config common.ServerConfig,
	t transport.IRPCServerTransport,
	services map[string]*Service,
	order []string,
	methods []*MethodDescriptor,
	hook TransportFailureHook,
) *Server {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	s := &Server{
		config:      config,
		transport:   t,
		services:    services,
		order:       order,
		methods:     methods,
		failureHook: hook,
		tracer:      otel.Tracer(tracerName),
		calls:       xsync.NewMapOf[uint64, *Call](),
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.metrics = newServerMetrics(s)
	return s
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// StartAndWait binds the endpoint, arms one accept per method on every worker,
// starts the transport and the workers and blocks until the server is shut down.
//
// Usage:
//
//	go func() {
//		if err := s.StartAndWait(); err != nil {
//			log.Fatal(err)
//		}
//	}()
//	<-s.Ready()
func (s *Server) StartAndWait() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		if s.stopping.Load() {
			return common.ErrServerStopped
		}
		return common.NewConfigurationError("server was already started")
	}
	s.started = true
	s.mu.Unlock()
	defer s.doneOnce.Do(func() { close(s.done) })

	common.InitLoggers(s.config)
	Logger.Infof("Starting server with %d methods in %d services on %s transport", len(s.methods), len(s.order), s.transport.GetName())
	Logger.Infof(s.config.String())

	if err := s.transport.Listen(s.config); err != nil {
		Logger.Errorf("Failed to listen on %s: %v", s.config.Endpoint, err)
		return err
	}

	// every worker has an outstanding accept for every method before the first call can arrive
	workers := make([]*worker, s.config.WorkerThreads)
	for i := range workers {
		workers[i] = newWorker(s, i)
		workers[i].armAll()
	}

	if err := s.serveMetrics(); err != nil {
		s.abortStart(workers)
		return err
	}

	if err := s.transport.Start(); err != nil {
		s.abortStart(workers)
		return err
	}

	var g errgroup.Group
	for _, w := range workers {
		g.Go(w.run)
	}

	s.mu.Lock()
	s.workers = workers
	s.mu.Unlock()
	close(s.ready)
	Logger.Infof("Server ready on %s with %d workers", s.transport.Addr(), len(workers))

	err := g.Wait()
	Logger.Infof("Server stopped")
	return err
}

// abortStart releases everything acquired by a failed start
func (s *Server) abortStart(workers []*worker) {
	s.stopping.Store(true)
	if err := s.transport.Shutdown(); err != nil {
		Logger.Warningf("Failed to shut down transport: %v", err)
	}
	for _, w := range workers {
		w.q.Close()

		// no worker runs, drop the failed accepts
		go func(q *cq.CompletionQueue) {
			for range q.Recv() {
			}
		}(w.q)
	}
	if s.metricsServer != nil {
		_ = s.metricsServer.Close()
	}
}

// Shutdown stops the server. It stops accepting calls, fails all outstanding transport
// operations, waits until all calls are done and the workers stopped. If ctx ends first,
// the workers are stopped anyway and ctx.Err() is returned.
// StartAndWait returns once the workers stopped.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		// never started, the server can not be started anymore
		s.started = true
		s.stopping.Store(true)
		s.mu.Unlock()
		s.doneOnce.Do(func() { close(s.done) })
		return nil
	}
	s.mu.Unlock()

	select {
	case <-s.ready:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	var err error
	s.stopOnce.Do(func() { err = s.stop(ctx) })
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop runs the shutdown sequence once
func (s *Server) stop(ctx context.Context) error {
	s.stopping.Store(true)
	Logger.Infof("Shutting down server (%d active calls)", s.calls.Size())

	// failed streams cancel their calls, idle calls are torn down by their worker
	if err := s.transport.Shutdown(); err != nil {
		Logger.Warningf("Failed to shut down transport: %v", err)
	}

	drainErr := s.drain(ctx)
	if drainErr != nil {
		Logger.Warningf("Stopping workers with %d active calls: %v", s.calls.Size(), drainErr)
	}

	s.mu.Lock()
	workers := s.workers
	s.mu.Unlock()
	for _, w := range workers {
		w.q.Close()
	}

	if s.metricsServer != nil {
		if err := s.metricsServer.Close(); err != nil {
			Logger.Warningf("Failed to close metrics endpoint: %v", err)
		}
	}
	return drainErr
}

// drain waits until no call is active
func (s *Server) drain(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for s.calls.Size() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// serveMetrics binds the metrics endpoint if one is configured
func (s *Server) serveMetrics() error {
	if s.config.MetricsEndpoint == "" {
		return nil
	}

	listener, err := net.Listen("tcp", s.config.MetricsEndpoint)
	if err != nil {
		return common.NewBindError(s.config.MetricsEndpoint, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s.WriteMetrics(w)
	})
	s.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics endpoint failed: %v", err)
		}
	}()
	Logger.Infof("Serving metrics on http://%s/metrics", listener.Addr())
	return nil
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Ready is closed once the server accepts calls
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed once StartAndWait returned
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Addr returns the bound address of the transport (empty before start)
func (s *Server) Addr() string {
	return s.transport.Addr()
}

// Config returns the configuration of the server
func (s *Server) Config() common.ServerConfig {
	return s.config
}

// Service returns the service with the given name
func (s *Server) Service(name string) (*Service, bool) {
	svc, ok := s.services[name]
	return svc, ok
}

// Services returns the names of all services, sorted
func (s *Server) Services() []string {
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	return names
}

// Lookup returns the descriptor of a method
func (s *Server) Lookup(service, method string) (*MethodDescriptor, bool) {
	svc, ok := s.services[service]
	if !ok {
		return nil, false
	}
	return svc.Method(method)
}

// ActiveCalls returns the number of accepted calls that are not done
func (s *Server) ActiveCalls() int {
	return s.calls.Size()
}

// Stats returns the operation accounting of the transport
func (s *Server) Stats() transport.Stats {
	return s.transport.Stats()
}

// WriteMetrics writes the server metrics in the Prometheus text format
func (s *Server) WriteMetrics(w io.Writer) {
	s.metrics.write(w)
}
