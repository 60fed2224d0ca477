package server

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/cq"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"runtime/debug"
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Call States & Operations
// --------------------------------------------------------------------------

// CallState is the lifecycle state of a call
type CallState int

const (
	// StateCreated means an accept is outstanding, no peer is bound yet
	StateCreated CallState = iota
	// StateAwaitingRequest means the first read is outstanding
	StateAwaitingRequest
	// StateReading means a further read of a client stream is outstanding
	StateReading
	// StateProcessing means a handler callback is running
	StateProcessing
	// StateAwaitingHandler means no operation is outstanding, the call waits for Send or Finish
	StateAwaitingHandler
	// StateAwaitingResponseFlush means a write is outstanding
	StateAwaitingResponseFlush
	// StateFinishing means the final status is being sent
	StateFinishing
	// StateDone means the call ended, nothing may be requested anymore
	StateDone
)

// String returns the name of the state
func (s CallState) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateAwaitingRequest:
		return "AwaitingRequest"
	case StateReading:
		return "Reading"
	case StateProcessing:
		return "Processing"
	case StateAwaitingHandler:
		return "AwaitingHandler"
	case StateAwaitingResponseFlush:
		return "AwaitingResponseFlush"
	case StateFinishing:
		return "Finishing"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("CallState(%d)", int(s))
	}
}

// callOp identifies the operation a completion belongs to
type callOp int

const (
	opNone callOp = iota
	opAccept
	opRead
	opWrite
	opFinish
	// opCancel is posted by the call itself once the stream context ends
	opCancel
)

// String returns the name of the operation
func (o callOp) String() string {
	switch o {
	case opNone:
		return "none"
	case opAccept:
		return "accept"
	case opRead:
		return "read"
	case opWrite:
		return "write"
	case opFinish:
		return "finish"
	case opCancel:
		return "cancel"
	default:
		return fmt.Sprintf("callOp(%d)", int(o))
	}
}

// callEvent is the tag of every operation requested for a call. Each call owns one
// event per operation, so resolving a completion is a type assertion.
type callEvent struct {
	call *Call
	op   callOp
}

// --------------------------------------------------------------------------
// Call
// --------------------------------------------------------------------------

// Call is the state of one in-flight RPC. A call is created by a worker for an
// outstanding accept and destroyed once its finish completed or it failed.
// At most one transport operation is outstanding per call at any time.
type Call struct {
	id     uint64
	desc   *MethodDescriptor
	server *Server
	worker *worker

	slot    transport.AcceptSlot
	stream  transport.IServerStream
	handler Handler

	ctx       context.Context
	cancel    context.CancelFunc
	span      trace.Span
	start     time.Time
	stopWatch func() bool

	acceptEv callEvent
	readEv   callEvent
	writeEv  callEvent
	finishEv callEvent
	cancelEv callEvent

	mu        sync.Mutex
	state     CallState
	pending   callOp
	read      transport.ReadResult
	outbox    [][]byte
	finishReq *common.Status
	status    common.Status
	requests  int
	readsDone bool
	released  bool
}

// newCall creates a call for the next invocation of a method on the given worker
func newCall(s *Server, w *worker, desc *MethodDescriptor) *Call {
	c := &Call{
		desc:   desc,
		server: s,
		worker: w,
		state:  StateCreated,
		ctx:    context.Background(),
		cancel: func() {},
	}
	c.acceptEv = callEvent{call: c, op: opAccept}
	c.readEv = callEvent{call: c, op: opRead}
	c.writeEv = callEvent{call: c, op: opWrite}
	c.finishEv = callEvent{call: c, op: opFinish}
	c.cancelEv = callEvent{call: c, op: opCancel}
	return c
}

// ID returns the server wide unique id of the call (0 until accepted)
func (c *Call) ID() uint64 {
	return c.id
}

// Method returns the descriptor of the called method
func (c *Call) Method() *MethodDescriptor {
	return c.desc
}

// State returns the current state of the call
func (c *Call) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// arm requests the accept of the next invocation of the method
func (c *Call) arm() {
	c.mu.Lock()
	c.pending = opAccept
	c.mu.Unlock()

	c.server.transport.RequestAccept(c.worker.q, c.desc.Service, c.desc.Method, &c.slot, &c.acceptEv)
}

// --------------------------------------------------------------------------
// Completions (called by the owning worker)
// --------------------------------------------------------------------------

// onAccept binds the accepted stream, creates the handler and requests the first read
func (c *Call) onAccept() {
	c.stream = c.slot.Stream
	c.slot.Stream = nil
	c.id = c.server.nextCallID.Add(1)
	c.start = time.Now()

	ctx, cancel := context.WithCancel(c.stream.Context())
	c.ctx, c.span = c.server.tracer.Start(ctx, c.desc.FullName(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "cqrpc"),
			attribute.String("rpc.service", c.desc.Service),
			attribute.String("rpc.method", c.desc.Method),
			attribute.String("net.peer.name", c.stream.Peer()),
		),
	)
	c.cancel = cancel

	c.server.calls.Store(c.id, c)
	c.server.metrics.accepted.Inc()
	Logger.Debugf("Accepted call %d for %s from %s", c.id, c.desc.FullName(), c.stream.Peer())

	// a cancelled stream is reported to the worker, it may not have an outstanding operation
	c.stopWatch = context.AfterFunc(c.stream.Context(), func() {
		c.worker.q.Push(cq.Event{Tag: &c.cancelEv, OK: false})
	})

	var created bool
	c.invoke(func() {
		h := c.desc.NewHandler()
		h.attach(c, h)
		c.handler = h
		created = true
	})

	c.mu.Lock()
	c.pending = opNone
	switch {
	case !created:
		// the panic already requested the finish
	case c.server.stopping.Load():
		st := common.NewStatus(codes.Unavailable, "server is shutting down")
		c.finishReq = &st
	}
	c.advanceLocked()
	c.mu.Unlock()
}

// onRead delivers a message or the end of the client stream to the handler
func (c *Call) onRead(ok bool) {
	c.mu.Lock()
	c.pending = opNone
	if !ok {
		c.mu.Unlock()
		c.fail(fmt.Errorf("%w: read of call %d (%s) failed", common.ErrTransportFailure, c.id, c.desc.FullName()))
		return
	}
	res := c.read
	c.read = transport.ReadResult{}

	// nothing is delivered once the handler requested the finish
	if c.finishReq != nil || c.state == StateDone {
		c.advanceLocked()
		c.mu.Unlock()
		return
	}

	if res.EOF {
		c.readsDone = true
		if !c.desc.Kind.ClientStreams() && c.requests == 0 {
			st := common.NewStatus(codes.InvalidArgument, "missing request")
			c.finishReq = &st
			c.advanceLocked()
			c.mu.Unlock()
			return
		}
		c.state = StateProcessing
		c.mu.Unlock()

		c.invoke(c.handler.readsDone)
	} else {
		c.requests++
		c.state = StateProcessing
		c.mu.Unlock()
		c.server.metrics.messagesIn.Inc()

		var decodeErr error
		c.invoke(func() { decodeErr = c.handler.deliver(res.Data) })
		if decodeErr != nil {
			Logger.Warningf("Failed to decode request of call %d (%s): %v", c.id, c.desc.FullName(), decodeErr)
			_ = c.finish(common.Statusf(codes.InvalidArgument, "failed to decode request: %v", decodeErr))
		}
	}

	c.mu.Lock()
	c.advanceLocked()
	c.mu.Unlock()
}

// onWrite continues with the next queued write, the finish or the next read
func (c *Call) onWrite(ok bool) {
	c.mu.Lock()
	c.pending = opNone
	if !ok {
		c.mu.Unlock()
		c.fail(fmt.Errorf("%w: write of call %d (%s) failed", common.ErrTransportFailure, c.id, c.desc.FullName()))
		return
	}
	c.advanceLocked()
	c.mu.Unlock()
}

// onFinish destroys the call after the status was sent
func (c *Call) onFinish(ok bool) {
	c.mu.Lock()
	c.pending = opNone
	c.state = StateDone
	c.mu.Unlock()

	if !ok {
		c.release(fmt.Errorf("%w: finish of call %d (%s) failed", common.ErrTransportFailure, c.id, c.desc.FullName()))
		return
	}
	c.release(nil)
}

// onCancel tears the call down if the peer went away while no operation was outstanding.
// An outstanding operation fails on its own.
func (c *Call) onCancel() {
	c.mu.Lock()
	idle := c.pending == opNone && c.state != StateDone
	c.mu.Unlock()

	if idle {
		c.fail(fmt.Errorf("%w: call %d (%s) cancelled", common.ErrTransportFailure, c.id, c.desc.FullName()))
	}
}

// --------------------------------------------------------------------------
// State Machine
// --------------------------------------------------------------------------

// advanceLocked requests the next operation if none is outstanding, c.mu must be held.
// Queued writes come first (in send order), then the requested finish, then the next read.
func (c *Call) advanceLocked() {
	if c.pending != opNone || c.state == StateDone {
		return
	}

	switch {
	case len(c.outbox) > 0:
		data := c.outbox[0]
		c.outbox[0] = nil
		c.outbox = c.outbox[1:]
		c.pending = opWrite
		c.state = StateAwaitingResponseFlush
		c.stream.RequestWrite(data, &c.writeEv)

	case c.finishReq != nil:
		c.pending = opFinish
		c.state = StateFinishing
		c.status = *c.finishReq
		c.stream.RequestFinish(c.status, &c.finishEv)

	case c.wantsReadLocked():
		c.pending = opRead
		if c.requests == 0 {
			c.state = StateAwaitingRequest
		} else {
			c.state = StateReading
		}
		c.stream.RequestRead(&c.read, &c.readEv)

	default:
		c.state = StateAwaitingHandler
	}
}

// wantsReadLocked reports whether another read is due. Single request kinds read once,
// client streams read until end-of-stream.
func (c *Call) wantsReadLocked() bool {
	if c.readsDone {
		return false
	}
	return c.desc.Kind.ClientStreams() || c.requests == 0
}

// send queues an encoded response (see RpcHandler.Send)
func (c *Call) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDone || c.finishReq != nil {
		return common.ErrAlreadyFinished
	}

	c.outbox = append(c.outbox, data)
	if !c.desc.Kind.ServerStreams() {
		st := common.OK()
		c.finishReq = &st
	}
	c.server.metrics.messagesOut.Inc()

	c.advanceLocked()
	return nil
}

// finish requests the end of the call (see RpcHandler.Finish)
func (c *Call) finish(status common.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDone || c.finishReq != nil {
		return common.ErrAlreadyFinished
	}

	c.finishReq = &status
	c.advanceLocked()
	return nil
}

// invoke runs handler code without holding the call lock.
// A panic is logged and finishes the call with codes.Internal.
func (c *Call) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("Handler of call %d (%s) panicked: %v\n%s", c.id, c.desc.FullName(), r, debug.Stack())
			c.server.metrics.panics.Inc()
			c.span.RecordError(fmt.Errorf("handler panicked: %v", r))
			_ = c.finish(common.NewStatus(codes.Internal, "handler panicked"))
		}
	}()
	fn()
}

// --------------------------------------------------------------------------
// Teardown
// --------------------------------------------------------------------------

// fail ends the call after a transport failure
func (c *Call) fail(err error) {
	c.mu.Lock()
	c.state = StateDone
	c.outbox = nil
	c.mu.Unlock()

	c.release(err)
}

// release frees all resources of a done call, it runs once
func (c *Call) release(err error) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	status := c.status
	c.mu.Unlock()

	if c.stopWatch != nil {
		c.stopWatch()
	}
	c.cancel()
	c.server.calls.Delete(c.id)

	code := status.Code.String()
	if err != nil {
		code = "TransportFailure"
		c.span.RecordError(err)
		c.span.SetStatus(otelcodes.Error, err.Error())
	} else if !status.IsOK() {
		c.span.SetStatus(otelcodes.Error, status.String())
	}
	c.span.SetAttributes(attribute.String("rpc.cqrpc.status_code", code))
	c.span.End()

	c.server.metrics.observeFinished(c.desc, code, time.Since(c.start))

	if err != nil {
		Logger.Warningf("Call %d (%s) failed: %v", c.id, c.desc.FullName(), err)
		c.server.metrics.failed.Inc()
		if c.server.failureHook != nil {
			c.server.failureHook(c.desc, err)
		}
		return
	}
	Logger.Debugf("Call %d (%s) finished with %v", c.id, c.desc.FullName(), status)
}
