package server

import (
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/serializer"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"github.com/ValentinKolb/cqrpc/rpc/transport/tcp"
	"reflect"
	"sync"
)

// TransportFailureHook is called after a call was torn down because one of its
// operations failed in the transport. The error wraps common.ErrTransportFailure.
type TransportFailureHook func(method *MethodDescriptor, err error)

// Builder collects the configuration and the handlers of a server.
// A builder can only build one server, mutating it afterwards fails.
//
// Usage:
//
//	b := server.NewBuilder()
//	_ = b.SetAddress("0.0.0.0:50051")
//	_ = b.SetWorkerThreadCount(8)
//	if err := server.RegisterHandler[*EchoHandler](b, "cqrpc.Echo", "Echo", server.Unary); err != nil {
//		panic(err)
//	}
//	s, err := b.Build()
//	if err != nil {
//		panic(err)
//	}
//	go s.StartAndWait()
type Builder struct {
	mu          sync.Mutex
	config      common.ServerConfig
	transport   transport.IRPCServerTransport
	codec       serializer.ICodec
	failureHook TransportFailureHook
	methods     []*MethodDescriptor
	index       map[string]*MethodDescriptor
	built       bool
}

// NewBuilder creates a new builder with the default configuration
func NewBuilder() *Builder {
	return &Builder{
		config: common.DefaultServerConfig(),
		index:  make(map[string]*MethodDescriptor),
	}
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetAddress sets the endpoint the server listens on
func (b *Builder) SetAddress(addr string) error {
	if addr == "" {
		return common.NewConfigurationError("address must not be empty")
	}
	return b.mutate(func() { b.config.Endpoint = addr })
}

// SetWorkerThreadCount sets the number of completion queue workers (>= 1)
func (b *Builder) SetWorkerThreadCount(n int) error {
	if n < 1 {
		return common.NewConfigurationError("worker thread count must be >= 1, got %d", n)
	}
	return b.mutate(func() { b.config.WorkerThreads = n })
}

// SetConfig replaces the whole server configuration
func (b *Builder) SetConfig(config common.ServerConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return b.mutate(func() { b.config = config })
}

// SetTransport sets the server transport (TCP if not set)
func (b *Builder) SetTransport(t transport.IRPCServerTransport) error {
	if t == nil {
		return common.NewConfigurationError("transport must not be nil")
	}
	return b.mutate(func() { b.transport = t })
}

// SetCodec sets the default codec of all methods registered without WithCodec (JSON if not set)
func (b *Builder) SetCodec(codec serializer.ICodec) error {
	if codec == nil {
		return common.NewConfigurationError("codec must not be nil")
	}
	return b.mutate(func() { b.codec = codec })
}

// SetTransportFailureHook sets a hook that observes calls failed by the transport
func (b *Builder) SetTransportFailureHook(hook TransportFailureHook) error {
	return b.mutate(func() { b.failureHook = hook })
}

// mutate applies a change unless the builder was already used
func (b *Builder) mutate(change func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return common.NewConfigurationError("builder was already used to build a server")
	}
	change()
	return nil
}

// --------------------------------------------------------------------------
// Handler Registration
// --------------------------------------------------------------------------

// RegisterHandler registers the handler type H for a method. H must be a pointer to a
// struct embedding RpcHandler, a fresh instance is allocated for every call.
// Registering the same service and method twice fails with a configuration error.
func RegisterHandler[H Handler](b *Builder, service, method string, kind MethodKind, opts ...MethodOption) error {
	ht := reflect.TypeFor[H]()
	if ht.Kind() != reflect.Pointer || ht.Elem().Kind() != reflect.Struct {
		return common.NewConfigurationError("handler type %v for %s/%s must be a pointer to a struct", ht, service, method)
	}

	elem := ht.Elem()
	return RegisterHandlerFactory(b, service, method, kind, func() H {
		return reflect.New(elem).Interface().(H)
	}, opts...)
}

// RegisterHandlerFactory registers a method whose handler instances are created by
// factory, e.g. to inject dependencies. The factory must return a new instance on every call.
func RegisterHandlerFactory[H Handler](b *Builder, service, method string, kind MethodKind, factory func() H, opts ...MethodOption) error {
	if service == "" || method == "" {
		return common.NewConfigurationError("service and method name must not be empty (got %q/%q)", service, method)
	}
	if !kind.valid() {
		return common.NewConfigurationError("invalid method kind %v for %s/%s", kind, service, method)
	}
	if factory == nil {
		return common.NewConfigurationError("handler factory for %s/%s must not be nil", service, method)
	}

	// probe an instance to capture the message types
	probe := factory()
	if rv := reflect.ValueOf(probe); !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return common.NewConfigurationError("handler factory for %s/%s returned nil", service, method)
	}
	if err := probe.check(probe); err != nil {
		return common.NewConfigurationError("invalid handler for %s/%s: %v", service, method, err)
	}
	reqType, respType := probe.messageTypes()

	desc := &MethodDescriptor{
		Service:  service,
		Method:   method,
		Kind:     kind,
		Request:  reqType,
		Response: respType,
		factory:  func() Handler { return factory() },
	}
	for _, opt := range opts {
		opt(desc)
	}

	return b.register(desc)
}

// register adds a descriptor to the registry
func (b *Builder) register(desc *MethodDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return common.NewConfigurationError("builder was already used to build a server")
	}
	if _, exists := b.index[desc.FullName()]; exists {
		return common.NewConfigurationError("handler for %s already registered", desc.FullName())
	}

	b.index[desc.FullName()] = desc
	b.methods = append(b.methods, desc)
	return nil
}

// Lookup returns the descriptor registered for a method
func (b *Builder) Lookup(service, method string) (*MethodDescriptor, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	desc, ok := b.index[service+"/"+method]
	return desc, ok
}

// --------------------------------------------------------------------------
// Build
// --------------------------------------------------------------------------

// Build creates the server. A builder can only be built once, no network
// resources are acquired until the server is started.
func (b *Builder) Build() (*Server, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return nil, common.NewConfigurationError("builder was already used to build a server")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	codec := b.codec
	if codec == nil {
		codec = serializer.NewJSONSerializer()
	}
	t := b.transport
	if t == nil {
		t = tcp.NewTCPServerTransport()
	}

	// materialize the services, descriptors are immutable from here on
	services := make(map[string]*Service)
	var order []string
	for _, desc := range b.methods {
		if desc.Codec == nil {
			desc.Codec = codec
		}

		svc, ok := services[desc.Service]
		if !ok {
			svc = newService(desc.Service)
			services[desc.Service] = svc
			order = append(order, desc.Service)
		}
		svc.add(desc)
	}

	b.built = true
	return newServer(b.config, t, services, order, append([]*MethodDescriptor(nil), b.methods...), b.failureHook), nil
}
