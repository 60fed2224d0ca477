package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	// DefaultEndpoint is the address a server listens on if none is configured
	DefaultEndpoint = "0.0.0.0:50051"
	// DefaultWorkerThreads is the number of completion queue workers if none is configured
	DefaultWorkerThreads = 4
	// DefaultLogLevel is the level used when no log level is configured
	DefaultLogLevel = "info"
)

// --------------------------------------------------------------------------
// Transport configuration structs (shared by client and server)
// --------------------------------------------------------------------------

// SocketConf holds socket buffer settings. A value of 0 keeps the OS default.
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket settings
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// TransportConfig bundles all transport tuning parameters
type TransportConfig struct {
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of an RPC server.
type ServerConfig struct {
	// Endpoint is the address the server listens on (host:port, socket path, ...)
	Endpoint string

	// WorkerThreads is the number of completion queue workers (>= 1)
	WorkerThreads int

	// TimeoutSecond is the write deadline for a single frame (0 disables the deadline)
	TimeoutSecond int64

	// MetricsEndpoint is an optional address serving metrics in the prometheus text format
	MetricsEndpoint string

	// Transport tuning
	Transport TransportConfig

	// Logging configuration
	LogLevel string
}

// DefaultServerConfig returns a ServerConfig with all defaults applied
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Endpoint:      DefaultEndpoint,
		WorkerThreads: DefaultWorkerThreads,
		LogLevel:      DefaultLogLevel,
		Transport: TransportConfig{
			TCPConf: TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
		},
	}
}

// Validate checks the configuration for values the server cannot run with
func (c *ServerConfig) Validate() error {
	if c.Endpoint == "" {
		return NewConfigurationError("endpoint must not be empty")
	}
	if c.WorkerThreads < 1 {
		return NewConfigurationError("worker thread count must be >= 1, got %d", c.WorkerThreads)
	}
	if c.TimeoutSecond < 0 {
		return NewConfigurationError("timeout must not be negative, got %d", c.TimeoutSecond)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return NewConfigurationError("%v", err)
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Worker Threads", strconv.Itoa(c.WorkerThreads))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}

	// Transport
	addSection("Transport")
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.Transport.WriteBufferSize))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.Transport.ReadBufferSize))
	addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))
	addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.Transport.TCPKeepAliveSec))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures the raw client transport
type ClientConfig struct {
	Endpoint      string
	TimeoutSecond int
	Transport     TransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	sb.WriteString("\nCLIENT CONFIGURATION\n")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	return sb.String()
}
