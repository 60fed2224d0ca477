package common

import (
	"errors"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
)

// TestValidate tests the validation of server configurations
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ServerConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *ServerConfig) {}},
		{name: "zero workers", mutate: func(c *ServerConfig) { c.WorkerThreads = 0 }, wantErr: true},
		{name: "negative workers", mutate: func(c *ServerConfig) { c.WorkerThreads = -3 }, wantErr: true},
		{name: "empty endpoint", mutate: func(c *ServerConfig) { c.Endpoint = "" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *ServerConfig) { c.TimeoutSecond = -1 }, wantErr: true},
		{name: "invalid log level", mutate: func(c *ServerConfig) { c.LogLevel = "chatty" }, wantErr: true},
		{name: "debug log level", mutate: func(c *ServerConfig) { c.LogLevel = "DEBUG" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultServerConfig()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("Validate() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

// TestDefaultServerConfig tests the documented defaults
func TestDefaultServerConfig(t *testing.T) {
	c := DefaultServerConfig()
	if c.Endpoint != DefaultEndpoint {
		t.Errorf("Endpoint = %q, want %q", c.Endpoint, DefaultEndpoint)
	}
	if c.WorkerThreads != DefaultWorkerThreads {
		t.Errorf("WorkerThreads = %d, want %d", c.WorkerThreads, DefaultWorkerThreads)
	}
	if !strings.Contains(c.String(), DefaultEndpoint) {
		t.Errorf("String() does not mention the endpoint:\n%s", c.String())
	}
}

// TestStatus tests the status helpers
func TestStatus(t *testing.T) {
	if err := OK().Err(); err != nil {
		t.Errorf("OK().Err() = %v, want nil", err)
	}
	s := Statusf(codes.NotFound, "no such key %q", "a")
	if s.IsOK() {
		t.Errorf("IsOK() = true for %v", s)
	}
	if s.Err() == nil {
		t.Errorf("Err() = nil for %v", s)
	}
	if got, want := s.String(), `NotFound: no such key "a"`; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// TestErrorTaxonomy tests the wrapping of the sentinel errors
func TestErrorTaxonomy(t *testing.T) {
	if !errors.Is(ErrAlreadyFinished, ErrProtocolViolation) {
		t.Errorf("ErrAlreadyFinished does not wrap ErrProtocolViolation")
	}
	if err := NewBindError("x", errors.New("in use")); !errors.Is(err, ErrBind) {
		t.Errorf("NewBindError() = %v, want ErrBind", err)
	}
	if err := NewConfigurationError("bad %d", 1); !errors.Is(err, ErrConfiguration) || !strings.Contains(err.Error(), "bad 1") {
		t.Errorf("NewConfigurationError() = %v", err)
	}
}
