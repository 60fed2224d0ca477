package echo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/serializer"
	"github.com/ValentinKolb/cqrpc/rpc/server"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"github.com/ValentinKolb/cqrpc/rpc/transport/inproc"
	"github.com/ValentinKolb/cqrpc/rpc/transport/tcp"
	"github.com/ValentinKolb/cqrpc/rpc/transport/unix"
	"github.com/ValentinKolb/cqrpc/rpc/transport/ws"
	"github.com/kylelemons/godebug/pretty"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"io"
	"path/filepath"
	"testing"
	"time"
)

// transportCase is one transport the echo service is tested on
type transportCase struct {
	name     string
	endpoint func(t *testing.T) string
	server   func() transport.IRPCServerTransport
	client   func() transport.IRPCClientTransport
}

var transportCases = []transportCase{
	{
		name:     "tcp",
		endpoint: func(t *testing.T) string { return "127.0.0.1:0" },
		server:   tcp.NewTCPServerTransport,
		client:   tcp.NewTCPClientTransport,
	},
	{
		name:     "unix",
		endpoint: func(t *testing.T) string { return filepath.Join(t.TempDir(), "echo.sock") },
		server:   unix.NewUnixServerTransport,
		client:   unix.NewUnixClientTransport,
	},
	{
		name:     "ws",
		endpoint: func(t *testing.T) string { return "127.0.0.1:0" },
		server:   ws.NewWSServerTransport,
		client:   ws.NewWSClientTransport,
	},
	{
		name:     "inproc",
		endpoint: func(t *testing.T) string { return "echo-" + t.Name() },
		server:   inproc.NewInprocServerTransport,
		client:   inproc.NewInprocClientTransport,
	},
}

// startEcho starts the echo service and connects a client
func startEcho(t *testing.T, tc transportCase) transport.IRPCClientTransport {
	t.Helper()

	b := server.NewBuilder()
	if err := b.SetAddress(tc.endpoint(t)); err != nil {
		t.Fatalf("SetAddress() error = %v", err)
	}
	if err := b.SetWorkerThreadCount(2); err != nil {
		t.Fatalf("SetWorkerThreadCount() error = %v", err)
	}
	if err := b.SetTransport(tc.server()); err != nil {
		t.Fatalf("SetTransport() error = %v", err)
	}
	if err := Register(b); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.StartAndWait() }()
	select {
	case <-s.Ready():
	case err := <-errCh:
		t.Fatalf("StartAndWait() error = %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("Timeout waiting for server start")
	}

	client := tc.client()
	if err := client.Connect(common.ClientConfig{Endpoint: s.Addr(), TimeoutSecond: 5}); err != nil {
		t.Fatalf("Connect(%s) error = %v", s.Addr(), err)
	}

	t.Cleanup(func() {
		_ = client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
		if err := <-errCh; err != nil {
			t.Errorf("StartAndWait() error = %v", err)
		}
	})
	return client
}

// invoke runs a call with the given requests and decodes all responses with codec
func invoke[Resp any](t *testing.T, client transport.IRPCClientTransport, codec serializer.ICodec, method string, reqs ...any) ([]Resp, common.Status) {
	t.Helper()

	stream, err := client.Open(ServiceName, method)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	for _, req := range reqs {
		data, err := codec.Marshal(req)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if err := stream.Send(data); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend() error = %v", err)
	}

	var resps []Resp
	for {
		data, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return resps, stream.Status()
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		var resp Resp
		if err := codec.Unmarshal(data, &resp); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		resps = append(resps, resp)
	}
}

// TestEchoService tests all methods of the echo service on every transport
func TestEchoService(t *testing.T) {
	codec := serializer.NewJSONSerializer()

	for _, tc := range transportCases {
		t.Run(tc.name, func(t *testing.T) {
			client := startEcho(t, tc)

			t.Run("Echo", func(t *testing.T) {
				got, status := invoke[Message](t, client, codec, "Echo", Message{Text: "hello"})
				if diff := pretty.Compare(got, []Message{{Text: "hello"}}); diff != "" || !status.IsOK() {
					t.Errorf("Echo = %v (%v), diff (-got +want):\n%s", got, status, diff)
				}
			})

			t.Run("Collect", func(t *testing.T) {
				got, status := invoke[Message](t, client, codec, "Collect", Message{Text: "a"}, Message{Text: "b"}, Message{Text: "c"})
				if diff := pretty.Compare(got, []Message{{Text: "a b c"}}); diff != "" || !status.IsOK() {
					t.Errorf("Collect = %v (%v), diff (-got +want):\n%s", got, status, diff)
				}
			})

			t.Run("Repeat", func(t *testing.T) {
				got, status := invoke[Message](t, client, codec, "Repeat", RepeatRequest{Text: "r", Count: 3})
				if diff := pretty.Compare(got, []Message{{Text: "r"}, {Text: "r"}, {Text: "r"}}); diff != "" || !status.IsOK() {
					t.Errorf("Repeat = %v (%v), diff (-got +want):\n%s", got, status, diff)
				}
			})

			t.Run("RepeatInvalidCount", func(t *testing.T) {
				got, status := invoke[Message](t, client, codec, "Repeat", RepeatRequest{Text: "r", Count: MaxRepeat + 1})
				if len(got) != 0 || status.Code != codes.InvalidArgument {
					t.Errorf("Repeat = %v (%v), want InvalidArgument", got, status)
				}
			})

			t.Run("EchoStream", func(t *testing.T) {
				var reqs []any
				var want []Message
				for i := 0; i < 20; i++ {
					reqs = append(reqs, Message{Text: fmt.Sprint(i)})
					want = append(want, Message{Text: fmt.Sprint(i)})
				}
				got, status := invoke[Message](t, client, codec, "EchoStream", reqs...)
				if diff := pretty.Compare(got, want); diff != "" || !status.IsOK() {
					t.Errorf("EchoStream status %v, diff (-got +want):\n%s", status, diff)
				}
			})

			t.Run("Unknown", func(t *testing.T) {
				_, status := invoke[Message](t, client, codec, "Missing")
				if status.Code != codes.Unimplemented {
					t.Errorf("Status() = %v, want Unimplemented", status)
				}
			})
		})
	}
}

// TestUpper tests the protobuf method
func TestUpper(t *testing.T) {
	client := startEcho(t, transportCases[0])

	stream, err := client.Open(ServiceName, "Upper")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	codec := serializer.NewProtoSerializer()
	data, err := codec.Marshal(wrapperspb.String("quiet"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if err := stream.Send(data); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	resp, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	var got wrapperspb.StringValue
	if err := codec.Unmarshal(resp, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.GetValue() != "QUIET" {
		t.Errorf("Upper() = %q, want %q", got.GetValue(), "QUIET")
	}

	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("Recv() after response error = %v, want io.EOF", err)
	}
	if status := stream.Status(); !status.IsOK() {
		t.Errorf("Status() = %v, want OK", status)
	}
}

// TestMessageJSON tests the wire names of the messages
func TestMessageJSON(t *testing.T) {
	data, err := json.Marshal(RepeatRequest{Text: "x", Count: 2})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if got, want := string(data), `{"text":"x","count":2}`; got != want {
		t.Errorf("json.Marshal() = %s, want %s", got, want)
	}
}
