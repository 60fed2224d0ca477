package serve

import (
	"context"
	"errors"
	"fmt"
	cmdUtil "github.com/ValentinKolb/cqrpc/cmd/util"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/echo"
	"github.com/ValentinKolb/cqrpc/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	serveCmdConfig = common.DefaultServerConfig()
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a cqrpc server serving the echo service",
		Long:    `Start a cqrpc server serving the cqrpc.Echo service with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is CQRPC_<flag> (e.g. CQRPC_WORKER_THREADS=8)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, common.DefaultEndpoint, cmdUtil.WrapString("The address on which the server will listen (e.g. 0.0.0.0:50051, /tmp/cqrpc.sock, ...)"))

	key = "worker-threads"
	ServeCmd.PersistentFlags().Int(key, common.DefaultWorkerThreads, cmdUtil.WrapString("The number of completion queue workers (>= 1)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Write deadline in seconds for a single frame (0 disables the deadline)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Optional address serving metrics in the prometheus text format under /metrics (e.g. localhost:9090)"))

	key = "shutdown-timeout"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("How many seconds active calls may take to finish after a stop signal"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, common.DefaultLogLevel, cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	cmdUtil.SetupTransportFlags(ServeCmd)
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.WorkerThreads = viper.GetInt("worker-threads")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = cmdUtil.GetTransportConfig()

	return serveCmdConfig.Validate()
}

// run starts the server and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	codec, err := cmdUtil.GetCodec()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	b := server.NewBuilder()
	if err := b.SetConfig(serveCmdConfig); err != nil {
		return err
	}
	if err := b.SetTransport(t); err != nil {
		return err
	}
	if err := b.SetCodec(codec); err != nil {
		return err
	}
	if err := b.SetTransportFailureHook(func(method *server.MethodDescriptor, err error) {
		server.Logger.Debugf("Transport failure in %s: %v", method.FullName(), err)
	}); err != nil {
		return err
	}
	if err := echo.Register(b); err != nil {
		return err
	}

	s, err := b.Build()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.StartAndWait() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(viper.GetInt("shutdown-timeout"))*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to shut down server: %v", err)
	}
	return <-errCh
}
