package call

import (
	"errors"
	"fmt"
	cmdUtil "github.com/ValentinKolb/cqrpc/cmd/util"
	"github.com/ValentinKolb/cqrpc/rpc/common"
	"github.com/ValentinKolb/cqrpc/rpc/transport"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	CallCmd = &cobra.Command{
		Use:   "call <service>/<method> [message...]",
		Short: "Call a method with raw messages",
		Long: `Call a method of a cqrpc server. Every argument after the method is sent as one raw message
(e.g. '{"text":"hello"}' for the JSON codec), then the call is half-closed. All responses are printed
one per line, followed by the final status. With --repeat the call is repeated and latency statistics
are printed instead of the responses.`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: processConfig,
		RunE:    run,
	}
	callRepeat  = 1
	callThreads = 1
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	cmdUtil.SetupClientFlags(CallCmd)

	key := "repeat"
	CallCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("How many times the call is made"))
	key = "threads"
	CallCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Number of concurrent calls when repeating"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	callRepeat = viper.GetInt("repeat")
	callThreads = viper.GetInt("threads")
	if callRepeat < 1 || callThreads < 1 {
		return fmt.Errorf("repeat and threads must be >= 1")
	}
	return nil
}

// splitMethod splits "service/method" at the last slash
func splitMethod(name string) (string, string, error) {
	i := strings.LastIndex(name, "/")
	if i <= 0 || i == len(name)-1 {
		return "", "", fmt.Errorf("invalid method %q (expected <service>/<method>)", name)
	}
	return name[:i], name[i+1:], nil
}

func run(_ *cobra.Command, args []string) error {
	service, method, err := splitMethod(args[0])
	if err != nil {
		return err
	}
	messages := args[1:]

	t, err := cmdUtil.GetClientTransport()
	if err != nil {
		return err
	}
	if err := t.Connect(cmdUtil.GetClientConfig()); err != nil {
		return fmt.Errorf("failed to connect: %v", err)
	}
	defer t.Close()

	if callRepeat == 1 {
		resps, status, err := invoke(t, service, method, messages)
		if err != nil {
			return err
		}
		for _, resp := range resps {
			fmt.Println(string(resp))
		}
		fmt.Println(status)
		if !status.IsOK() {
			os.Exit(1)
		}
		return nil
	}

	return benchmark(t, service, method, messages)
}

// invoke runs one call and collects all responses
func invoke(t transport.IRPCClientTransport, service, method string, messages []string) ([][]byte, common.Status, error) {
	stream, err := t.Open(service, method)
	if err != nil {
		return nil, common.Status{}, err
	}
	for _, msg := range messages {
		if err := stream.Send([]byte(msg)); err != nil {
			return nil, common.Status{}, err
		}
	}
	if err := stream.CloseSend(); err != nil {
		return nil, common.Status{}, err
	}

	var resps [][]byte
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return resps, stream.Status(), nil
		}
		if err != nil {
			return resps, stream.Status(), err
		}
		resps = append(resps, resp)
	}
}

// benchmark repeats the call and prints latency statistics
func benchmark(t transport.IRPCClientTransport, service, method string, messages []string) error {
	timer := metrics.NewTimer()
	failed := metrics.NewCounter()
	defer timer.Stop()

	jobs := make(chan struct{}, callRepeat)
	for i := 0; i < callRepeat; i++ {
		jobs <- struct{}{}
	}
	close(jobs)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < callThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				callStart := time.Now()
				_, status, err := invoke(t, service, method, messages)
				timer.UpdateSince(callStart)
				if err != nil || !status.IsOK() {
					failed.Inc(1)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	ps := timer.Percentiles([]float64{0.5, 0.9, 0.99})
	fmt.Printf("%-12s %d\n", "calls", timer.Count())
	fmt.Printf("%-12s %d\n", "failed", failed.Count())
	fmt.Printf("%-12s %.2f calls/sec\n", "throughput", float64(timer.Count())/elapsed.Seconds())
	fmt.Printf("%-12s %v\n", "mean", time.Duration(timer.Mean()))
	fmt.Printf("%-12s %v\n", "min", time.Duration(timer.Min()))
	fmt.Printf("%-12s %v\n", "max", time.Duration(timer.Max()))
	fmt.Printf("%-12s %v / %v / %v\n", "p50/p90/p99", time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))

	if failed.Count() > 0 {
		return fmt.Errorf("%d of %d calls failed", failed.Count(), timer.Count())
	}
	return nil
}
