package cmd

import (
	"fmt"
	"github.com/ValentinKolb/cqrpc/cmd/call"
	"github.com/ValentinKolb/cqrpc/cmd/serve"
	"github.com/ValentinKolb/cqrpc/cmd/util"
	"github.com/spf13/cobra"
	"os"
	"strings"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "cqrpc",
		Short: "completion queue rpc server",
		Long: fmt.Sprintf(`cqrpc (v%s)

A multi-threaded RPC server framework driving every call through a pool
of completion queue workers. The CLI serves the cqrpc.Echo demo service
and calls methods of any cqrpc server with raw messages.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cqrpc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cqrpc v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(call.CallCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "codec"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("codec to use (json, gob, proto, raw)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString(fmt.Sprintf("transport to use (%s)", strings.Join(util.Transports, ", "))))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
