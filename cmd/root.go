package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dNet/cmd/connect"
	"github.com/ValentinKolb/dNet/cmd/serve"
	"github.com/ValentinKolb/dNet/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dnet",
		Short: "reliable UDP transport for realtime games",
		Long: fmt.Sprintf(`dNet (v%s)

A tick-driven transport over UDP written in Go. It carries reliable
ordered and unreliable messages over independent channels, fragments
large messages and authenticates peers with a small handshake.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dNet",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dNet v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(connect.ConnectCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("packet serializer to use (binary, json, cbor), must match the peer"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
