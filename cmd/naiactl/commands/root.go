// Package commands implements the naiactl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/cBournhonesque/naia-go/internal/server"
)

var (
	listClient  *connect.Client[server.ListConnectionsRequest, server.ListConnectionsResponse]
	getClient   *connect.Client[server.GetConnectionRequest, server.GetConnectionResponse]
	kickClient  *connect.Client[server.KickConnectionRequest, server.KickConnectionResponse]

	outputFormat string
	serverAddr   string
)

// rootCmd is the top-level cobra command for naiactl.
var rootCmd = &cobra.Command{
	Use:   "naiactl",
	Short: "CLI client for the naia-server daemon",
	Long:  "naiactl communicates with a naia-server daemon via ConnectRPC to inspect and manage replication connections.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		base := "http://" + serverAddr
		opts := []connect.ClientOption{connect.WithCodec(server.JSONCodec{})}

		listClient = connect.NewClient[server.ListConnectionsRequest, server.ListConnectionsResponse](
			http.DefaultClient, base+server.ProcedureListConnections, opts...)
		getClient = connect.NewClient[server.GetConnectionRequest, server.GetConnectionResponse](
			http.DefaultClient, base+server.ProcedureGetConnection, opts...)
		kickClient = connect.NewClient[server.KickConnectionRequest, server.KickConnectionResponse](
			http.DefaultClient, base+server.ProcedureKickConnection, opts...)

		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:50051",
		"naia-server admin address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(connectionsCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
