package commands

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/cBournhonesque/naia-go/internal/server"
)

var errPeerRequired = errors.New("peer address argument is required")

func connectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Inspect and manage replication connections",
	}

	cmd.AddCommand(connectionsListCmd())
	cmd.AddCommand(connectionsShowCmd())
	cmd.AddCommand(connectionsKickCmd())

	return cmd
}

func connectionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all tracked connections",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := listClient.CallUnary(context.Background(),
				connect.NewRequest(&server.ListConnectionsRequest{}))
			if err != nil {
				return fmt.Errorf("list connections: %w", err)
			}

			out, err := formatConnections(resp.Msg.Connections, outputFormat)
			if err != nil {
				return fmt.Errorf("format connections: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

func connectionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <peer-address>",
		Short: "Show details of a single connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if args[0] == "" {
				return errPeerRequired
			}
			resp, err := getClient.CallUnary(context.Background(),
				connect.NewRequest(&server.GetConnectionRequest{PeerAddress: args[0]}))
			if err != nil {
				return fmt.Errorf("get connection: %w", err)
			}

			out, err := formatConnection(resp.Msg.Connection, outputFormat)
			if err != nil {
				return fmt.Errorf("format connection: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

func connectionsKickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kick <peer-address>",
		Short: "Forcibly disconnect a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if args[0] == "" {
				return errPeerRequired
			}
			if _, err := kickClient.CallUnary(context.Background(),
				connect.NewRequest(&server.KickConnectionRequest{PeerAddress: args[0]})); err != nil {
				return fmt.Errorf("kick connection: %w", err)
			}

			fmt.Printf("Connection %s kicked.\n", args[0])
			return nil
		},
	}
}
