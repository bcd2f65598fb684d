package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cBournhonesque/naia-go/internal/server"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

func formatConnections(conns []server.ConnectionSummary, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(conns, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal connections to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		return formatConnectionsTable(conns), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatConnection(conn server.ConnectionSummary, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(conn, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal connection to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		return formatConnectionDetail(conn), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatConnectionsTable(conns []server.ConnectionSummary) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PEER\tCONNECTED\tTICK\tRTT(ms)\tJITTER(ms)\tOBJECTS\tENTITIES")

	for _, c := range conns {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\t%.1f\t%d\t%d\n",
			c.PeerAddress,
			c.ConnectedAt.Format(time.RFC3339),
			c.ServerTick,
			c.RTTMillis,
			c.JitterMillis,
			c.ObjectCount,
			c.EntityCount,
		)
	}

	_ = w.Flush()
	return buf.String()
}

func formatConnectionDetail(c server.ConnectionSummary) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Peer Address:\t%s\n", c.PeerAddress)
	fmt.Fprintf(w, "Connected At:\t%s\n", c.ConnectedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Server Tick:\t%d\n", c.ServerTick)
	fmt.Fprintf(w, "RTT:\t%.1fms\n", c.RTTMillis)
	fmt.Fprintf(w, "Jitter:\t%.1fms\n", c.JitterMillis)
	fmt.Fprintf(w, "Object Count:\t%d\n", c.ObjectCount)
	fmt.Fprintf(w, "Entity Count:\t%d\n", c.EntityCount)

	_ = w.Flush()
	return buf.String()
}
