package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-doly/internal/httpc"
	"github.com/teslashibe/go-doly/pkg/protocol"
)

func newRootCmd() *cobra.Command {
	var addr string
	var families []string

	root := &cobra.Command{
		Use:          "doly-monitor",
		Short:        "Print the events of a running dolyd",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return follow(ctx, cmd.OutOrStdout(), wsURL(addr), families)
		},
	}
	root.PersistentFlags().StringVar(&addr, "addr", "localhost:8090", "dolyd dashboard address")
	root.Flags().StringSliceVarP(&families, "family", "f", nil, "only print these families (arm, tof, ...)")

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print a status snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.Context(), cmd.OutOrStdout(), httpURL(addr), "/api/status")
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "diagnostics",
		Short: "Print fault counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.Context(), cmd.OutOrStdout(), httpURL(addr), "/api/diagnostics")
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "abort <family>",
		Short: "Abort every command of a family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return httpc.New(httpURL(addr), 0).Post(cmd.Context(), "/api/abort/"+args[0], nil, nil)
		},
	})
	return root
}

func httpURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "http://" + addr
}

func wsURL(addr string) string {
	base := httpURL(addr)
	base = strings.Replace(base, "http", "ws", 1)
	return base + "/ws/events"
}

func printJSON(ctx context.Context, w io.Writer, base, path string) error {
	var out json.RawMessage
	if err := httpc.New(base, 0).Get(ctx, path, &out); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// follow prints every frame until ctx is done or the server goes away.
func follow(ctx context.Context, w io.Writer, url string, families []string) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer ws.Close()
	fmt.Fprintf(w, "📡 connected to %s\n", url)

	go func() {
		<-ctx.Done()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			continue
		}
		if line := format(msg, families); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

// format renders one frame as a line, or "" when it is filtered out.
func format(msg *protocol.Message, families []string) string {
	ts := msg.Time().Format("15:04:05.000")
	switch msg.Type {
	case protocol.TypeEvent:
		data, err := msg.GetEventData()
		if err != nil {
			return ""
		}
		if len(families) > 0 && !slices.Contains(families, data.Family) {
			return ""
		}
		line := fmt.Sprintf("%s %-6s %s", ts, data.Family, data.Name)
		if data.ID != nil {
			line += fmt.Sprintf(" id=%d", *data.ID)
		}
		if data.Side != "" {
			line += " side=" + data.Side
		}
		keys := make([]string, 0, len(data.Fields))
		for k := range data.Fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			line += fmt.Sprintf(" %s=%v", k, data.Fields[k])
		}
		return line
	case protocol.TypeFault:
		data, err := msg.GetFaultData()
		if err != nil {
			return ""
		}
		if len(families) > 0 && !slices.Contains(families, data.Family) {
			return ""
		}
		return fmt.Sprintf("%s ⚠️  %s fault %s %s %s", ts, data.Source, data.Family, data.Kind, data.Error)
	case protocol.TypeStatus:
		return ts + " status snapshot"
	}
	return ""
}
