package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/momentics/sockwire/filexfer"
	"github.com/momentics/sockwire/internal/sysnet"
	"github.com/momentics/sockwire/netinfo"
	"github.com/momentics/sockwire/transport/tcp"
)

func newRecvFileCmd(a *app) *cobra.Command {
	var (
		port  uint16
		limit int64
	)
	cmd := &cobra.Command{
		Use:   "recv-file <filename>",
		Short: "Wait for one upload and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ln, err := a.cfg.TCPListen(port).Listen()
			if err != nil {
				return err
			}
			defer ln.Close()
			stop := context.AfterFunc(cmd.Context(), func() { _ = ln.Close() })
			defer stop()

			fmt.Fprintf(out, "Server is at %s\n", reachable(ln))
			fmt.Fprintln(out, "Waiting for client...")
			t, err := ln.Accept()
			if err != nil {
				return err
			}
			defer t.Close()

			opts := filexfer.DefaultOptions()
			opts.Limit = limit
			n, err := filexfer.ReceiveFile(t, args[0], opts)
			if err != nil {
				return fmt.Errorf("receive %s: %w", args[0], err)
			}
			fmt.Fprintf(out, "Downloaded %d bytes to %s\n", n, args[0])
			return nil
		},
	}
	cmd.Flags().Uint16Var(&port, "port", filexfer.DefaultPort, "port to listen on (0 picks a free one)")
	cmd.Flags().Int64Var(&limit, "limit", -1, "largest accepted upload in bytes (-1 for no limit)")
	return cmd
}

func newSendFileCmd(a *app) *cobra.Command {
	var port uint16
	cmd := &cobra.Command{
		Use:   "send-file <host> <filename>",
		Short: "Upload a file to a waiting recv-file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, path := args[0], args[1]
			out := cmd.OutOrStdout()
			st, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("file not found: %w", err)
			}

			t, err := tcp.DialRetry(cmd.Context(), a.connector(), host, port, a.cfg.RetryPolicy())
			if err != nil {
				return fmt.Errorf("could not connect to %s:%d: %w", host, port, err)
			}
			defer t.Close()

			fmt.Fprintln(out, "Waiting for upload to finish...")
			if err := filexfer.SendFile(t, path, filexfer.DefaultOptions()); err != nil {
				return fmt.Errorf("uploading %s (size=%dB): %w", path, st.Size(), err)
			}
			fmt.Fprintf(out, "Uploaded %s (size=%.3fKB)\n", path, float64(st.Size())/1000)
			return nil
		},
	}
	cmd.Flags().Uint16Var(&port, "port", filexfer.DefaultPort, "server port")
	return cmd
}

// reachable describes where clients can find ln: the bound address, or
// the host's primary address when bound to every interface.
func reachable(ln *tcp.Listener) string {
	addr := ln.Addr()
	if addr.Addr().IsUnspecified() {
		if ip, ok := netinfo.Primary(sysnet.FamilyIPv4); ok {
			return fmt.Sprintf("%s (port %d)", ip, addr.Port())
		}
	}
	return fmt.Sprintf("%s (port %d)", addr.Addr(), addr.Port())
}
