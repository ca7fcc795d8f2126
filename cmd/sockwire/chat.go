package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/momentics/sockwire/chatroom"
	"github.com/momentics/sockwire/sockstream"
)

func parsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(p), nil
}

func newChatServerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat-server <port>",
		Short: "Run a chat room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			ln, err := a.cfg.TCPListen(port).Listen()
			if err != nil {
				return err
			}
			opts := chatroom.DefaultRoomOptions()
			opts.Notify = func(line string) { fmt.Fprintln(out, line) }
			room := chatroom.NewRoom(opts)
			defer room.Close()

			fmt.Fprintf(out, "Chat room at %s\n", reachable(ln))
			if err := ln.Serve(cmd.Context(), room.Handler()); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newChatClientCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "chat-client <host> <port>",
		Short: "Join a chat room; type exit to leave",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := args[0]
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			in := sockstream.NewReader(cmd.InOrStdin(),
				a.cfg.Stream.Putback, a.cfg.Stream.BufferSize)

			if name == "" {
				fmt.Fprint(out, "Enter your name: ")
				name, err = in.ReadLine()
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				name = strings.TrimSpace(name)
			}
			if name == "" {
				return errors.New("a name is required")
			}

			fmt.Fprintf(out, "Connecting to server at %s:%d...\n", host, port)
			cl, err := chatroom.Dial(cmd.Context(), a.connector(), host, port, name, a.cfg.RetryPolicy())
			if err != nil {
				return err
			}
			defer cl.Close()
			fmt.Fprintln(out, strings.Repeat("-", 40))
			return cl.Run(cmd.Context(), in, out)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "chat name (prompted when empty)")
	return cmd
}
