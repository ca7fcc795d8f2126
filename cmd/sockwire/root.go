package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/momentics/sockwire/config"
	"github.com/momentics/sockwire/internal/logging"
	"github.com/momentics/sockwire/transport/tcp"
)

// app is the state shared by subcommands after PersistentPreRunE.
type app struct {
	cfgFile  string
	logLevel string

	cfg       *config.Config
	logCloser io.Closer
}

func (a *app) connector() *tcp.Connector {
	return &tcp.Connector{Resolver: a.cfg.NewResolver()}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "sockwire",
		Short: "File upload and chat room over raw stream sockets",
		Long: `sockwire moves bytes, values and zero-terminated strings over plain
TCP channels. It ships a one-shot file upload (send-file / recv-file) and a
multi-user chat room (chat-server / chat-client).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfgFile
			if path == "" {
				path = config.DefaultPath()
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if a.logLevel != "" {
				cfg.Log.Level = a.logLevel
			}
			a.cfg = cfg

			closer, err := logging.Init(cfg.Logging())
			if err != nil {
				return err
			}
			a.logCloser = closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ~/.sockwire/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newRecvFileCmd(a),
		newSendFileCmd(a),
		newChatServerCmd(a),
		newChatClientCmd(a),
		newStatsCmd(a),
		newVersionCmd(),
	)
	return root
}
