// Package cli implements the chatsync command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/config"
)

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

// app holds state shared by every subcommand.
type app struct {
	loader     *config.Loader
	configFile string
}

func newRootCmd(version string) *cobra.Command {
	a := &app{loader: config.NewLoader()}

	cmd := &cobra.Command{
		Use:           "chatsync",
		Short:         "Terminal chat client",
		Long:          "chatsync keeps one conversation in sync with a chat server over a websocket.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUI(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/chatsync/config.yaml)")
	flags.String("server", "", "chat server websocket url")
	flags.Int64("user", 0, "local user id")
	flags.Int64("peer", 0, "peer user id")
	flags.String("log-level", "", "log level: debug|info|warn|error")
	flags.String("log-file", "", "write logs to this file")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.Bool("reconnect", false, "reopen the channel after it drops")
	flags.String("theme", "", "theme: default|high-contrast")

	for key, name := range map[string]string{
		"server.url":           "server",
		"user.id":              "user",
		"conversation.peer_id": "peer",
		"logging.level":        "log-level",
		"logging.file":         "log-file",
		"metrics.addr":         "metrics-addr",
		"reconnect.enabled":    "reconnect",
		"tui.theme":            "theme",
	} {
		// The flags above are defined, so binding cannot fail.
		_ = a.loader.BindFlag(key, flags.Lookup(name))
	}

	cmd.AddCommand(
		newUICmd(a),
		newTailCmd(a),
		newSendCmd(a),
		newHistoryCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

func newUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the conversation in the terminal UI (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUI(cmd)
		},
	}
}
