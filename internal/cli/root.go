// Package cli provides the chathub command line: the relay server and a
// terminal chat client.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "chathub",
	Short: "Real-time chat relay with bring-your-own-model assistants",
	Long: `Chathub relays chat messages between everyone joined to a conversation
and lets each user register their own model provider to answer inline.

Run "chathub serve" to start the hub and "chathub chat" to join a
conversation from the terminal.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
}
