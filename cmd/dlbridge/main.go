// dlbridge - Discord to Direct Line relay bridge
// License: MIT

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/dlbridge/cmd/dlbridge/internal/relaycmd"
	"github.com/tinyland-inc/dlbridge/cmd/dlbridge/internal/version"
)

func NewDlbridgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dlbridge",
		Short:   "dlbridge - Discord to Direct Line relay bridge",
		Example: "dlbridge relay",
	}

	cmd.AddCommand(
		relaycmd.NewRelayCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewDlbridgeCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
