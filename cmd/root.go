// cmd/root.go

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tcs-recycling/wipestation/cmd/list"
	"github.com/tcs-recycling/wipestation/cmd/serve"
	"github.com/tcs-recycling/wipestation/pkg/station_cli"
	"github.com/tcs-recycling/wipestation/pkg/station_err"
	"github.com/tcs-recycling/wipestation/pkg/station_io"
)

var version = "dev"

// RootCmd is the base command for wipestation.
var RootCmd = &cobra.Command{
	Use:   "wipestation",
	Short: "Secure disk wipe station for refurbishment benches",
	Long: `Wipestation serves a browser UI for technicians to securely erase
storage devices. All destructive operations are delegated to a root-only
helper (wipectl); this process never writes to a device itself.`,
	RunE: station_cli.Wrap(func(rc *station_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wipestation version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("wipestation", version)
	},
}

// Execute registers subcommands and runs the CLI.
func Execute() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(list.ListCmd)
	RootCmd.AddCommand(versionCmd)

	if err := RootCmd.Execute(); err != nil {
		if station_err.IsExpectedUserError(err) {
			fmt.Fprintln(os.Stderr, "Notice:", err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
