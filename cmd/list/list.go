// cmd/list/list.go

package list

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tcs-recycling/wipestation/pkg/devices"
	"github.com/tcs-recycling/wipestation/pkg/station_cli"
	"github.com/tcs-recycling/wipestation/pkg/station_io"
)

// ListCmd prints the current disk inventory, the same view the web UI gets.
var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wipeable disks detected on this machine",
	RunE:  station_cli.Wrap(runList),
}

func init() {
	ListCmd.Flags().Bool("json", false, "emit JSON instead of a table")
	ListCmd.Flags().StringSlice("protected-disks", []string{"sda"}, "disk names to flag as protected")
}

func runList(rc *station_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	names, _ := cmd.Flags().GetStringSlice("protected-disks")
	protected := devices.NewProtectedSet(names)

	inventory := devices.NewInventory(protected)
	disks, err := inventory()
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(disks)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH\tSIZE\tMODEL\tSERIAL\tBUS\tTYPE\tMOUNTED\tPROTECTED")
	for _, name := range sortedNames(disks) {
		d := disks[name]
		media := "SSD"
		if d.Rotational {
			media = "HDD"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%v\t%v\n",
			d.Name, d.Path, d.Size, d.Model, d.Serial, d.Transport, media, d.Mounted, d.Protected)
	}
	return w.Flush()
}

func sortedNames(disks map[string]devices.Device) []string {
	names := make([]string, 0, len(disks))
	for n := range disks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
