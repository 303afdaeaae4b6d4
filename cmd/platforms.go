package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcdc-perf/perfsuite/suite"
)

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List the known platform profiles",
	Run: func(cmd *cobra.Command, args []string) {
		table, err := loadPlatforms()
		if err != nil {
			logrus.Fatalf("Failed to load platforms: %v", err)
		}
		if err := listPlatforms(cmd.OutOrStdout(), table); err != nil {
			logrus.Fatalf("Failed to list platforms: %v", err)
		}
	},
}

// listPlatforms writes one aligned row per platform in name order.
func listPlatforms(out io.Writer, table suite.PlatformTable) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCHEDULER\tSUBMIT\tCORES/NODE\tGPUS/NODE\tMAX NODES\tMAX HOURS")
	for _, name := range table.Names() {
		p := table[name]
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			p.Name, p.Scheduler, p.SubmitCommand, p.CoresPerNode, p.GPUsPerNode, p.MaxNodes, p.MaxTimeHours)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(platformsCmd)
}
