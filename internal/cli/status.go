package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List tracked files with policy and health",
	Run: func(cmd *cobra.Command, args []string) {
		reg, _ := mustRegistry()

		files, err := reg.TrackedFiles()
		if err != nil {
			fmtErr("list tracked files: %v", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tAUTORESTORE\tAUTOEMAIL\tHEALTH\tPATH")
		for _, f := range files {
			health := "good"
			if f.Degraded {
				health = "degraded"
			}
			fmt.Fprintf(w, "%d\t%t\t%t\t%s\t%s\n", f.ID, f.AutoRestore, f.AutoEmail, health, f.Path)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
