package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var logFileID uint

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "List recorded incidents",
	Run: func(cmd *cobra.Command, args []string) {
		reg, _ := mustRegistry()

		incidents, err := reg.Incidents(logFileID)
		if err != nil {
			fmtErr("list incidents: %v", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIMESTAMP\tMISMATCH\tPATH")
		for _, in := range incidents {
			path := ""
			if in.TrackedFile != nil {
				path = in.TrackedFile.Path
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", in.ID, in.Timestamp.Format(time.RFC3339), in.Kind, path)
		}
		w.Flush()
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the raw change event audit trail",
	Run: func(cmd *cobra.Command, args []string) {
		reg, _ := mustRegistry()

		events, err := reg.RawEvents()
		if err != nil {
			fmtErr("list events: %v", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIMESTAMP\tKIND\tPATH")
		for _, ev := range events {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", ev.ID, ev.Timestamp.Format(time.RFC3339), ev.EventKind, ev.Path)
		}
		w.Flush()
	},
}

func init() {
	logCmd.Flags().UintVar(&logFileID, "file-id", 0, "only incidents for this tracked file")
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(eventsCmd)
}
