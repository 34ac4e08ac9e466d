package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/confsentinel/sentinel/internal/remediate"
	"github.com/confsentinel/sentinel/internal/snapshot"
	"github.com/confsentinel/sentinel/internal/watch"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one full verification pass over all enrolled files",
	Run: func(cmd *cobra.Command, args []string) {
		reg, _ := mustRegistry()

		remediator := remediate.New(reg, remediate.NewFSApplier(), buildNotifier(), logger)
		coord := watch.New(reg, snapshot.NewOSProvider(), remediator, logger, cfg.WorkerCount)

		if err := coord.RunFullScan(context.Background()); err != nil {
			fmtErr("full scan: %v", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
