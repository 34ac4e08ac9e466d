// Package cli implements the sentinel command line verbs.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/confsentinel/sentinel/internal/api/utils"
	"github.com/confsentinel/sentinel/internal/config"
	"github.com/confsentinel/sentinel/internal/db"
	"github.com/confsentinel/sentinel/internal/registry"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Host-based file integrity monitor",
	Long: `sentinel enrolls a trusted baseline of sensitive configuration files,
watches them for tampering, records every divergence as an incident, and
restores or alerts according to per-file policy.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Values from a .env file never override the real environment
		_ = godotenv.Load()
		cfg = config.Load()
		logger = utils.GetLogger()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fmtErr prints an error message to stderr
func fmtErr(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "sentinel: "+format+"\n", a...)
}

// mustRegistry connects to the configured database, runs migrations, and
// returns the registry; exits on failure
func mustRegistry() (*registry.Registry, *gorm.DB) {
	conn, err := db.Connect(cfg)
	if err != nil {
		fmtErr("connect database: %v", err)
		os.Exit(1)
	}
	if err := db.Migrate(conn); err != nil {
		fmtErr("migrate database: %v", err)
		os.Exit(1)
	}
	return registry.New(conn, logger), conn
}
