package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var hashpwCmd = &cobra.Command{
	Use:   "hashpw <password>",
	Short: "Hash an operator password for SENTINEL_OPERATOR_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			fmtErr("hash password: %v", err)
			os.Exit(1)
		}
		fmt.Println(string(hash))
	},
}

func init() {
	rootCmd.AddCommand(hashpwCmd)
}
