package cli

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/confsentinel/sentinel/internal/registry"
	"github.com/confsentinel/sentinel/internal/snapshot"
)

var (
	enrollListFile    string
	enrollUpdate      bool
	enrollAutoRestore bool
	enrollAutoEmail   bool
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [path...]",
	Short: "Record the current state of paths as their trusted baseline",
	Long: `Enroll captures the content digest, ownership, permission, and raw bytes
of each given path as its trusted baseline. Paths may be given as arguments
or one per line in a list file (--file).

With --update, an already-enrolled path's baseline is replaced wholesale and
any degraded state is cleared.`,
	Run: func(cmd *cobra.Command, args []string) {
		paths := append([]string(nil), args...)
		if enrollListFile != "" {
			listed, err := readPathList(enrollListFile)
			if err != nil {
				fmtErr("read path list: %v", err)
				os.Exit(1)
			}
			paths = append(paths, listed...)
		}
		if len(paths) == 0 {
			fmtErr("no paths given")
			os.Exit(1)
		}

		for _, path := range paths {
			if !filepath.IsAbs(path) {
				fmtErr("path must be absolute: %s", path)
				os.Exit(1)
			}
		}

		reg, _ := mustRegistry()
		provider := snapshot.NewOSProvider()
		policy := registry.Policy{
			AutoRestore: enrollAutoRestore,
			AutoEmail:   enrollAutoEmail,
		}

		for _, path := range paths {
			snap, err := provider.Take(path)
			if err != nil {
				fmtErr("cannot snapshot %s: %v", path, err)
				os.Exit(1)
			}

			if enrollUpdate {
				if _, err := reg.Reenroll(path, snap); err != nil {
					fmtErr("re-enroll %s: %v", path, err)
					os.Exit(1)
				}
			} else {
				if _, err := reg.Enroll(path, snap, policy); err != nil {
					fmtErr("enroll %s: %v", path, err)
					os.Exit(1)
				}
			}
		}
	},
}

// readPathList reads one absolute path per line, skipping blanks and comments
func readPathList(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	return paths, scanner.Err()
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollListFile, "file", "f", "", "file with one path per line")
	enrollCmd.Flags().BoolVar(&enrollUpdate, "update", false, "replace the baseline of already-enrolled paths")
	enrollCmd.Flags().BoolVar(&enrollAutoRestore, "auto-restore", true, "restore the baseline automatically on divergence")
	enrollCmd.Flags().BoolVar(&enrollAutoEmail, "auto-email", false, "send an alert on divergence")
	rootCmd.AddCommand(enrollCmd)
}
