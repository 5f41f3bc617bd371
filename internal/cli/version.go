package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stagehand-dev/stagehand/internal/config"
	"github.com/stagehand-dev/stagehand/internal/worktree"
)

// frameworkVersion reads the installed framework version, falling back
// to the git HEAD of the project and finally to "unknown".
func frameworkVersion(projectRoot string) string {
	data, err := os.ReadFile(filepath.Join(projectRoot, config.VersionFilePath))
	if err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v
		}
	}
	if head := worktree.Head(projectRoot); head != "unknown" {
		if len(head) > 12 {
			head = head[:12]
		}
		return "git-" + head
	}
	return "unknown"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the framework version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), frameworkVersion("."))
		},
	}
}
