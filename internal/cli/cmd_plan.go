package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/stagehand-dev/stagehand/internal/config"
	"github.com/stagehand-dev/stagehand/internal/graph"
	"github.com/stagehand-dev/stagehand/internal/tmpl"
)

var (
	planHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	planNameStyle   = lipgloss.NewStyle().Bold(true)
	planDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func newPlanCmd() *cobra.Command {
	flags := orchestrateFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show task selection, resolved templates, and scheduling waves",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, selected, err := loadSelection(flags.configPath, flags.phase, flags.includeManual)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(selected) == 0 {
				fmt.Fprintf(out, "No tasks selected for phase %s\n", flags.phase)
				return nil
			}

			runID := newRunID(time.Now())
			fmt.Fprintln(out, planHeaderStyle.Render(fmt.Sprintf("Plan for phase %s (%d tasks, sample run id %s)",
				flags.phase, len(selected), runID)))

			for _, task := range selected {
				vars := tmpl.Vars{RunID: runID, Phase: flags.phase, Task: task.Name}
				worktree, err := tmpl.Resolve(task.Worktree, vars)
				if err != nil {
					return fmt.Errorf("task %q: %w", task.Name, err)
				}
				branch, err := tmpl.Resolve(task.Branch, vars)
				if err != nil {
					return fmt.Errorf("task %q: %w", task.Name, err)
				}
				fmt.Fprintf(out, "%s\n", planNameStyle.Render(task.Name))
				if len(task.DependsOn) > 0 {
					fmt.Fprintf(out, "  depends on: %s\n", strings.Join(task.DependsOn, ", "))
				}
				fmt.Fprintf(out, "  worktree: %s\n", config.ResolvePath(worktree, "."))
				fmt.Fprintf(out, "  branch:   %s\n", branch)
				fmt.Fprintf(out, "  runner:   %s%s\n", task.Runner, interactiveTag(task))
			}

			waves, err := graph.Waves(selected)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, planHeaderStyle.Render("Waves"))
			for i, wave := range waves {
				fmt.Fprintf(out, "  %s %s\n",
					planDimStyle.Render(fmt.Sprintf("%d.", i+1)), strings.Join(wave, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.configPath, "config", config.DefaultConfigPath, "orchestrator configuration file")
	cmd.Flags().StringVar(&flags.phase, "phase", "main", "phase to plan")
	cmd.Flags().BoolVar(&flags.includeManual, "include-manual", false, "include manually gated tasks")
	return cmd
}

func interactiveTag(task graph.Task) string {
	if task.Interactive {
		return " (interactive)"
	}
	return ""
}
