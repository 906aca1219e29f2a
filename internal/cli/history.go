package cli

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past repack runs",
	Long: `List recorded repack runs, or show the details of one run.

Examples:
  scenepack history
  scenepack history 12
  scenepack history --delete 12`,
	Args:  cobra.MaximumNArgs(1),
	Run:   runHistory,
}

var (
	historyLimit  int
	historyDelete bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Limit the number of runs to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyDelete, "delete", false, "Delete the given run")
}

func runHistory(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	yellow := color.New(color.FgYellow)

	if historyDelete && len(args) == 0 {
		c.Close()
		exitError("--delete needs a run id")
	}

	if len(args) == 1 {
		id, err := parseRunID(args[0])
		if err != nil {
			c.Close()
			exitError("%v", err)
		}
		if historyDelete {
			if err := c.History.DeleteRun(id); err != nil {
				c.Close()
				exitError("%v", err)
			}
			fmt.Printf("Deleted run %d\n", id)
			return
		}
		r, err := c.History.GetRun(id)
		if err != nil {
			c.Close()
			exitError("%v", err)
		}

		yellow.Printf("run %d\n", r.ID)
		fmt.Printf("Date:   %s\n", r.Timestamp.Local().Format("Mon Jan 2 15:04:05 2006"))
		fmt.Printf("Scene:  %s\n", r.BundlePath)
		fmt.Printf("Output: %s\n", r.OutPath)
		fmt.Println()
		printResult(r)

		if len(r.Targets) > 0 {
			fmt.Println("\nTargets:")
			for _, name := range slices.Sorted(maps.Keys(r.Targets)) {
				fmt.Printf("  %s -> %s\n", name, r.Targets[name])
			}
		}
		return
	}

	runs, err := c.History.ListRuns(historyLimit)
	if err != nil {
		c.Close()
		exitError("failed to list runs: %v", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet")
		return
	}
	for _, r := range runs {
		yellow.Printf("%-5d ", r.ID)
		fmt.Printf("%s  %s -> %s\n", r.Timestamp.Local().Format("2006-01-02 15:04"), r.BundlePath, r.OutPath)
	}
}

func parseRunID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run id %q", arg)
	}
	return id, nil
}
