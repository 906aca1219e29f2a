package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/scenepack/internal/models"
	"github.com/spf13/cobra"
)

var repackCmd = &cobra.Command{
	Use:   "repack [scene-bundle] [object-name...]",
	Short: "Repack game objects of a scene into a bundle",
	Long: `Extract game objects from a scene bundle into a new bundle.

Objects are named by their hierarchical path, e.g. "Root/Props/Lamp". Each
requested object is exposed through a container entry: its own, or that of its
rootmost kept ancestor when an ancestor was requested too.

Examples:
  scenepack repack scenes/level1 "Root/Lamp" "Root/Chair" -o out/props.bundle
  scenepack repack --job props
  scenepack repack --all`,
	Run: runRepack,
}

var (
	repackOut       string
	repackPrefix    string
	repackName      string
	repackJob       string
	repackAll       bool
	repackNoHistory bool
	repackStrict    bool
)

func init() {
	repackCmd.Flags().StringVarP(&repackOut, "out", "o", "", "Output bundle path")
	repackCmd.Flags().StringVar(&repackPrefix, "prefix", "", "Container path prefix (default from config)")
	repackCmd.Flags().StringVar(&repackName, "name", "", "Bundle name (default: output file name)")
	repackCmd.Flags().StringVar(&repackJob, "job", "", "Run a job from the config")
	repackCmd.Flags().BoolVar(&repackAll, "all", false, "Run every job from the config")
	repackCmd.Flags().BoolVar(&repackNoHistory, "no-history", false, "Do not record the run in the history")
	repackCmd.Flags().BoolVar(&repackStrict, "strict", false, "Exit with an error when an object was not repacked")
}

func runRepack(cmd *cobra.Command, args []string) {
	if repackJob != "" || repackAll {
		runRepackJobs(args)
		return
	}

	if len(args) < 2 {
		exitError("repack needs a scene bundle and at least one object name")
	}
	if repackOut == "" {
		exitError("--out is required")
	}

	c := initBareContext()
	defer c.Close()

	prefix := repackPrefix
	if !cmd.Flags().Changed("prefix") {
		prefix = c.Config.ContainerPrefix
	}

	params := &models.RepackParams{
		BundlePath:      args[0],
		ObjectNames:     args[1:],
		ContainerPrefix: prefix,
		OutBundlePath:   repackOut,
		BundleName:      repackName,
	}
	complete, err := repackOnce(c, params)
	if err != nil {
		c.Close()
		exitError("%v", err)
	}
	failed := 0
	if !complete {
		failed = 1
	}
	if err := incomplete(failed, 1, repackStrict); err != nil {
		c.Close()
		exitError("%v", err)
	}
}

func runRepackJobs(args []string) {
	if len(args) > 0 {
		exitError("--job and --all take no arguments")
	}

	c := initContext()
	defer c.Close()

	var jobs []string
	if repackAll {
		for _, j := range c.Config.Jobs {
			jobs = append(jobs, j.Name)
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs configured")
			return
		}
	} else {
		jobs = []string{repackJob}
	}

	failed := 0
	for _, name := range jobs {
		job, err := c.Config.Job(name)
		if err != nil {
			c.Close()
			exitError("%v", err)
		}
		color.New(color.FgCyan).Printf("==> %s\n", job.Name)
		complete, err := repackOnce(c, job.Params(c.Config.Base(), c.Config.ContainerPrefix))
		if err != nil {
			c.Close()
			exitError("job %s: %v", job.Name, err)
		}
		if !complete {
			failed++
		}
	}

	if err := incomplete(failed, len(jobs), repackStrict); err != nil {
		c.Close()
		exitError("%v", err)
	}
}

// repackOnce runs one repack and prints its result. It reports whether every
// requested object made it into the output.
func repackOnce(c *cmdContext, params *models.RepackParams) (bool, error) {
	result, err := c.newRepacker().Repack(params)
	if err != nil {
		if errors.Is(err, models.ErrStructural) {
			return false, fmt.Errorf("%s is not a usable scene bundle: %w", params.BundlePath, err)
		}
		return false, fmt.Errorf("repack failed: %w", err)
	}

	if c.History != nil && !repackNoHistory {
		if err := c.History.RecordRun(result); err != nil {
			fmt.Printf("Warning: could not record run in history: %v\n", err)
		}
	}

	printResult(result)
	return len(result.NonRepackedAssets) == 0, nil
}

// incomplete reports runs that left objects out. They only fail the command
// in strict mode.
func incomplete(failed, total int, strict bool) error {
	if failed == 0 {
		return nil
	}
	msg := fmt.Sprintf("%d of %d runs did not repack every object", failed, total)
	if strict {
		return errors.New(msg)
	}
	color.New(color.FgYellow).Printf("\nWarning: %s\n", msg)
	return nil
}

func printResult(r *models.RepackResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	fmt.Printf("Wrote %s (bundle %s, %s)\n", r.OutPath, r.BundleName, r.CabName)
	if r.MovedPathID != 0 {
		yellow.Printf("Moved object off path id 1 to %d (%d references rewritten)\n", r.MovedPathID, r.Redirected)
	}

	if len(r.Containers) > 0 {
		fmt.Println("\nContainers:")
		for _, e := range r.Containers {
			green.Printf("  %s", e.Path)
			fmt.Printf("  <- %s (path id %d, %d preloads)\n", r.GameObjectAssets[e.Path], e.Asset.PathID, e.PreloadSize)
		}
	}

	covered := 0
	for name, path := range r.Targets {
		if r.GameObjectAssets[path] != name {
			covered++
		}
	}
	if covered > 0 {
		fmt.Printf("\n%d requested object(s) exposed through an ancestor's container\n", covered)
	}

	if len(r.NonRepackedAssets) > 0 {
		fmt.Println("\nNot repacked:")
		for _, name := range r.NonRepackedAssets {
			red.Printf("  %s\n", name)
		}
	}
}
