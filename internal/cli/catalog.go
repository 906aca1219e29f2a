package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the cab catalog",
	Long: `The cab catalog maps the cab names found in bundle externals to the bundle
files that contain them. The container preload strategy uses it to find and
load referenced bundles.`,
}

var catalogIndexCmd = &cobra.Command{
	Use:   "index [dir...]",
	Short: "Index bundle directories",
	Long:  `Scan directories for bundles and record their cabs. Without arguments the config's bundle_dirs are scanned.`,
	Run:   runCatalogIndex,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cab entries",
	Run:   runCatalogList,
}

var catalogSetCmd = &cobra.Command{
	Use:   "set <cab> <bundle>",
	Short: "Map a cab to a bundle",
	Args:  cobra.ExactArgs(2),
	Run:   runCatalogSet,
}

var catalogExcludeCmd = &cobra.Command{
	Use:   "exclude <cab>",
	Short: "Exclude a cab from preload augmentation",
	Args:  cobra.ExactArgs(1),
	Run:   runCatalogExclude,
}

var catalogResolveCmd = &cobra.Command{
	Use:   "resolve <cab>",
	Short: "Show where a cab resolves to",
	Args:  cobra.ExactArgs(1),
	Run:   runCatalogResolve,
}

var (
	catalogWorkers int
	catalogRemove  bool
)

func init() {
	catalogIndexCmd.Flags().IntVarP(&catalogWorkers, "jobs", "j", 4, "Bundles read in parallel")
	catalogExcludeCmd.Flags().BoolVar(&catalogRemove, "remove", false, "Remove the entry instead of excluding it")

	catalogCmd.AddCommand(catalogIndexCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogSetCmd)
	catalogCmd.AddCommand(catalogExcludeCmd)
	catalogCmd.AddCommand(catalogResolveCmd)
}

func runCatalogIndex(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	dirs := args
	if len(dirs) == 0 {
		dirs = c.Config.BundleDirPaths()
	}
	if len(dirs) == 0 {
		c.Close()
		exitError("no directories given and no bundle_dirs configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := c.Catalog.IndexDirs(ctx, dirs, c.Bundles, catalogWorkers)
	if err != nil {
		c.Close()
		exitError("failed to index: %v", err)
	}

	green := color.New(color.FgGreen)
	for _, b := range report.Bundles {
		green.Printf("  %s", b.Path)
		fmt.Printf(" (%d cabs)\n", len(b.Cabs))
	}
	for _, p := range report.Skipped {
		color.New(color.FgYellow).Printf("  skipped %s\n", p)
	}
	fmt.Printf("\nIndexed %d bundles, %d cabs\n", len(report.Bundles), report.Cabs)
}

func runCatalogList(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	entries, err := c.Catalog.List()
	if err != nil {
		c.Close()
		exitError("failed to list catalog: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("Catalog is empty")
		return
	}

	red := color.New(color.FgRed)
	for _, e := range entries {
		if e.Excluded() {
			fmt.Printf("%-40s ", e.Cab)
			red.Println("(excluded)")
			continue
		}
		fmt.Printf("%-40s %s\n", e.Cab, e.BundlePath)
	}

	if last, err := c.Catalog.LastIndexed(); err == nil && !last.IsZero() {
		fmt.Printf("\nLast indexed %s\n", last.Local().Format("Mon Jan 2 15:04:05 2006"))
	}
}

func runCatalogSet(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if _, err := os.Stat(args[1]); err != nil {
		c.Close()
		exitError("%v", err)
	}
	if err := c.Catalog.Put(args[0], args[1]); err != nil {
		c.Close()
		exitError("failed to update catalog: %v", err)
	}
	fmt.Printf("%s -> %s\n", args[0], args[1])
}

func runCatalogExclude(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if catalogRemove {
		if err := c.Catalog.Remove(args[0]); err != nil {
			c.Close()
			exitError("failed to update catalog: %v", err)
		}
		fmt.Printf("Removed %s\n", args[0])
		return
	}
	if err := c.Catalog.Exclude(args[0]); err != nil {
		c.Close()
		exitError("failed to update catalog: %v", err)
	}
	fmt.Printf("Excluded %s\n", args[0])
}

func runCatalogResolve(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	path, ok := c.cabResolver().ResolveCab(args[0])
	switch {
	case !ok:
		c.Close()
		exitError("cab %s is unknown", args[0])
	case path == "":
		fmt.Printf("%s is excluded\n", args[0])
	default:
		fmt.Println(path)
	}
}
