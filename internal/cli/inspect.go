package cli

import (
	"cmp"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/fatih/color"
	"github.com/kilupskalvis/scenepack/internal/assets"
	"github.com/kilupskalvis/scenepack/internal/hierarchy"
	"github.com/kilupskalvis/scenepack/internal/models"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <bundle>",
	Short: "Show the files, container and hierarchy of a bundle",
	Long: `Show the files, container and hierarchy of a bundle. A bundle path of -
reads the bundle from stdin.`,
	Args:  cobra.ExactArgs(1),
	Run:   runInspect,
}

var inspectTree bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectTree, "tree", false, "List the game object hierarchy of the main file")
}

func runInspect(cmd *cobra.Command, args []string) {
	c := initBareContext()
	defer c.Close()

	b, err := loadBundle(c.Bundles, args[0], os.Stdin)
	if err != nil {
		c.Close()
		exitError("%v", err)
	}

	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	fmt.Printf("Bundle %s\n", b.Name)
	for _, f := range b.Files {
		yellow.Printf("\n%s", f.Name)
		fmt.Printf("  (%d objects, %d externals)\n", f.Len(), len(f.Externals))

		counts := make(map[int32]int)
		for _, obj := range f.Objects() {
			counts[obj.ClassID]++
		}
		for _, classID := range slices.Sorted(maps.Keys(counts)) {
			fmt.Printf("  class %-6d %s x%d\n", classID, typeName(f, classID), counts[classID])
		}
		for i, ext := range f.Externals {
			fmt.Printf("  external %d: %s\n", i+1, ext.CabName())
		}

		if desc := f.FirstOfClass(models.ClassAssetBundle); desc != nil {
			printDescriptor(desc, cyan)
		}
	}

	if inspectTree {
		main := b.MainFile()
		if main == nil {
			c.Close()
			exitError("bundle has no main file")
		}
		idx, err := hierarchy.Build(main, c.Logger)
		if err != nil {
			c.Close()
			exitError("failed to index hierarchy: %v", err)
		}
		infos := slices.Collect(idx.All())
		slices.SortFunc(infos, func(a, b *models.GameObjectInfo) int {
			return cmp.Compare(a.Name, b.Name)
		})
		fmt.Printf("\nHierarchy (%d game objects):\n", len(infos))
		for _, info := range infos {
			fmt.Printf("  %-8d %s\n", info.GameObjectPathID, info.Name)
		}
	}
}

func printDescriptor(desc *assets.Object, cyan *color.Color) {
	entries, table, err := assets.Descriptor(desc.Data)
	if err != nil {
		fmt.Printf("  descriptor at %d is malformed: %v\n", desc.PathID, err)
		return
	}
	fmt.Printf("  descriptor at path id %d: %d container entries, %d preloads\n", desc.PathID, len(entries), len(table))
	for _, e := range entries {
		cyan.Printf("    %s", e.Path)
		fmt.Printf(" -> %s  preload [%d, %d)\n", e.Asset, e.PreloadIndex, e.PreloadEnd())
		for i := e.PreloadIndex; i < e.PreloadEnd() && i < len(table); i++ {
			fmt.Printf("        %s\n", table[i])
		}
	}
}

func typeName(f *assets.File, classID int32) string {
	if t, ok := f.Type(classID); ok {
		return t.Name
	}
	return "?"
}
