package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/kilupskalvis/scenepack/internal/deps"
	"github.com/kilupskalvis/scenepack/internal/hierarchy"
	"github.com/spf13/cobra"
)

var depsCmd = &cobra.Command{
	Use:   "deps <bundle> <object>",
	Short: "Show the dependency closure of an object",
	Long: `Show everything an object of the bundle's main file depends on.

The object is given by hierarchical game object name or by path id. With
--direct only the object's own references are listed, parent pointers
included. A bundle path of - reads the bundle from stdin.`,
	Args: cobra.ExactArgs(2),
	Run:  runDeps,
}

var depsDirect bool

func init() {
	depsCmd.Flags().BoolVar(&depsDirect, "direct", false, "List only direct references")
}

func runDeps(cmd *cobra.Command, args []string) {
	c := initBareContext()
	defer c.Close()

	b, err := loadBundle(c.Bundles, args[0], os.Stdin)
	if err != nil {
		c.Close()
		exitError("%v", err)
	}
	main := b.MainFile()
	if main == nil {
		c.Close()
		exitError("bundle has no main file")
	}

	pathID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		idx, err := hierarchy.Build(main, c.Logger)
		if err != nil {
			c.Close()
			exitError("failed to index hierarchy: %v", err)
		}
		info, err := idx.LookupName(args[1])
		if err != nil {
			c.Close()
			exitError("%v", err)
		}
		pathID = info.GameObjectPathID
	}

	resolver := deps.New(main)
	find := resolver.FindBundleDeps
	if depsDirect {
		find = resolver.FindImmediateDeps
	}
	set, err := find(pathID)
	if err != nil {
		c.Close()
		exitError("%v", err)
	}

	yellow := color.New(color.FgYellow)
	fmt.Printf("Internal (%d):\n", len(set.InternalPaths))
	for _, id := range set.InternalPaths.Sorted() {
		obj := main.Object(id)
		if obj == nil {
			fmt.Printf("  %d (missing)\n", id)
			continue
		}
		fmt.Printf("  %-8d %s\n", id, typeName(main, obj.ClassID))
	}

	fmt.Printf("External (%d):\n", len(set.ExternalPaths))
	for _, p := range set.ExternalPaths.Sorted() {
		ext, err := main.External(p.FileID)
		if err != nil {
			c.Close()
			exitError("%v", err)
		}
		yellow.Printf("  %s", ext.CabName())
		fmt.Printf(" %d\n", p.PathID)
	}
}
