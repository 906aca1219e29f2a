package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kilupskalvis/scenepack/internal/assets"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <bundle>",
	Short: "Print a bundle as JSON",
	Long: `Decode a bundle and print its document as indented JSON. The output can be
edited and turned back into a bundle with 'scenepack pack'. A bundle path of -
reads the bundle from stdin.`,
	Args: cobra.ExactArgs(1),
	Run:  runDump,
}

var dumpOut string

var packCmd = &cobra.Command{
	Use:   "pack <json> <bundle>",
	Short: "Encode a JSON document into a bundle",
	Args:  cobra.ExactArgs(2),
	Run:   runPack,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpOut, "out", "o", "", "Write to a file instead of stdout")
}

func runDump(cmd *cobra.Command, args []string) {
	c := initBareContext()
	defer c.Close()

	b, err := loadBundle(c.Bundles, args[0], os.Stdin)
	if err != nil {
		c.Close()
		exitError("%v", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		c.Close()
		exitError("failed to encode JSON: %v", err)
	}
	data = append(data, '\n')

	if dumpOut == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(dumpOut, data, 0644); err != nil {
		c.Close()
		exitError("%v", err)
	}
}

func runPack(cmd *cobra.Command, args []string) {
	c := initBareContext()
	defer c.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		c.Close()
		exitError("%v", err)
	}

	var b assets.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		c.Close()
		exitError("failed to parse %s: %v", args[0], err)
	}
	for i, f := range b.Files {
		if f == nil {
			c.Close()
			exitError("file %d of %s is empty", i, args[0])
		}
	}

	if err := c.Bundles.WriteBundle(&b, args[1]); err != nil {
		c.Close()
		exitError("%v", err)
	}
	fmt.Printf("Packed %s (%d files) into %s\n", b.Name, len(b.Files), args[1])
}
