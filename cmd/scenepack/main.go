// Command scenepack repacks scene bundles into prefab bundles.
package main

import (
	"os"

	"github.com/kilupskalvis/scenepack/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
