package cli

import (
	"fmt"
	"os"

	"github.com/kilupskalvis/scenepack/internal/config"
	"github.com/kilupskalvis/scenepack/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a scenepack workspace",
	Long: `Initialize a scenepack workspace in the current directory.
This creates a .scenepack directory holding the configuration, the cab
catalog and the run history.`,
	Run: runInit,
}

var (
	initBundleDirs []string
	initPrefix     string
)

func init() {
	initCmd.Flags().StringSliceVar(&initBundleDirs, "bundle-dir", nil, "Directory scanned by 'catalog index' (repeatable)")
	initCmd.Flags().StringVar(&initPrefix, "prefix", "", "Default container path prefix")
}

func runInit(cmd *cobra.Command, args []string) {
	if _, err := config.FindRoot(); err == nil {
		exitError("scenepack workspace already exists")
	}

	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	cfg, err := config.Initialize(cwd)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	if len(initBundleDirs) > 0 || initPrefix != "" {
		cfg.BundleDirs = initBundleDirs
		if initPrefix != "" {
			cfg.ContainerPrefix = initPrefix
		}
		if err := cfg.Save(); err != nil {
			exitError("failed to save config: %v", err)
		}
	}

	catalog, err := store.OpenCatalog(cfg.CatalogDBPath(), nil)
	if err != nil {
		exitError("failed to create catalog: %v", err)
	}
	catalog.Close()

	history, err := store.OpenHistory(cfg.HistoryDBPath())
	if err != nil {
		exitError("failed to create history: %v", err)
	}
	history.Close()

	fmt.Printf("Initialized empty scenepack workspace in %s/\n", config.WorkspaceDir)
	if len(cfg.BundleDirs) > 0 {
		fmt.Printf("\nRun 'scenepack catalog index' to index %d bundle director(ies).\n", len(cfg.BundleDirs))
	}
}
