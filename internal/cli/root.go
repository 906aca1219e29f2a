// Package cli implements the command-line interface for scenepack.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kilupskalvis/scenepack/internal/assets"
	"github.com/kilupskalvis/scenepack/internal/config"
	"github.com/kilupskalvis/scenepack/internal/logging"
	"github.com/kilupskalvis/scenepack/internal/preload"
	"github.com/kilupskalvis/scenepack/internal/repack"
	"github.com/kilupskalvis/scenepack/internal/store"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config  *config.Config
	Catalog *store.Catalog
	History *store.History
	Bundles *assets.Manager
	Logger  *slog.Logger
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Catalog != nil {
		c.Catalog.Close()
	}
	if c.History != nil {
		c.History.Close()
	}
}

// initContext loads the workspace config and opens the catalog and history
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}
	c := newContext(cfg)

	c.Catalog, err = store.OpenCatalog(cfg.CatalogDBPath(), c.Logger)
	if err != nil {
		exitError("failed to open catalog: %v", err)
	}
	c.History, err = store.OpenHistory(cfg.HistoryDBPath())
	if err != nil {
		c.Close()
		exitError("failed to open history: %v", err)
	}
	return c
}

// initBareContext works with or without a workspace. Outside a workspace the
// default config is used and no catalog or history is opened.
func initBareContext() *cmdContext {
	if _, err := config.FindRoot(); err == nil {
		return initContext()
	}
	return newContext(config.Default())
}

func newContext(cfg *config.Config) *cmdContext {
	level, format := cfg.LogLevel, cfg.LogFormat
	if rootCmd.PersistentFlags().Changed("log-level") || os.Getenv("SCENEPACK_LOG_LEVEL") != "" {
		level = logLevel
	}
	if rootCmd.PersistentFlags().Changed("log-format") || os.Getenv("SCENEPACK_LOG_FORMAT") != "" {
		format = logFormat
	}
	logger, err := logging.New(level, format, os.Stderr)
	if err != nil {
		exitError("%v", err)
	}
	return &cmdContext{
		Config:  cfg,
		Bundles: assets.NewManager(logger),
		Logger:  logger,
	}
}

// loadBundle reads the bundle at path, or from stdin when path is "-"
func loadBundle(m *assets.Manager, path string, stdin io.Reader) (*assets.Bundle, error) {
	if path == "-" {
		return m.ReadBundle(stdin)
	}
	return m.LoadBundle(path)
}

// cabResolver combines the config's static cab table with the catalog
func (c *cmdContext) cabResolver() preload.CabResolver {
	return store.Cabs(c.Config.Cabs, c.Catalog)
}

// preloadResolver builds the preload strategy named by the config
func (c *cmdContext) preloadResolver() preload.Resolver {
	return buildPreloadResolver(c.Config.Preload, c.cabResolver(), c.Bundles, c.Logger)
}

func buildPreloadResolver(names []string, cabs preload.CabResolver, loader preload.BundleLoader, logger *slog.Logger) preload.Resolver {
	var union preload.Union
	for _, name := range names {
		switch name {
		case config.PreloadDirect:
			union = append(union, preload.Direct{})
		case config.PreloadContainer:
			union = append(union, preload.NewContainerAnchored(cabs, loader, logger))
		}
	}
	switch len(union) {
	case 0:
		return preload.Direct{}
	case 1:
		return union[0]
	default:
		return union
	}
}

// newRepacker creates a repacker for one run. Preload caches live in the
// resolver, so each run gets a fresh one.
func (c *cmdContext) newRepacker() *repack.StrippedSceneRepacker {
	return repack.New(c.Bundles,
		repack.WithPreloadResolver(c.preloadResolver()),
		repack.WithLogger(c.Logger),
		repack.WithContainerSuffix(c.Config.ContainerSuffix),
	)
}

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "scenepack",
	Short: "Repack scene bundles into prefab bundles",
	Long: `scenepack extracts game objects from a scene bundle into a standalone
bundle. Everything the requested objects depend on is kept, everything else is
stripped, and the bundle's container and preload table are rebuilt so each
object loads on its own.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOrDefault("SCENEPACK_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", envOrDefault("SCENEPACK_LOG_FORMAT", "text"), "Log format (text, json)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(repackCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(packCmd)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// exitError prints an error and exits
func exitError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
