// Package config manages scenepack configuration and the .scenepack workspace
// directory. It handles loading, saving, and initializing the configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilupskalvis/scenepack/internal/models"
	"github.com/pelletier/go-toml/v2"
)

const (
	WorkspaceDir = ".scenepack"
	ConfigFile   = "config"
	CatalogFile  = "catalog.db"
	HistoryFile  = "history.db"
)

// Preload strategies accepted in Config.Preload.
const (
	PreloadDirect    = "direct"
	PreloadContainer = "container"
)

// Config represents the scenepack configuration
type Config struct {
	CatalogPath     string            `toml:"catalog_path,omitempty"`
	HistoryPath     string            `toml:"history_path,omitempty"`
	BundleDirs      []string          `toml:"bundle_dirs"`
	ContainerPrefix string            `toml:"container_prefix"`
	ContainerSuffix string            `toml:"container_suffix"`
	Preload         []string          `toml:"preload"`
	LogLevel        string            `toml:"log_level"`
	LogFormat       string            `toml:"log_format"`
	Cabs            map[string]string `toml:"cabs,omitempty"` // cab name -> bundle path, "" excludes the cab
	Jobs            []Job             `toml:"jobs,omitempty"`

	path string // path to .scenepack directory
}

// Job is a named repack run kept in the configuration
type Job struct {
	Name       string   `toml:"name"`
	Bundle     string   `toml:"bundle"`
	Targets    []string `toml:"targets"`
	Prefix     string   `toml:"prefix,omitempty"`
	Output     string   `toml:"output"`
	BundleName string   `toml:"bundle_name,omitempty"`
}

// Default returns the configuration written by Initialize
func Default() *Config {
	return &Config{
		ContainerPrefix: "assets",
		ContainerSuffix: "prefab",
		Preload:         []string{PreloadDirect},
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// FindRoot finds the .scenepack directory by walking up from current directory
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		root := filepath.Join(dir, WorkspaceDir)
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			return root, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a scenepack workspace (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration from the .scenepack directory
func Load() (*Config, error) {
	root, err := FindRoot()
	if err != nil {
		return nil, err
	}
	return LoadFrom(root)
}

// LoadFrom loads the configuration of the workspace directory root
func LoadFrom(root string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(root, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.path = root
	return cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0644)
}

// Initialize creates a new .scenepack directory under dir with the default configuration
func Initialize(dir string) (*Config, error) {
	root := filepath.Join(dir, WorkspaceDir)

	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("scenepack workspace already exists")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", WorkspaceDir, err)
	}

	cfg := Default()
	cfg.path = root
	if err := cfg.Save(); err != nil {
		os.RemoveAll(root)
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught by decoding
func (c *Config) Validate() error {
	for _, p := range c.Preload {
		switch p {
		case PreloadDirect, PreloadContainer:
		default:
			return fmt.Errorf("invalid preload strategy %q (want %s or %s)", p, PreloadDirect, PreloadContainer)
		}
	}
	if strings.Trim(c.ContainerSuffix, ".") == "" || strings.Contains(c.ContainerSuffix, "/") {
		return fmt.Errorf("invalid container suffix %q", c.ContainerSuffix)
	}
	seen := make(map[string]bool, len(c.Jobs))
	for i, j := range c.Jobs {
		if j.Name == "" {
			return fmt.Errorf("job %d has no name", i)
		}
		if seen[j.Name] {
			return fmt.Errorf("duplicate job %q", j.Name)
		}
		seen[j.Name] = true
		if j.Bundle == "" || j.Output == "" {
			return fmt.Errorf("job %q needs bundle and output", j.Name)
		}
	}
	return nil
}

// Root returns the path to the .scenepack directory
func (c *Config) Root() string {
	return c.path
}

// CatalogDBPath returns the path to the bbolt catalog
func (c *Config) CatalogDBPath() string {
	return c.resolve(c.CatalogPath, CatalogFile)
}

// HistoryDBPath returns the path to the SQLite history
func (c *Config) HistoryDBPath() string {
	return c.resolve(c.HistoryPath, HistoryFile)
}

// BundleDirPaths returns the bundle directories, relative ones resolved
// against the workspace's parent directory
func (c *Config) BundleDirPaths() []string {
	dirs := make([]string, 0, len(c.BundleDirs))
	for _, d := range c.BundleDirs {
		dirs = append(dirs, c.resolve(d, ""))
	}
	return dirs
}

// resolve returns p relative to the workspace, or the default file inside
// the .scenepack directory when p is empty
func (c *Config) resolve(p, def string) string {
	if p == "" {
		return filepath.Join(c.path, def)
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(c.path), p)
}

// Job returns the job with the given name
func (c *Config) Job(name string) (*Job, error) {
	for i := range c.Jobs {
		if c.Jobs[i].Name == name {
			return &c.Jobs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: job %q", models.ErrNotFound, name)
}

// Params converts the job into repack parameters. Relative paths are
// resolved against base, and an empty prefix falls back to defaultPrefix.
func (j *Job) Params(base, defaultPrefix string) *models.RepackParams {
	prefix := j.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &models.RepackParams{
		BundlePath:      joinIfRelative(base, j.Bundle),
		ObjectNames:     j.Targets,
		ContainerPrefix: prefix,
		OutBundlePath:   joinIfRelative(base, j.Output),
		BundleName:      strings.TrimSpace(j.BundleName),
	}
}

// Base returns the directory relative config paths are resolved against
func (c *Config) Base() string {
	return filepath.Dir(c.path)
}

func joinIfRelative(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}
