package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"refsync/internal/archive"
)

// DefaultSentinel marks where the embedded reference archive begins inside
// the manifest file. Everything after this line is store payload, not YAML.
const DefaultSentinel = "# --- refsync reference archive ---"

// Placement defines where a new marker block is inserted when a patch
// target does not contain one yet.
type Placement string

const (
	PlacementTop    Placement = "top"
	PlacementBottom Placement = "bottom"
)

// Config represents the complete refsync manifest
type Config struct {
	Tools   ToolsConfig  `yaml:"tools"`
	Patches []PatchEntry `yaml:"patches"`
	Copies  []CopyEntry  `yaml:"copies"`

	// Path is the manifest location the config was loaded from. The
	// reference archive is embedded in this same file.
	Path string `yaml:"-"`
}

// ToolsConfig configures the external diff and edit commands
type ToolsConfig struct {
	Diff []string `yaml:"diff"`
	Edit []string `yaml:"edit"`
}

// PatchEntry registers a file that receives a managed marker block
type PatchEntry struct {
	Path      string    `yaml:"path"`
	Begin     string    `yaml:"begin"`
	End       string    `yaml:"end"`
	Placement Placement `yaml:"placement"`
}

// CopyEntry registers a file mirrored in its entirety
type CopyEntry struct {
	Path string `yaml:"path"`
}

// Load reads and parses the manifest file. Only the text before the
// sentinel line is parsed as YAML; the embedded archive (if any) is left
// for the store to consume.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	// The sentinel must be known before parsing, so it is fixed: only the
	// text before it is YAML.
	head, _, _, err := archive.Split(data, DefaultSentinel)
	if err != nil {
		return nil, fmt.Errorf("failed to split manifest: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(head, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	cfg.Path = path

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &cfg, nil
}

// Sentinel returns the sentinel line separating the manifest head from the
// embedded reference archive.
func (c *Config) Sentinel() string {
	return DefaultSentinel
}

// expandEnv expands environment variables in all path fields. Markers are
// left untouched: they are literal lines and may legitimately contain '$'.
func (c *Config) expandEnv() {
	for i := range c.Patches {
		c.Patches[i].Path = os.ExpandEnv(c.Patches[i].Path)
	}
	for i := range c.Copies {
		c.Copies[i].Path = os.ExpandEnv(c.Copies[i].Path)
	}
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	for i := range c.Patches {
		if c.Patches[i].Placement == "" {
			c.Patches[i].Placement = PlacementTop
		}
	}
}

// Validate checks the manifest for configuration errors. Any error here is
// fatal: it is a caller-configuration bug, reported before the interactive
// loop starts.
func (c *Config) Validate() error {
	seen := make(map[string]bool)

	for i, p := range c.Patches {
		if p.Path == "" {
			return fmt.Errorf("patches[%d]: path is required", i)
		}
		if p.Begin == "" {
			return fmt.Errorf("patch %s: begin marker is required", p.Path)
		}
		if p.End == "" {
			return fmt.Errorf("patch %s: end marker is required", p.Path)
		}
		if p.Begin == p.End {
			return fmt.Errorf("patch %s: begin and end markers must differ", p.Path)
		}
		switch p.Placement {
		case PlacementTop, PlacementBottom:
			// valid
		default:
			return fmt.Errorf("patch %s: invalid placement: %s (must be top or bottom)", p.Path, p.Placement)
		}
		if seen[p.Path] {
			return fmt.Errorf("duplicate managed path: %s", p.Path)
		}
		seen[p.Path] = true
	}

	for i, cp := range c.Copies {
		if cp.Path == "" {
			return fmt.Errorf("copies[%d]: path is required", i)
		}
		if seen[cp.Path] {
			return fmt.Errorf("duplicate managed path: %s", cp.Path)
		}
		seen[cp.Path] = true
	}

	if len(c.Tools.Diff) > 0 && c.Tools.Diff[0] == "" {
		return fmt.Errorf("tools.diff: command name must not be empty")
	}
	if len(c.Tools.Edit) > 0 && c.Tools.Edit[0] == "" {
		return fmt.Errorf("tools.edit: command name must not be empty")
	}

	return nil
}
