// Package config provides configuration management for the snowglobe
// CLI. Configuration layers, lowest to highest priority: built-in
// defaults, snowglobe.yaml, SNOWGLOBE_ environment variables, flags.
package config

// Default configuration values.
const (
	DefaultProfile       = "default"
	DefaultStateDir      = ".snowglobe"
	DefaultThreads       = 10
	DefaultRemovalPolicy = "retain"
	DefaultOutput        = "text"
)

// ProfileConfig holds one named warehouse connection. Credentials live
// here and are handed to the fetcher at construction time; nothing else
// reads them.
type ProfileConfig struct {
	// Type selects the fetcher ("snowflake", "duckdb").
	Type string `koanf:"type"`

	// Snowflake connection settings.
	Account   string `koanf:"account"`
	User      string `koanf:"user"`
	Password  string `koanf:"password"`
	Role      string `koanf:"role"`
	Warehouse string `koanf:"warehouse"`

	// Connection defaults, also the default refresh scope.
	Database string `koanf:"database"`
	Schema   string `koanf:"schema"`

	// Path is the database file for file-based types (DuckDB).
	Path string `koanf:"path"`

	// Options contains additional driver-specific settings.
	Options map[string]string `koanf:"options"`
}

// RefreshConfig holds the refresh scope and behavior.
type RefreshConfig struct {
	// Databases to scan. Defaults to the profile's database.
	Databases []string `koanf:"databases"`

	// Schema optionally restricts scanning to one schema.
	Schema string `koanf:"schema"`

	// ObjectTypes to manage. Defaults to table and view.
	ObjectTypes []string `koanf:"object_types"`

	// Threads bounds concurrent DDL fetches.
	Threads int `koanf:"threads"`

	// RemovalPolicy is retain, archive, or delete.
	RemovalPolicy string `koanf:"removal_policy"`
}

// Config holds all CLI configuration options.
type Config struct {
	Profile      string                   `koanf:"profile"`
	Profiles     map[string]ProfileConfig `koanf:"profiles"`
	StateDir     string                   `koanf:"state_dir"`
	Refresh      RefreshConfig            `koanf:"refresh"`
	Verbose      bool                     `koanf:"verbose"`
	OutputFormat string                   `koanf:"output"`
}

// ActiveProfile returns the selected profile.
func (c *Config) ActiveProfile() (ProfileConfig, bool) {
	p, ok := c.Profiles[c.Profile]
	return p, ok
}
