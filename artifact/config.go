package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Norgate-AV/workdir/internal/limits"
)

const (
	// EnvRoot overrides the artifact root directory.
	EnvRoot = "WORKDIR_ROOT"

	// EnvPreserve overrides the preserve flag. Accepts strconv.ParseBool
	// syntax (1, t, true, 0, f, false, ...).
	EnvPreserve = "WORKDIR_PRESERVE"

	// EnvConfig names a YAML config file to load when no path is given
	// explicitly.
	EnvConfig = "WORKDIR_CONFIG"
)

// Config holds the process-wide artifact settings. It is resolved once at
// startup and passed into NewAllocator; the library never re-reads the
// environment after construction.
type Config struct {
	// Root is the shared base directory under which all reservations are made.
	Root string `yaml:"root"`

	// Preserve skips all deletion during disposal, keeping reservation
	// directories and lock markers on disk for post-mortem inspection.
	Preserve bool `yaml:"preserve"`

	// ArchiveDir is the default destination for reservation archives.
	// Empty means the current directory.
	ArchiveDir string `yaml:"archive_dir"`
}

// DefaultRoot returns the artifact root used when nothing else is configured.
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), "workdir")
}

// LoadConfig resolves a Config from defaults, an optional YAML file, and
// environment overrides, in that order of precedence.
//
// If path is empty, the WORKDIR_CONFIG environment variable is consulted; if
// neither names a file, only defaults and environment overrides apply. A file
// that is named but cannot be read or parsed is an error.
func LoadConfig(path string) (Config, error) {
	cfg := Config{Root: DefaultRoot()}

	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if envRoot := os.Getenv(EnvRoot); envRoot != "" {
		cfg.Root = envRoot
	}

	if envPreserve := os.Getenv(EnvPreserve); envPreserve != "" {
		preserve, err := strconv.ParseBool(envPreserve)
		if err != nil {
			// A mis-typed preserve value must not silently become "delete
			// everything", so this is an error rather than a default.
			return Config{}, fmt.Errorf("invalid %s value %q: %w", EnvPreserve, envPreserve, err)
		}

		cfg.Preserve = preserve
	}

	if cfg.Root == "" {
		return Config{}, fmt.Errorf("artifact root must not be empty")
	}

	absRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve artifact root %s: %w", cfg.Root, err)
	}

	cfg.Root = absRoot

	return cfg, nil
}

// EnsureRoot creates the artifact root directory if it does not exist yet.
func (c Config) EnsureRoot() error {
	if err := os.MkdirAll(c.Root, limits.DirMode); err != nil {
		return fmt.Errorf("could not create artifact root %s: %w", c.Root, err)
	}

	return nil
}
