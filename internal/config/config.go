package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/logger"
)

// CurrentVersion is the schema version this build understands. Files
// with a lower version load with a warning only.
const CurrentVersion = 1

const defaultSkeleton = "v: 1\nprofiles: {}\n"

// DefaultPath returns the config file path used when none is given.
func DefaultPath() string {
	if env := os.Getenv("SBACKUP_CONFIG"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sbackup.yaml"
	}
	return filepath.Join(home, ".sbackup.yaml")
}

// Load reads the configuration file at path (or the default path when
// empty), creating a minimal skeleton if the file does not exist yet.
func Load(path string, l *logger.Logger) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	path = expandHome(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		l.Warn("Config file not found, creating skeleton", "path", path)
		if err := os.WriteFile(path, []byte(defaultSkeleton), 0600); err != nil {
			return nil, apperrors.Wrap(err, apperrors.TypeResource,
				"failed to create config file", "check directory permissions")
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeResource,
			"failed to read config file", "check permissions on "+path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SBACKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("v", CurrentVersion)

	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConfig,
			"failed to read config file", "check the YAML syntax of "+path)
	}

	// The typed structure is decoded from the raw document rather than
	// through viper, which lowercases every map key and would corrupt
	// the case-sensitive env/clean_env variable names.
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConfig,
			"failed to decode config file", "")
	}

	// Scalar settings still flow through viper so SBACKUP_* environment
	// variables can override them.
	cfg.V = v.GetInt("v")
	if cache := v.GetString("cache"); cache != "" {
		cfg.Cache = cache
	}

	if cfg.V < CurrentVersion {
		l.Warn("Config file may be incompatible with this version of sbackup",
			"path", path, "file_version", cfg.V, "supported_version", CurrentVersion)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

// AbsPath expands a leading tilde and resolves path to an absolute form.
// When ensureExists is set, a missing file is a resource error.
func AbsPath(path string, ensureExists bool) (string, error) {
	expanded := expandHome(path)
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.TypeResource,
			"cannot resolve path "+path, "")
	}
	if ensureExists {
		if _, err := os.Stat(abs); err != nil {
			return "", apperrors.Newf(apperrors.TypeResource,
				"file path %q (from %q) does not exist", abs, path)
		}
	}
	return abs, nil
}
