package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// configName is the base name searched for in the standard locations.
const configName = "hrgate"

// envAliases are the legacy variable names accepted for directory settings,
// checked after the HRGATE_ form.
var envAliases = map[string]string{
	"directory.base_url": "SF_API_URL",
	"directory.username": "SF_USERNAME",
	"directory.password": "SF_PASSWORD",
}

// InitViper points viper at configFile, or at hrgate.yaml/.yml in the
// standard locations, and enables HRGATE_ environment overrides.
// The search requires an explicit YAML extension so the hrgate binary in the
// working directory is never picked up as a config file.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No search paths: ReadInConfig returns ConfigFileNotFoundError,
		// which the loaders accept.
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}

	// HRGATE_DIRECTORY_BASE_URL overrides directory.base_url.
	viper.SetEnvPrefix("HRGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".hrgate"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, configName))
		}
	} else {
		paths = append(paths, "/etc/hrgate")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths returns the first hrgate.yaml or hrgate.yml found
// in paths, or "".
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the scalar keys so they can be set from the
// environment without a config file. Lists (auth, policy rules) are only
// read from the file.
func bindNestedEnvKeys() {
	for _, key := range []string{
		"directory.base_url",
		"directory.username",
		"directory.password",
	} {
		envName := "HRGATE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = viper.BindEnv(key, envName, envAliases[key])
	}

	for _, key := range []string{
		"directory.timeout",
		"directory.person_entity",
		"directory.employment_entity",
		"directory.type_tag",
		"directory.reject_ambiguous",
		"directory.strict_fields",

		"server.transport",
		"server.http_addr",
		"server.tls_cert",
		"server.tls_key",

		"log_level",

		"audit.output",
		"audit.channel_size",
		"audit.batch_size",
		"audit.flush_interval",
		"audit.send_timeout",

		"rate_limit.enabled",
		"rate_limit.rate",
		"rate_limit.burst",
		"rate_limit.period",

		"policy.default_action",

		"telemetry.traces",
		"telemetry.metrics",
		"telemetry.metric_interval",

		"dev_mode",
	} {
		_ = viper.BindEnv(key)
	}
}

// LoadConfig reads the file and environment, applies defaults and
// validates.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration and applies defaults, but does not
// apply dev defaults or validate. Callers apply CLI flag overrides, then
// SetDevDefaults and Validate.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded config file, or "" in
// environment-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// WatchConfig calls onChange with the re-read configuration whenever the
// config file changes. Invalid edits are logged and ignored. It does nothing
// when no config file is in use.
func WatchConfig(logger *slog.Logger, devMode bool, onChange func(*Config)) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := LoadConfigRaw()
		if err == nil {
			cfg.DevMode = cfg.DevMode || devMode
			cfg.SetDevDefaults()
			err = cfg.Validate()
		}
		if err != nil {
			logger.Warn("config change ignored", "file", e.Name, "error", err)
			return
		}
		logger.Info("config file changed", "file", e.Name)
		onChange(cfg)
	})
	viper.WatchConfig()
}
