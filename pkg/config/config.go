// Package config loads skillbind settings from defaults, YAML files,
// SKILLBIND_ environment variables and --set command line overrides, in
// increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/jllopis/skillbind/pkg/telemetry"
)

// EnvPrefix prefixes environment overrides: SKILLBIND_REGISTRY_CACHE_SIZE
// sets registry.cache_size.
const EnvPrefix = "SKILLBIND_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Registry  RegistryConfig  `koanf:"registry"`
	Binding   BindingConfig   `koanf:"binding"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type CatalogConfig struct {
	// Dirs are scanned for <name>/SKILL.md files.
	Dirs []string `koanf:"dirs"`
	// Resources is the resource directory file.
	Resources            string `koanf:"resources"`
	WatchIntervalSeconds int    `koanf:"watch_interval_seconds"`
}

type RegistryConfig struct {
	CacheSize int `koanf:"cache_size"`
	// CacheDB is a sqlite DSN for the persistent cache tier. Empty disables it.
	CacheDB string `koanf:"cache_db"`
	// GRPCTarget switches the skill source to gRPC server reflection.
	GRPCTarget          string `koanf:"grpc_target"`
	RetryAttempts       int    `koanf:"retry_attempts"`
	FetchTimeoutSeconds int    `koanf:"fetch_timeout_seconds"`
}

type BindingConfig struct {
	ResourceSuffix string `koanf:"resource_suffix"`
	// UniqueResultKeys appends a random suffix to derived result keys.
	UniqueResultKeys bool `koanf:"unique_result_keys"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// ExporterConfig returns the telemetry package configuration.
func (t TelemetryConfig) ExporterConfig() telemetry.Config {
	return telemetry.Config{
		Exporter:     t.Exporter,
		OTLPEndpoint: t.OTLPEndpoint,
		OTLPInsecure: t.OTLPInsecure,
	}
}

// WatchInterval returns the catalog polling interval.
func (c CatalogConfig) WatchInterval() time.Duration {
	return time.Duration(c.WatchIntervalSeconds) * time.Second
}

// FetchTimeout returns the per-call source timeout.
func (r RegistryConfig) FetchTimeout() time.Duration {
	return time.Duration(r.FetchTimeoutSeconds) * time.Second
}

// Load reads defaults, the file at path (if any) and the environment.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithProfile also merges the profile file next to path, e.g.
// config.dev.yaml for profile dev, when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI loads configuration using --config, --profile (alias --env)
// and repeated --set key=value flags found in args. Other arguments are
// ignored. Values are parsed as YAML, so lists and maps can be given inline.
func LoadWithCLI(args []string) (*Config, error) {
	opts, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, overrides)
}

func load(path, profile string, overrides []override) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if p := profileConfigPath(path, profile); p != "" {
			if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load profile config %s: %w", p, err)
			}
		}
	}

	// 2. Load from ENV (SKILLBIND_REGISTRY_CACHE_SIZE -> registry.cache_size)
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, err
	}

	// 3. Command line overrides
	for _, o := range overrides {
		if err := k.Set(o.key, o.value); err != nil {
			return nil, fmt.Errorf("apply --set %s: %w", o.key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("catalog.dirs", []string{"skills"})
	k.Set("catalog.watch_interval_seconds", 2)
	k.Set("registry.cache_size", 256)
	k.Set("registry.retry_attempts", 3)
	k.Set("registry.fetch_timeout_seconds", 10)
	k.Set("binding.resource_suffix", "_resource")
	k.Set("binding.unique_result_keys", false)
	k.Set("telemetry.exporter", "none")
}

// envValue maps SKILLBIND_SECTION_SOME_KEY to section.some_key. List
// settings take comma separated values.
func envValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.Replace(key, "_", ".", 1)
	if _, ok := listKeys[key]; ok {
		return key, strings.Split(value, ",")
	}
	return key, value
}

var listKeys = map[string]struct{}{
	"catalog.dirs": {},
}

// profileConfigPath returns the profile file for base if it exists.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	p := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

type cliOptions struct {
	path    string
	profile string
}

type override struct {
	key   string
	value any
}

func parseCLIOverrides(args []string) (cliOptions, []override, error) {
	var opts cliOptions
	var overrides []override
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("missing value for %s", name)
			}
			i++
			value = args[i]
		}
		switch name {
		case "--config":
			opts.path = value
		case "--profile", "--env":
			opts.profile = value
		case "--set":
			o, err := parseOverride(value)
			if err != nil {
				return opts, nil, err
			}
			overrides = append(overrides, o)
		}
	}
	return opts, overrides, nil
}

func parseOverride(kv string) (override, error) {
	key, raw, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return override{}, fmt.Errorf("invalid --set value %q, expected key=value", kv)
	}
	var value any
	if err := yamlv3.Unmarshal([]byte(raw), &value); err != nil || value == nil {
		value = raw
	}
	return override{key: key, value: value}, nil
}
