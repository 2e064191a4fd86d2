// Package config loads the service configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/raaihank/frame-sentinel/internal/frame"
	"github.com/raaihank/frame-sentinel/internal/policy"
	"github.com/raaihank/frame-sentinel/internal/privacy"
	"github.com/raaihank/frame-sentinel/internal/source"
)

// EnvPrefix prefixes every environment override, e.g. FRAMESENTINEL_SERVER_PORT
const EnvPrefix = "FRAMESENTINEL"

var (
	mu      sync.Mutex
	current *viper.Viper
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Every key needs a default for environment overrides to apply
	if err := setDefaults(v, GetDefaults()); err != nil {
		return nil, err
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/frame-sentinel/")
	v.AddConfigPath("$HOME/.frame-sentinel/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config, err := decode(v)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	current = v
	mu.Unlock()
	return config, nil
}

// setDefaults registers every leaf of cfg as a viper default keyed by its
// dotted yaml path
func setDefaults(v *viper.Viper, cfg *Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if child, ok := val.(map[string]any); ok {
				walk(key, child)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if c := config.Pipeline.Confidence; c < 0 || c > 1 {
		return fmt.Errorf("invalid detection confidence: %v (must be between 0 and 1)", c)
	}

	rules := config.Pipeline.Rules
	for _, c := range append([]frame.Category{frame.Text}, frame.Categories...) {
		raw := ruleValue(rules, c)
		if raw == "" {
			continue
		}
		if _, ok := policy.ParseMethod(raw); !ok {
			return fmt.Errorf("invalid blur method for %s: %s", c, raw)
		}
	}

	if err := validatePatterns(config.Pipeline.SensitivePatterns); err != nil {
		return err
	}

	if !validSource(config.Source.Type) {
		return fmt.Errorf("invalid source type: %s (must be one of %s)", config.Source.Type, strings.Join(source.Types, ", "))
	}
	if config.Source.FPS <= 0 {
		return fmt.Errorf("invalid source fps: %v (must be positive)", config.Source.FPS)
	}
	if (config.Source.Type == source.TypeImage || config.Source.Type == source.TypeDirectory) && config.Source.Path == "" {
		return fmt.Errorf("source type %s requires a path", config.Source.Type)
	}

	b := config.Blur
	if b.GaussianKernel <= 0 || b.PixelateBlock <= 0 || b.EdgeSigmaS <= 0 || b.EdgeSigmaR <= 0 ||
		b.BilateralSigmaColor <= 0 || b.BilateralSigmaSpace <= 0 || b.GaussianSigma < 0 {
		return fmt.Errorf("invalid blur parameters: %+v (must be positive)", b)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMin)
	}

	return nil
}

// ruleValue returns the configured method for c before normalization
func ruleValue(r policy.Rules, c frame.Category) string {
	switch c {
	case frame.Face:
		return string(r.Face)
	case frame.Document:
		return string(r.Document)
	case frame.CreditCard:
		return string(r.CreditCard)
	case frame.LicensePlate:
		return string(r.LicensePlate)
	case frame.Screen:
		return string(r.Screen)
	case frame.Text:
		return string(r.Text)
	}
	return ""
}

func validatePatterns(names []string) error {
	known := map[string]bool{"all": true}
	for _, rule := range privacy.GetDefaultRules() {
		known[rule.Name] = true
	}
	for _, name := range names {
		if !known[strings.ToLower(strings.TrimSpace(name))] {
			return fmt.Errorf("unknown sensitive pattern: %s", name)
		}
	}
	return nil
}

func validSource(t string) bool {
	for _, s := range source.Types {
		if s == t {
			return true
		}
	}
	return false
}

// Watch starts watching the loaded configuration file. onChange receives
// every valid reload; onError receives reloads that fail validation, which
// are otherwise ignored.
func Watch(onChange func(*Config), onError func(error)) error {
	mu.Lock()
	v := current
	mu.Unlock()
	if v == nil {
		return errors.New("configuration not loaded")
	}
	if v.ConfigFileUsed() == "" {
		return errors.New("no configuration file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		config, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload of %s rejected: %w", e.Name, err))
			}
			return
		}
		onChange(config)
	})
	v.WatchConfig()
	return nil
}

// Dump writes config as YAML
func Dump(config *Config, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
