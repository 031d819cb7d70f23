package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Jikima/VBot/internal/domain"
	"github.com/Jikima/VBot/internal/domain/pricing"
	"github.com/Jikima/VBot/internal/domain/usage"
)

// Config holds the vbot service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Provider ProviderConfig `yaml:"provider"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Budget   BudgetConfig   `yaml:"budget"`
	Relay    RelayConfig    `yaml:"relay"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StorageConfig holds ledger store settings.
type StorageConfig struct {
	Driver           string   `yaml:"driver"` // file, redis (default: file)
	Dir              string   `yaml:"dir"`    // file driver only
	Addrs            []string `yaml:"addrs"`  // redis driver only
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ProviderConfig holds model provider settings. An empty api_key leaves
// the relay endpoints disabled.
type ProviderConfig struct {
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"`
	ChatModel          string `yaml:"chat_model"`
	TranscriptionModel string `yaml:"transcription_model"`
	ImageModel         string `yaml:"image_model"`
	SystemPrompt       string `yaml:"system_prompt"`
	User               string `yaml:"user"`
}

// PricingConfig holds the price table, in dollars.
type PricingConfig struct {
	ChatPerThousandTokens  float64   `yaml:"chat_per_thousand_tokens"`
	TranscriptionPerMinute float64   `yaml:"transcription_per_minute"`
	Image                  []float64 `yaml:"image"` // per tier, smallest first
}

// BudgetConfig holds allowance settings. Admins, Allowed and Allowances
// are comma separated strings to match the bot's environment variable
// format.
type BudgetConfig struct {
	Period         string  `yaml:"period"`     // day, month, total (the bot's daily/monthly spellings are accepted)
	Admins         string  `yaml:"admins"`     // "-" disables
	Allowed        string  `yaml:"allowed"`    // "*" admits everyone
	Allowances     string  `yaml:"allowances"` // positional, "*" removes the cap
	GuestAllowance float64 `yaml:"guest_allowance"`
}

// RelayConfig holds relay behaviour settings.
type RelayConfig struct {
	DefaultImageSize string `yaml:"default_image_size"`
}

// DedupConfig holds idempotency key settings. Claims live in the
// key-value store, so enabling dedup requires the redis driver.
type DedupConfig struct {
	Enabled  bool `yaml:"enabled"`
	TTLHours int  `yaml:"ttl_hours"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "data"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = domain.KeyPrefix
	}
	if c.Storage.ReadinessTimeout <= 0 {
		c.Storage.ReadinessTimeout = 10
	}
	models := domain.DefaultModelConfig()
	if c.Provider.ChatModel == "" {
		c.Provider.ChatModel = models.ChatModel
	}
	if c.Provider.TranscriptionModel == "" {
		c.Provider.TranscriptionModel = models.TranscriptionModel
	}
	if c.Provider.ImageModel == "" {
		c.Provider.ImageModel = models.ImageModel
	}
	if c.Pricing.ChatPerThousandTokens <= 0 {
		c.Pricing.ChatPerThousandTokens = 0.002
	}
	if c.Pricing.TranscriptionPerMinute <= 0 {
		c.Pricing.TranscriptionPerMinute = 0.006
	}
	if len(c.Pricing.Image) == 0 {
		c.Pricing.Image = []float64{0.016, 0.018, 0.02}
	}
	if c.Budget.Period == "" {
		c.Budget.Period = "month"
	}
	if c.Budget.Admins == "" {
		c.Budget.Admins = "-"
	}
	if c.Budget.Allowed == "" {
		c.Budget.Allowed = "*"
	}
	if c.Budget.Allowances == "" {
		c.Budget.Allowances = "*"
	}
	if c.Budget.GuestAllowance <= 0 {
		c.Budget.GuestAllowance = 100
	}
	if c.Relay.DefaultImageSize == "" {
		c.Relay.DefaultImageSize = "512x512"
	}
	if c.Dedup.TTLHours <= 0 {
		c.Dedup.TTLHours = 24
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Storage.Driver {
	case "file":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file driver")
		}
	case "redis":
		if len(c.Storage.Addrs) == 0 {
			return fmt.Errorf("storage.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("storage.driver must be \"file\" or \"redis\", got %q", c.Storage.Driver)
	}
	if c.Dedup.Enabled && c.Storage.Driver != "redis" {
		return fmt.Errorf("dedup.enabled requires the redis storage driver")
	}
	if _, err := usage.ParsePeriod(c.Budget.Period); err != nil {
		return fmt.Errorf("budget.period: %w", err)
	}
	if _, _, err := ParseAllowances(c.Budget.Allowances); err != nil {
		return fmt.Errorf("budget.allowances: %w", err)
	}
	if len(c.Pricing.Image) != pricing.TierCount {
		return fmt.Errorf("pricing.image must list %d tier prices, got %d", pricing.TierCount, len(c.Pricing.Image))
	}
	return nil
}

// Table converts the pricing section into the domain price table.
func (p PricingConfig) Table() pricing.Table {
	var t pricing.Table
	t.ChatPerThousandTokens = p.ChatPerThousandTokens
	t.TranscriptionPerMinute = p.TranscriptionPerMinute
	copy(t.Image[:], p.Image)
	return t
}

// SplitIDs parses a comma separated identity list. "-" and the empty
// string mean no identities.
func SplitIDs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return nil
	}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ParseAllowList parses a comma separated allow-list. "*" admits every
// identity instead of naming them.
func ParseAllowList(raw string) ([]string, bool) {
	if strings.TrimSpace(raw) == "*" {
		return nil, true
	}
	return SplitIDs(raw), false
}

// ParseAllowances parses a comma separated amount list. "*" reports an
// unlimited budget instead.
func ParseAllowances(raw string) ([]float64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "*" {
		return nil, true, nil
	}
	if raw == "" {
		return nil, false, nil
	}
	var amounts []float64
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, false, fmt.Errorf("allowance %q: %w", part, err)
		}
		if v < 0 {
			return nil, false, fmt.Errorf("allowance %q must not be negative", part)
		}
		amounts = append(amounts, v)
	}
	return amounts, false, nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
