package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gitreport/pkg/filter"
	"gitreport/pkg/llm"
	"gitreport/pkg/orchestrator"
	"gitreport/pkg/reporter"
	"gitreport/pkg/settings"
	"gitreport/pkg/source"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every config key read from the environment (GITREPORT_REPORT_MODEL, ...).
const EnvPrefix = "GITREPORT"

// SourceConfig holds retrieval defaults
type SourceConfig struct {
	Kind     string `mapstructure:"kind"`
	Location string `mapstructure:"location"`
	Limit    int    `mapstructure:"limit"`
}

// ReportConfig holds selection and generation defaults
type ReportConfig struct {
	Model         string `mapstructure:"model"`
	Scope         string `mapstructure:"scope"`
	ExcludeMerges bool   `mapstructure:"exclude_merges"`
	Identity      string `mapstructure:"identity"`
	FilterMode    string `mapstructure:"filter_mode"`
}

// GitHubConfig configures the remote source
type GitHubConfig struct {
	Token     string `mapstructure:"token"`
	BaseURL   string `mapstructure:"base_url"`
	RateLimit int    `mapstructure:"rate_limit"`
}

// ProviderConfig configures one text-generation provider
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Proxy   string `mapstructure:"proxy"`
}

// ProvidersConfig holds every provider's settings
type ProvidersConfig struct {
	Aliyun ProviderConfig `mapstructure:"aliyun"`
	Groq   ProviderConfig `mapstructure:"groq"`
}

// Config holds the application configuration
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Report    ReportConfig    `mapstructure:"report"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	Providers ProvidersConfig `mapstructure:"providers"`

	Timeout      time.Duration         `mapstructure:"timeout"`
	OutputFormat reporter.ReportFormat `mapstructure:"output_format"`
	HistoryFile  string                `mapstructure:"history_file"`
	LogLevel     string                `mapstructure:"log_level"`

	// Command-line only
	Verbose    bool   `mapstructure:"-"`
	SaveReport bool   `mapstructure:"-"`
	ReportFile string `mapstructure:"-"`

	keyring *KeyringManager
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:     string(source.KindLocal),
			Location: ".",
			Limit:    source.DefaultLimit,
		},
		Report: ReportConfig{
			Model:         llm.DefaultModel,
			Scope:         filter.ScopeToday.String(),
			ExcludeMerges: true,
			FilterMode:    string(orchestrator.FilterEager),
		},
		GitHub: GitHubConfig{
			RateLimit: 10,
		},
		Providers: ProvidersConfig{
			Aliyun: ProviderConfig{BaseURL: llm.AliyunBaseURL},
			Groq:   ProviderConfig{BaseURL: llm.GroqBaseURL},
		},
		Timeout:      60 * time.Second,
		OutputFormat: reporter.FormatText,
		HistoryFile:  "",
		LogLevel:     "info",
	}
}

// values maps every config key to its current value.
func (c *Config) values() map[string]interface{} {
	return map[string]interface{}{
		"source.kind":               c.Source.Kind,
		"source.location":           c.Source.Location,
		"source.limit":              c.Source.Limit,
		"report.model":              c.Report.Model,
		"report.scope":              c.Report.Scope,
		"report.exclude_merges":     c.Report.ExcludeMerges,
		"report.identity":           c.Report.Identity,
		"report.filter_mode":        c.Report.FilterMode,
		"github.token":              c.GitHub.Token,
		"github.base_url":           c.GitHub.BaseURL,
		"github.rate_limit":         c.GitHub.RateLimit,
		"providers.aliyun.api_key":  c.Providers.Aliyun.APIKey,
		"providers.aliyun.base_url": c.Providers.Aliyun.BaseURL,
		"providers.aliyun.proxy":    c.Providers.Aliyun.Proxy,
		"providers.groq.api_key":    c.Providers.Groq.APIKey,
		"providers.groq.base_url":   c.Providers.Groq.BaseURL,
		"providers.groq.proxy":      c.Providers.Groq.Proxy,
		"timeout":                   c.Timeout.String(),
		"output_format":             string(c.OutputFormat),
		"history_file":              c.HistoryFile,
		"log_level":                 c.LogLevel,
	}
}

// Keys lists every configuration key in sorted order.
func Keys() []string {
	values := DefaultConfig().values()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gitreport", "config.yaml")
	}
	return filepath.Join(homeDir, ".gitreport", "config.yaml")
}

// LoadConfig loads configuration from path (the default path when empty).
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	loadEnvFiles()

	if path == "" {
		path = GetConfigPath()
	}

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := DefaultConfig()
	for key, value := range cfg.values() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败 %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("无法访问配置文件 %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env files; variables already set are not overwritten.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".gitreport", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies the well-known non-secret environment variables.
// Secrets are resolved on demand by Credentials and GitHubToken.
func applyEnvOverrides(cfg *Config) {
	if proxy := os.Getenv("GROQ_PROXY"); proxy != "" {
		cfg.Providers.Groq.Proxy = proxy
	}
	if rateLimit := os.Getenv("GITHUB_RATE_LIMIT"); rateLimit != "" {
		if rate, err := strconv.Atoi(rateLimit); err == nil {
			cfg.GitHub.RateLimit = rate
		}
	}
	if model := os.Getenv("GITREPORT_MODEL"); model != "" {
		cfg.Report.Model = model
	}
}

// Validate validates the configuration, normalizing out-of-range values
func (c *Config) Validate() error {
	if kind, err := source.ParseKind(c.Source.Kind); err != nil {
		c.Source.Kind = string(source.KindLocal)
	} else {
		c.Source.Kind = string(kind)
	}

	if c.Source.Limit <= 0 {
		c.Source.Limit = source.DefaultLimit
	}
	if c.Source.Limit > source.MaxLimit {
		c.Source.Limit = source.MaxLimit
	}

	if strings.TrimSpace(c.Report.Model) == "" {
		c.Report.Model = llm.DefaultModel
	}

	if scope, err := filter.ParseScope(c.Report.Scope); err != nil {
		c.Report.Scope = filter.ScopeToday.String()
	} else {
		c.Report.Scope = scope.String()
	}

	if mode, err := orchestrator.ParseFilterMode(c.Report.FilterMode); err != nil {
		c.Report.FilterMode = string(orchestrator.FilterEager)
	} else {
		c.Report.FilterMode = string(mode)
	}

	if c.GitHub.RateLimit < 0 {
		c.GitHub.RateLimit = 0
	}

	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}

	// 验证输出格式
	if format, err := reporter.ParseFormat(string(c.OutputFormat)); err != nil {
		c.OutputFormat = reporter.FormatText
	} else {
		c.OutputFormat = format
	}

	return nil
}

// Get returns the value of a key as a string
func (c *Config) Get(key string) (string, error) {
	value, ok := c.values()[key]
	if !ok {
		return "", fmt.Errorf("未知的配置项: %s", key)
	}
	return fmt.Sprint(value), nil
}

// Set parses value into key
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "source.kind":
		kind, err := source.ParseKind(value)
		if err != nil {
			return err
		}
		c.Source.Kind = string(kind)
	case "source.location":
		c.Source.Location = value
	case "source.limit":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 || n > source.MaxLimit {
			return fmt.Errorf("获取条数必须是 1-%d 之间的整数: %q", source.MaxLimit, value)
		}
		c.Source.Limit = n
	case "report.model":
		c.Report.Model = value
	case "report.scope":
		scope, err := filter.ParseScope(value)
		if err != nil {
			return err
		}
		c.Report.Scope = scope.String()
	case "report.exclude_merges":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("需要布尔值 (true|false): %q", value)
		}
		c.Report.ExcludeMerges = b
	case "report.identity":
		c.Report.Identity = value
	case "report.filter_mode":
		mode, err := orchestrator.ParseFilterMode(value)
		if err != nil {
			return err
		}
		c.Report.FilterMode = string(mode)
	case "github.token":
		c.GitHub.Token = value
	case "github.base_url":
		c.GitHub.BaseURL = value
	case "github.rate_limit":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("速率限制必须是非负整数: %q", value)
		}
		c.GitHub.RateLimit = n
	case "providers.aliyun.api_key":
		c.Providers.Aliyun.APIKey = value
	case "providers.aliyun.base_url":
		c.Providers.Aliyun.BaseURL = value
	case "providers.aliyun.proxy":
		c.Providers.Aliyun.Proxy = value
	case "providers.groq.api_key":
		c.Providers.Groq.APIKey = value
	case "providers.groq.base_url":
		c.Providers.Groq.BaseURL = value
	case "providers.groq.proxy":
		c.Providers.Groq.Proxy = value
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("超时时间格式错误 (例如 60s): %q", value)
		}
		c.Timeout = d
	case "output_format":
		format, err := reporter.ParseFormat(value)
		if err != nil {
			return err
		}
		c.OutputFormat = format
	case "history_file":
		c.HistoryFile = expandPath(value)
	case "log_level":
		c.LogLevel = strings.ToLower(value)
	default:
		return fmt.Errorf("未知的配置项: %s", key)
	}
	return nil
}

// SaveConfig writes the configuration to path as YAML
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range c.values() {
		v.Set(key, value)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// HistoryPath returns the settings database path
func (c *Config) HistoryPath() string {
	if c.HistoryFile != "" {
		return expandPath(c.HistoryFile)
	}
	return settings.DefaultPath()
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
