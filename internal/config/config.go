// Package config loads agent settings from config.yaml and LOTTO_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dreamup/lotto-agent/internal/agent"
	"github.com/dreamup/lotto-agent/internal/purchase"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LOTTO"

// Config holds application configuration
type Config struct {
	Login    LoginConfig    `mapstructure:"login" yaml:"login"`
	Purchase PurchaseConfig `mapstructure:"purchase" yaml:"purchase"`
	Payment  PaymentConfig  `mapstructure:"payment" yaml:"payment"`
	Outcome  OutcomeConfig  `mapstructure:"outcome" yaml:"outcome"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	OCR      OCRConfig      `mapstructure:"ocr" yaml:"ocr"`
	Notify   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Lock     LockConfig     `mapstructure:"lock" yaml:"lock"`
	History  HistoryConfig  `mapstructure:"history" yaml:"history"`
}

type LoginConfig struct {
	UserID      string `mapstructure:"user_id" yaml:"user_id"`
	Password    string `mapstructure:"password" yaml:"password"`
	RechargePIN string `mapstructure:"recharge_pin" yaml:"recharge_pin"`
}

type PurchaseConfig struct {
	Count      int                  `mapstructure:"count" yaml:"count"`
	UnitPrice  int                  `mapstructure:"unit_price" yaml:"unit_price"`
	Directives []purchase.Directive `mapstructure:"directives" yaml:"directives"`
}

type PaymentConfig struct {
	AutoRecharge   bool `mapstructure:"auto_recharge" yaml:"auto_recharge"`
	MinBalance     int  `mapstructure:"min_balance" yaml:"min_balance"`
	RechargeAmount int  `mapstructure:"recharge_amount" yaml:"recharge_amount"`
}

type OutcomeConfig struct {
	// UnmatchedVerdict is success or unknown
	UnmatchedVerdict string `mapstructure:"unmatched_verdict" yaml:"unmatched_verdict"`
}

type BrowserConfig struct {
	Headless       bool `mapstructure:"headless" yaml:"headless"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

type OCRConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Model   string `mapstructure:"model" yaml:"model"`
}

type NotifyConfig struct {
	DiscordWebhook string `mapstructure:"discord_webhook" yaml:"discord_webhook"`
	NATSURL        string `mapstructure:"nats_url" yaml:"nats_url"`
	NATSSubject    string `mapstructure:"nats_subject" yaml:"nats_subject"`
}

type StorageConfig struct {
	DBPath      string `mapstructure:"db_path" yaml:"db_path"`
	EvidenceDir string `mapstructure:"evidence_dir" yaml:"evidence_dir"`
	ReportDir   string `mapstructure:"report_dir" yaml:"report_dir"`
	S3Bucket    string `mapstructure:"s3_bucket" yaml:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region" yaml:"s3_region"`
}

type LockConfig struct {
	// RedisURL selects the Redis lock; empty means in-process
	RedisURL   string `mapstructure:"redis_url" yaml:"redis_url"`
	TTLMinutes int    `mapstructure:"ttl_minutes" yaml:"ttl_minutes"`
}

type HistoryConfig struct {
	// File is a JSON list of past draws for the statistics generators
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Purchase: PurchaseConfig{
			Count:      5,
			UnitPrice:  purchase.DefaultUnitPrice,
			Directives: []purchase.Directive{{Type: purchase.SelectionAuto}},
		},
		Payment: PaymentConfig{
			AutoRecharge:   false,
			MinBalance:     5000,
			RechargeAmount: 50000,
		},
		Outcome: OutcomeConfig{UnmatchedVerdict: "success"},
		Browser: BrowserConfig{Headless: true, TimeoutSeconds: 3},
		OCR:     OCRConfig{Enabled: true, Model: "gpt-4o-mini"},
		Notify:  NotifyConfig{NATSSubject: "lotto.events"},
		Storage: StorageConfig{
			DBPath:      "./data/lotto.db",
			EvidenceDir: "./screenshots",
			ReportDir:   "./reports",
		},
		Lock: LockConfig{TTLMinutes: 30},
	}
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("login.user_id", c.Login.UserID)
	v.SetDefault("login.password", c.Login.Password)
	v.SetDefault("login.recharge_pin", c.Login.RechargePIN)
	v.SetDefault("purchase.count", c.Purchase.Count)
	v.SetDefault("purchase.unit_price", c.Purchase.UnitPrice)
	v.SetDefault("purchase.directives", []map[string]any{{"type": string(purchase.SelectionAuto)}})
	v.SetDefault("payment.auto_recharge", c.Payment.AutoRecharge)
	v.SetDefault("payment.min_balance", c.Payment.MinBalance)
	v.SetDefault("payment.recharge_amount", c.Payment.RechargeAmount)
	v.SetDefault("outcome.unmatched_verdict", c.Outcome.UnmatchedVerdict)
	v.SetDefault("browser.headless", c.Browser.Headless)
	v.SetDefault("browser.timeout_seconds", c.Browser.TimeoutSeconds)
	v.SetDefault("ocr.enabled", c.OCR.Enabled)
	v.SetDefault("ocr.model", c.OCR.Model)
	v.SetDefault("notify.discord_webhook", c.Notify.DiscordWebhook)
	v.SetDefault("notify.nats_url", c.Notify.NATSURL)
	v.SetDefault("notify.nats_subject", c.Notify.NATSSubject)
	v.SetDefault("storage.db_path", c.Storage.DBPath)
	v.SetDefault("storage.evidence_dir", c.Storage.EvidenceDir)
	v.SetDefault("storage.report_dir", c.Storage.ReportDir)
	v.SetDefault("storage.s3_bucket", c.Storage.S3Bucket)
	v.SetDefault("storage.s3_region", c.Storage.S3Region)
	v.SetDefault("lock.redis_url", c.Lock.RedisURL)
	v.SetDefault("lock.ttl_minutes", c.Lock.TTLMinutes)
	v.SetDefault("history.file", c.History.File)
}

// Load reads configuration from the environment and a config file. An empty
// path searches ./config.yaml and $HOME/.lotto/config.yaml; a missing file
// is not an error. A .env file next to the config file (or in the working
// directory) is loaded first; variables already set win.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.lotto")
	}

	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, agent.NewConfigError("failed to read config", err)
		}
		// Config file not found is OK - we'll use defaults
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, agent.NewConfigError("failed to decode config", err)
	}
	if err := c.expandPaths(); err != nil {
		return nil, err
	}
	return &c, nil
}

// expandPaths resolves a leading ~ in the file settings
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Storage.DBPath, &c.Storage.EvidenceDir, &c.Storage.ReportDir, &c.History.File} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return agent.NewConfigError("invalid path "+*p, err)
		}
		*p = expanded
	}
	return nil
}

func loadDotEnv(configPath string) error {
	envPath := ".env"
	if configPath != "" {
		envPath = filepath.Join(filepath.Dir(configPath), ".env")
	}
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return agent.NewConfigError("failed to load "+envPath, err)
	}
	return nil
}

// Validate checks settings that would otherwise fail mid-run
func (c *Config) Validate() error {
	switch {
	case c.Purchase.Count < 1:
		return agent.NewConfigError("purchase.count must be at least 1", nil)
	case c.Purchase.UnitPrice <= 0:
		return agent.NewConfigError("purchase.unit_price must be positive", nil)
	case c.Payment.MinBalance < 0:
		return agent.NewConfigError("payment.min_balance must not be negative", nil)
	case c.Payment.AutoRecharge && c.Payment.RechargeAmount <= 0:
		return agent.NewConfigError("payment.recharge_amount must be positive when auto_recharge is on", nil)
	case c.Browser.TimeoutSeconds <= 0:
		return agent.NewConfigError("browser.timeout_seconds must be positive", nil)
	}
	if _, err := c.UnmatchedVerdict(); err != nil {
		return err
	}
	return purchase.ValidateDirectives(c.Purchase.Directives)
}

// UnmatchedVerdict is the verdict for dialog text matching no keyword
func (c *Config) UnmatchedVerdict() (agent.Verdict, error) {
	switch strings.ToLower(c.Outcome.UnmatchedVerdict) {
	case "", "success":
		return agent.VerdictSuccess, nil
	case "unknown":
		return agent.VerdictUnknown, nil
	}
	return agent.VerdictUnknown, agent.NewConfigError(
		fmt.Sprintf("outcome.unmatched_verdict must be success or unknown, got %q", c.Outcome.UnmatchedVerdict), nil)
}

// Credentials returns the login collaborator's values
func (c *Config) Credentials() purchase.Credentials {
	return purchase.Credentials{
		UserID:      c.Login.UserID,
		Password:    c.Login.Password,
		RechargePIN: c.Login.RechargePIN,
	}
}

// Settings returns the orchestrator settings
func (c *Config) Settings() purchase.Settings {
	return purchase.Settings{
		UserID:        c.Login.UserID,
		PurchaseCount: c.Purchase.Count,
		UnitPrice:     c.Purchase.UnitPrice,
		Recharge: purchase.RechargeConfig{
			MinBalance:     c.Payment.MinBalance,
			RechargeAmount: c.Payment.RechargeAmount,
			AutoRecharge:   c.Payment.AutoRecharge,
		},
		Directives: c.Purchase.Directives,
	}
}

// ResolveTimeout is the per-strategy element budget
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Browser.TimeoutSeconds) * time.Second
}

// LockTTL is how long a run may hold the account lock
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLMinutes) * time.Minute
}

// ErrExists is returned by WriteDefault when the file is already there
var ErrExists = errors.New("config file already exists")

// Save writes c as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	// credentials may be filled in later
	return os.WriteFile(path, data, 0o600)
}

// WriteDefault writes the default configuration to path. An existing file
// is kept unless force is set.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s: %w", path, ErrExists)
	}
	return Default().Save(path)
}
