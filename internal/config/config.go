// Package config loads runtime settings from flags, ICP_* environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "ICP"

// Keys understood by Load.
const (
	KeyAddr            = "addr"
	KeyModel           = "model"
	KeyFinalizeModel   = "finalize_model"
	KeyTemperature     = "temperature"
	KeyOpenAIBaseURL   = "openai_base_url"
	KeyParamPrefix     = "param_prefix"
	KeyMaxHistory      = "max_history"
	KeyUpstreamTimeout = "upstream_timeout"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyContactEmail    = "contact_email"
	KeyServerURL       = "server_url"
	KeyOutDir          = "out_dir"
	KeyCredentialTTL   = "credential_ttl"
)

// APIKeyEnv is read without the ICP_ prefix so existing deployments keep working.
const APIKeyEnv = "OPENAI_API_KEY"

type Config struct {
	Addr            string        `mapstructure:"addr"`
	Model           string        `mapstructure:"model"`
	FinalizeModel   string        `mapstructure:"finalize_model"`
	Temperature     float64       `mapstructure:"temperature"`
	OpenAIBaseURL   string        `mapstructure:"openai_base_url"`
	ParamPrefix     string        `mapstructure:"param_prefix"`
	MaxHistory      int           `mapstructure:"max_history"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	ContactEmail    string        `mapstructure:"contact_email"`
	ServerURL       string        `mapstructure:"server_url"`
	OutDir          string        `mapstructure:"out_dir"`
	CredentialTTL   time.Duration `mapstructure:"credential_ttl"`
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyAddr, ":8080")
	v.SetDefault(KeyModel, "gpt-4o-mini")
	v.SetDefault(KeyFinalizeModel, "")
	v.SetDefault(KeyTemperature, 0.2)
	v.SetDefault(KeyOpenAIBaseURL, "https://api.openai.com/v1")
	v.SetDefault(KeyParamPrefix, "")
	v.SetDefault(KeyMaxHistory, 100)
	v.SetDefault(KeyUpstreamTimeout, 2*time.Minute)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyContactEmail, "hello@yourdomain.com")
	v.SetDefault(KeyServerURL, "")
	v.SetDefault(KeyOutDir, ".")
	v.SetDefault(KeyCredentialTTL, 5*time.Minute)
	return v
}

// BindFlags binds every flag in fs whose name, with dashes replaced by
// underscores, is a known key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKnownKey(key) {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("config: bind flag %q: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load reads the optional config file and decodes the merged settings.
func Load(v *viper.Viper, file string) (Config, error) {
	if file = strings.TrimSpace(file); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("config: model must not be empty"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("config: temperature %v out of range [0, 2]", c.Temperature))
	}
	if c.MaxHistory <= 0 {
		errs = append(errs, fmt.Errorf("config: max_history must be positive, got %d", c.MaxHistory))
	}
	if c.UpstreamTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: upstream_timeout must not be negative, got %s", c.UpstreamTimeout))
	}
	if c.CredentialTTL < 0 {
		errs = append(errs, fmt.Errorf("config: credential_ttl must not be negative, got %s", c.CredentialTTL))
	}
	return errors.Join(errs...)
}

var knownKeys = map[string]struct{}{
	KeyAddr: {}, KeyModel: {}, KeyFinalizeModel: {}, KeyTemperature: {},
	KeyOpenAIBaseURL: {}, KeyParamPrefix: {}, KeyMaxHistory: {}, KeyUpstreamTimeout: {},
	KeyLogLevel: {}, KeyLogFormat: {}, KeyContactEmail: {}, KeyServerURL: {}, KeyOutDir: {}, KeyCredentialTTL: {},
}

func isKnownKey(key string) bool {
	_, ok := knownKeys[key]
	return ok
}
