package infra

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/xela07ax/openfinance-gateway/internal/carbon"
	"github.com/xela07ax/openfinance-gateway/internal/policy"
)

// Config is the root configuration of the gateway.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Guardrail GuardrailConfig `mapstructure:"guardrail"`
	Carbon    CarbonConfig    `mapstructure:"carbon"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Journal   JournalConfig   `mapstructure:"journal"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_allowed_origins"` // browser dashboards calling the API
}

// Addr is the listen address, e.g. ":8080".
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MetricsConfig is the Prometheus exporter on its own port. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggerConfig configures zap.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// GuardrailConfig is the agent spending policy. Business owned, changes without a release.
type GuardrailConfig struct {
	MaxAutoApprove       decimal.Decimal `mapstructure:"max_auto_approve"`
	ProhibitedCategories []string        `mapstructure:"prohibited_categories"`
	ConsentPrefix        string          `mapstructure:"consent_prefix"`
}

// CarbonConfig holds emissions reference data, keyed by 4-digit MCC.
// A non-empty Factors map replaces the built-in table instead of extending it.
type CarbonConfig struct {
	FallbackName   string                  `mapstructure:"fallback_name"`
	FallbackFactor decimal.Decimal         `mapstructure:"fallback_factor"`
	Factors        map[string]FactorConfig `mapstructure:"factors"`
}

type FactorConfig struct {
	Name   string          `mapstructure:"name"`
	Factor decimal.Decimal `mapstructure:"factor"`
}

// RedisConfig locates the kill-switch state. Empty Addr disables the kill-switch.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Startup reads are retried with capped exponential backoff
	InitAttempts   uint          `mapstructure:"init_attempts"`
	InitBackoff    time.Duration `mapstructure:"init_backoff"`
	InitMaxBackoff time.Duration `mapstructure:"init_max_backoff"`
}

// AuthConfig enables RS256 verification of caller tokens. No key means auth is off.
type AuthConfig struct {
	PublicKeyPath string        `mapstructure:"public_key_path"`
	Issuer        string        `mapstructure:"issuer"`   // required "iss" when set
	Audience      string        `mapstructure:"audience"` // required "aud" when set
	Leeway        time.Duration `mapstructure:"leeway"`
	PublicKey     []byte
}

// Enabled reports whether a public key was supplied.
func (a AuthConfig) Enabled() bool {
	return len(a.PublicKey) > 0
}

// RateLimitConfig is a global token bucket. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// JournalConfig tunes the asynchronous decision journal.
type JournalConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoadConfig merges config.yaml (optional), environment variables and defaults.
// path overrides the search locations when non-empty.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// 1. Where to look for the file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// 2. ENV overrides: GUARDRAIL_MAX_AUTO_APPROVE=250 overrides guardrail.max_auto_approve.
	// A local .env never replaces variables already set.
	_ = godotenv.Load(".env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Defaults
	setDefaults(v)

	// 4. Read the file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No file: env and defaults only
	}

	// 5. Map into the struct
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		decimalHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Public key from ENV (PEM inline) or from file
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	limits := policy.DefaultLimits()
	v.SetDefault("guardrail.max_auto_approve", limits.MaxAutoApprove.String())
	v.SetDefault("guardrail.prohibited_categories", limits.ProhibitedCategories)
	v.SetDefault("guardrail.consent_prefix", policy.DefaultConsentPrefix)

	fallback := carbon.DefaultFallback()
	v.SetDefault("carbon.fallback_name", fallback.Name)
	v.SetDefault("carbon.fallback_factor", fallback.KgPerUnit.String())
	// No default for carbon.factors: viper would merge it into a file's map

	// Keys without a default are invisible to AutomaticEnv on Unmarshal
	v.SetDefault("server.host", "")
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.init_attempts", 5)
	v.SetDefault("redis.init_backoff", 500*time.Millisecond)
	v.SetDefault("redis.init_max_backoff", 5*time.Second)
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.leeway", 0)
	v.SetDefault("ratelimit.rps", 0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("journal.buffer_size", 10000)
	v.SetDefault("journal.batch_size", 100)
	v.SetDefault("journal.flush_interval", 500*time.Millisecond)
}

// GuardrailLimits converts config into validated policy limits.
func (c *Config) GuardrailLimits() (policy.Limits, error) {
	limits := policy.Limits{
		MaxAutoApprove:       c.Guardrail.MaxAutoApprove,
		ProhibitedCategories: append([]string(nil), c.Guardrail.ProhibitedCategories...),
	}
	if err := limits.Validate(); err != nil {
		return policy.Limits{}, err
	}
	return limits, nil
}

// FactorTable converts config into the immutable carbon reference table.
// Without configured factors the built-in table is used.
func (c *Config) FactorTable() (*carbon.FactorTable, error) {
	entries := carbon.DefaultFactors()
	if len(c.Carbon.Factors) > 0 {
		entries = make(map[string]carbon.Factor, len(c.Carbon.Factors))
		for mcc, f := range c.Carbon.Factors {
			entries[mcc] = carbon.Factor{Name: f.Name, KgPerUnit: f.Factor}
		}
	}
	return carbon.NewFactorTable(entries, carbon.Factor{
		Name:      c.Carbon.FallbackName,
		KgPerUnit: c.Carbon.FallbackFactor,
	})
}

// decimalHook decodes money and factor values without a float64 round trip.
// YAML numbers arrive as float64 and are read back through their shortest form.
func decimalHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(decimal.Decimal{})
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target {
			return data, nil
		}
		switch v := data.(type) {
		case decimal.Decimal:
			return v, nil
		case string:
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromString(strconv.FormatFloat(v, 'f', -1, 64))
		case float32:
			return decimal.NewFromString(strconv.FormatFloat(float64(v), 'f', -1, 32))
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case uint64:
			return decimal.NewFromUint64(v), nil
		case nil:
			return decimal.Zero, nil
		default:
			return nil, fmt.Errorf("cannot decode %T into a decimal", data)
		}
	}
}

// loadKeyResource prefers inline PEM from ENV and falls back to the file path.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
