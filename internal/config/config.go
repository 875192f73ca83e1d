package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	APIBaseURL     string
	APIHeaders     map[string]string
	RequestTimeout time.Duration
	MaxAttempts    int
	PaceMin        time.Duration
	PaceMax        time.Duration

	OutputDir  string
	SQLitePath string

	ListenAddr  string
	JWTSecret   string
	JWTUser     string
	JWTPassword string
	TLSCertFile string
	TLSKeyFile  string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the given file (or the conventional
// locations when path is empty), a local .env file and FLIGHTGRID_* env vars.
// A missing API base URL or missing API headers is an error.
func Load(path string) (*Config, error) {
	// .env is optional; real env vars win over it
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("api.base_url", "https://google-flights4.p.rapidapi.com")
	v.SetDefault("api.request_timeout", "60s")
	v.SetDefault("api.max_attempts", 5)
	v.SetDefault("api.pace_min", "300ms")
	v.SetDefault("api.pace_max", "800ms")
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.sqlite_path", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("auth.user", "demo")
	v.SetDefault("auth.pass", "demo123")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if path == "" {
		path = os.Getenv("FLIGHTGRID_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/flightgrid")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("FLIGHTGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	timeout, err := time.ParseDuration(v.GetString("api.request_timeout"))
	if err != nil {
		return nil, fmt.Errorf("bad api.request_timeout: %w", err)
	}
	paceMin, err := time.ParseDuration(v.GetString("api.pace_min"))
	if err != nil {
		return nil, fmt.Errorf("bad api.pace_min: %w", err)
	}
	paceMax, err := time.ParseDuration(v.GetString("api.pace_max"))
	if err != nil {
		return nil, fmt.Errorf("bad api.pace_max: %w", err)
	}
	if paceMax < paceMin {
		return nil, fmt.Errorf("api.pace_max (%s) is below api.pace_min (%s)", paceMax, paceMin)
	}

	headers := map[string]string{}
	for k, val := range v.GetStringMapString("api.headers") {
		headers[k] = val
	}
	if key := os.Getenv("FLIGHTGRID_API_KEY"); key != "" {
		headers["x-rapidapi-key"] = key
	}

	cfg := &Config{
		APIBaseURL:     strings.TrimRight(v.GetString("api.base_url"), "/"),
		APIHeaders:     headers,
		RequestTimeout: timeout,
		MaxAttempts:    v.GetInt("api.max_attempts"),
		PaceMin:        paceMin,
		PaceMax:        paceMax,
		OutputDir:      v.GetString("output.dir"),
		SQLitePath:     v.GetString("output.sqlite_path"),
		ListenAddr:     v.GetString("server.addr"),
		JWTSecret:      v.GetString("auth.jwt_secret"),
		JWTUser:        v.GetString("auth.user"),
		JWTPassword:    v.GetString("auth.pass"),
		TLSCertFile:    os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:     os.Getenv("TLS_KEY_FILE"),
		LogLevel:       v.GetString("log.level"),
		LogFormat:      v.GetString("log.format"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return errors.New("config: api.base_url is required")
	}
	if len(c.APIHeaders) == 0 {
		return errors.New("config: api.headers is required (set FLIGHTGRID_API_KEY or api.headers)")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("config: api.max_attempts must be >= 1, got %d", c.MaxAttempts)
	}
	return nil
}
