package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "PICLUMO"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabaseDSN        = "piclumo.db"
	defaultLogLevel           = "info"
	defaultTokenTTLMinutes    = 60
	defaultArchiveHostPattern = `firebasestorage\.(googleapis\.com|app)`
	defaultFetchPoolSize      = 200
	defaultMaxFeedLimit       = 200
	defaultMaxBatchSize       = 400
	defaultIdentityJWKSURL    = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabaseDSN        string
	LogLevel           string
	SigningSecret      string
	TokenTTLMinutes    int
	OwnerEmail         string
	IdentityAudience   string
	IdentityJWKSURL    string
	IdentityIssuers    []string
	ArchiveHostPattern string
	FetchPoolSize      int
	MaxFeedLimit       int
	MaxBatchSize       int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("identity.jwks_url", defaultIdentityJWKSURL)
	configViper.SetDefault("identity.issuers", []string{})
	configViper.SetDefault("gallery.archive_host_pattern", defaultArchiveHostPattern)
	configViper.SetDefault("gallery.fetch_pool_size", defaultFetchPoolSize)
	configViper.SetDefault("gallery.max_feed_limit", defaultMaxFeedLimit)
	configViper.SetDefault("gallery.max_batch_size", defaultMaxBatchSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabaseDSN:        configViper.GetString("database.dsn"),
		LogLevel:           configViper.GetString("log.level"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenTTLMinutes:    configViper.GetInt("token.ttl_minutes"),
		OwnerEmail:         configViper.GetString("owner.email"),
		IdentityAudience:   configViper.GetString("identity.audience"),
		IdentityJWKSURL:    configViper.GetString("identity.jwks_url"),
		IdentityIssuers:    configViper.GetStringSlice("identity.issuers"),
		ArchiveHostPattern: configViper.GetString("gallery.archive_host_pattern"),
		FetchPoolSize:      configViper.GetInt("gallery.fetch_pool_size"),
		MaxFeedLimit:       configViper.GetInt("gallery.max_feed_limit"),
		MaxBatchSize:       configViper.GetInt("gallery.max_batch_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.OwnerEmail) == "" {
		return fmt.Errorf("owner.email is required")
	}
	if c.FetchPoolSize <= 0 {
		return fmt.Errorf("gallery.fetch_pool_size must be positive")
	}
	if c.MaxFeedLimit <= 0 {
		return fmt.Errorf("gallery.max_feed_limit must be positive")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("gallery.max_batch_size must be positive")
	}
	return nil
}
