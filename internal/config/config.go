package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "FORMS"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "forms.db"
	defaultLogLevel     = "info"
	defaultLogFormat    = "json"
	defaultTenantHeader = "X-Forms-Tenant"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string
	LogFormat    string
	TenantHeader string
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("http.tenant_header", defaultTenantHeader)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),
		LogFormat:    configViper.GetString("log.format"),
		TenantHeader: configViper.GetString("http.tenant_header"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.TenantHeader) == "" {
		return fmt.Errorf("http.tenant_header is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console")
	}
	return nil
}
