package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix          = "HCSYNC"
	defaultHTTPAddress = "127.0.0.1:8080"
	defaultCachePath   = "hcsync.db"
	defaultLogLevel    = "info"
	defaultHTTPTimeout = 15 * time.Second
)

// AppConfig captures runtime configuration for the sync daemon.
type AppConfig struct {
	// BackendBaseURL is the HarmoniChat REST root.
	BackendBaseURL string
	// BrokerURL is the STOMP-over-WebSocket endpoint.
	BrokerURL string
	// BackendTimeout bounds each REST call.
	BackendTimeout time.Duration

	// SessionToken is the backend-issued JWT carrying the sync identity.
	SessionToken string
	// SessionSigningSecret enables signature verification when set.
	SessionSigningSecret string
	// LoginEmail and LoginPassword are the fallback identity source when no
	// session token is configured.
	LoginEmail    string
	LoginPassword string

	// Timezone names the location for localized backend timestamps; empty
	// selects the process-local zone.
	Timezone string

	HTTPAddress string
	CachePath   string
	LogLevel    string
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
	configViper.SetDefault("cache.path", defaultCachePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("backend.timeout", defaultHTTPTimeout.String())
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		BackendBaseURL:       configViper.GetString("backend.base_url"),
		BrokerURL:            configViper.GetString("backend.ws_url"),
		BackendTimeout:       configViper.GetDuration("backend.timeout"),
		SessionToken:         configViper.GetString("session.token"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		LoginEmail:           configViper.GetString("login.email"),
		LoginPassword:        configViper.GetString("login.password"),
		Timezone:             configViper.GetString("backend.timezone"),
		HTTPAddress:          configViper.GetString("http.address"),
		CachePath:            configViper.GetString("cache.path"),
		LogLevel:             configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.BackendBaseURL) == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if strings.TrimSpace(c.BrokerURL) == "" {
		return fmt.Errorf("backend.ws_url is required")
	}
	if strings.TrimSpace(c.CachePath) == "" {
		return fmt.Errorf("cache.path is required")
	}
	hasToken := strings.TrimSpace(c.SessionToken) != ""
	hasLogin := strings.TrimSpace(c.LoginEmail) != "" && strings.TrimSpace(c.LoginPassword) != ""
	if !hasToken && !hasLogin {
		return fmt.Errorf("either session.token or login.email and login.password are required")
	}
	return nil
}
