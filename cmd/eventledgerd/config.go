package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/eventledger/internal/httpapi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "EVENTLEDGER"

	flagDatabaseURL             = "database-url"
	flagListenAddr              = "listen-addr"
	flagAllowedOrigins          = "allowed-origins"
	flagJWTSigningKey           = "jwt-signing-key"
	flagJWTIssuer               = "jwt-issuer"
	flagJWTCookieName           = "jwt-cookie-name"
	flagRedisAddr               = "redis-addr"
	flagIdempotencyTTL          = "idempotency-ttl"
	flagTicketCommissionPercent = "ticket-commission-percent"
	flagMaxConflictAttempts     = "max-conflict-attempts"
	flagRequestTimeout          = "request-timeout"
	flagRateLimitRPS            = "rate-limit-rps"
	flagRateLimitBurst          = "rate-limit-burst"
	flagInterval                = "interval"
	flagSince                   = "since"
	flagLimit                   = "limit"
	flagFailOnDrift             = "fail-on-drift"

	defaultDatabaseURL             = "sqlite:///tmp/eventledger.db"
	defaultListenAddr              = ":8080"
	defaultAllowedOrigins          = "http://localhost:8000"
	defaultJWTIssuer               = "tauth"
	defaultJWTCookieName           = "app_session"
	defaultIdempotencyTTL          = 24 * time.Hour
	defaultTicketCommissionPercent = 10
	defaultMaxConflictAttempts     = 5
	defaultRequestTimeout          = 5 * time.Second
	defaultRateLimitRPS            = 5.0
	defaultRateLimitBurst          = 10
	defaultReconcileWindow         = 7 * 24 * time.Hour
	defaultReconcileLimit          = 100
)

type runtimeConfig struct {
	DatabaseURL             string
	RedisAddr               string
	IdempotencyTTL          time.Duration
	TicketCommissionPercent int64
	MaxConflictAttempts     uint
	HTTP                    httpapi.Config
}

// newConfigLoader binds command flags to EVENTLEDGER_* environment variables.
// Flags set on the command line win over the environment.
func newConfigLoader(cmd *cobra.Command) (*viper.Viper, error) {
	loader := viper.New()
	loader.SetEnvPrefix(envPrefix)
	loader.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	loader.AutomaticEnv()
	if err := loader.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return loader, nil
}

func loadServeConfig(cmd *cobra.Command) (runtimeConfig, error) {
	loader, err := newConfigLoader(cmd)
	if err != nil {
		return runtimeConfig{}, err
	}
	cfg := runtimeConfig{
		DatabaseURL:             loader.GetString(flagDatabaseURL),
		RedisAddr:               strings.TrimSpace(loader.GetString(flagRedisAddr)),
		IdempotencyTTL:          loader.GetDuration(flagIdempotencyTTL),
		TicketCommissionPercent: loader.GetInt64(flagTicketCommissionPercent),
		MaxConflictAttempts:     loader.GetUint(flagMaxConflictAttempts),
		HTTP: httpapi.Config{
			ListenAddr:        loader.GetString(flagListenAddr),
			AllowedOrigins:    httpapi.ParseAllowedOrigins(loader.GetString(flagAllowedOrigins)),
			SessionSigningKey: loader.GetString(flagJWTSigningKey),
			SessionIssuer:     loader.GetString(flagJWTIssuer),
			SessionCookieName: loader.GetString(flagJWTCookieName),
			RequestTimeout:    loader.GetDuration(flagRequestTimeout),
			RateLimitRPS:      loader.GetFloat64(flagRateLimitRPS),
			RateLimitBurst:    loader.GetInt(flagRateLimitBurst),
		},
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.TicketCommissionPercent < 0 || cfg.TicketCommissionPercent > 100 {
		return runtimeConfig{}, fmt.Errorf("ticket commission percent must be between 0 and 100")
	}
	if cfg.MaxConflictAttempts == 0 {
		return runtimeConfig{}, fmt.Errorf("max conflict attempts must be positive")
	}
	if err := cfg.HTTP.Validate(); err != nil {
		return runtimeConfig{}, err
	}
	return cfg, nil
}

func loadDatabaseURL(cmd *cobra.Command) (string, error) {
	loader, err := newConfigLoader(cmd)
	if err != nil {
		return "", err
	}
	databaseURL := strings.TrimSpace(loader.GetString(flagDatabaseURL))
	if databaseURL == "" {
		databaseURL = defaultDatabaseURL
	}
	return databaseURL, nil
}
