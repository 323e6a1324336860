package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. OAuth, Stripe, SendGrid and RabbitMQ settings are
// optional; the matching feature reports "not configured" when left empty.
type Config struct {
	Env  string // application environment (dev, test, prod)
	Port string // HTTP port to listen on

	DBUser string
	DBPass string // may be empty
	DBHost string
	DBPort string
	DBName string

	JWTSecret      string        // HMAC key for session tokens
	AccessTokenTTL time.Duration // session lifetime
	ResetTokenTTL  time.Duration // password reset token lifetime
	BcryptCost     int

	FrontendOrigin string // prefix for OAuth callback redirects
	CookieSecure   bool

	Google OAuthClient
	GitHub OAuthClient

	StripeSecretKey string
	StripeCurrency  string

	SendGridAPIKey string
	MailFrom       string

	RabbitMQURL    string
	MigrateOnStart bool
}

// OAuthClient is the registered application for one OAuth provider.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Configured reports whether the provider can be used.
func (c OAuthClient) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

// IsDev reports whether the process runs in the development environment.
func (c Config) IsDev() bool { return c.Env == "dev" }

// Load reads configuration values from environment variables. Every missing
// required variable and every malformed number is reported in one error.
func Load() (Config, error) {
	var errs []error
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", key))
		}
		return v
	}
	intOr := func(key string, def int) int {
		s := os.Getenv(key)
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("invalid int for %s: %q", key, s))
			return def
		}
		return n
	}

	cfg := Config{
		Env:    must("APP_ENV"),
		Port:   must("APP_PORT"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret:      must("JWT_SECRET"),
		AccessTokenTTL: time.Duration(intOr("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		ResetTokenTTL:  time.Duration(intOr("RESET_TOKEN_TTL_MIN", 15)) * time.Minute,
		BcryptCost:     intOr("BCRYPT_COST", 12),

		FrontendOrigin: strings.TrimRight(envStr("FRONTEND_ORIGIN", "http://localhost:3000"), "/"),

		Google: OAuthClient{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURI:  os.Getenv("GOOGLE_REDIRECT_URI"),
		},
		GitHub: OAuthClient{
			ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			RedirectURI:  os.Getenv("GITHUB_REDIRECT_URI"),
		},

		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		StripeCurrency:  strings.ToLower(envStr("STRIPE_CURRENCY", "usd")),

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		MailFrom:       envStr("MAIL_FROM", "no-reply@localhost"),

		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		MigrateOnStart: envBool("MIGRATE_ON_START", true),
	}
	cfg.CookieSecure = envBool("COOKIE_SECURE", cfg.Env == "prod")

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
