package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "looms"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	OTP           OTPConfig
	AuthRateLimit AuthRateLimitConfig
	Square        SquareConfig
	Checkout      CheckoutConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LOOMS_APP_ENV" required:"true"`
	Port         string `envconfig:"LOOMS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LOOMS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOOMS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LOOMS_DB_DSN"`
	Driver string `envconfig:"LOOMS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"LOOMS_DB_HOST"`
	Port     int    `envconfig:"LOOMS_DB_PORT" default:"5432"`
	User     string `envconfig:"LOOMS_DB_USER"`
	Password string `envconfig:"LOOMS_DB_PASSWORD"`
	Name     string `envconfig:"LOOMS_DB_NAME"`
	SSLMode  string `envconfig:"LOOMS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOOMS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOOMS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOOMS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOOMS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LOOMS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LOOMS_REDIS_ADDR"`
	Password     string        `envconfig:"LOOMS_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOOMS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOOMS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOOMS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOOMS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOOMS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOOMS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LOOMS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LOOMS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LOOMS_JWT_EXPIRATION_MINUTES" default:"60"`
	SessionTTLMinutes int    `envconfig:"LOOMS_SESSION_TTL_MINUTES" default:"43200"`
}

// SessionTTL returns the server-side session TTL configured in minutes.
func (j JWTConfig) SessionTTL() time.Duration {
	if j.SessionTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.SessionTTLMinutes) * time.Minute
}

type OTPConfig struct {
	TTL         time.Duration `envconfig:"LOOMS_OTP_TTL" default:"5m"`
	Digits      int           `envconfig:"LOOMS_OTP_DIGITS" default:"6"`
	MaxAttempts int           `envconfig:"LOOMS_OTP_MAX_ATTEMPTS" default:"5"`
}

type AuthRateLimitConfig struct {
	SendWindow       time.Duration `envconfig:"LOOMS_AUTH_RATE_LIMIT_SEND_WINDOW" default:"1m"`
	SendEmailLimit   int           `envconfig:"LOOMS_AUTH_RATE_LIMIT_SEND_EMAIL_LIMIT" default:"3"`
	SendIPLimit      int           `envconfig:"LOOMS_AUTH_RATE_LIMIT_SEND_IP_LIMIT" default:"20"`
	VerifyWindow     time.Duration `envconfig:"LOOMS_AUTH_RATE_LIMIT_VERIFY_WINDOW" default:"5m"`
	VerifyEmailLimit int           `envconfig:"LOOMS_AUTH_RATE_LIMIT_VERIFY_EMAIL_LIMIT" default:"10"`
	VerifyIPLimit    int           `envconfig:"LOOMS_AUTH_RATE_LIMIT_VERIFY_IP_LIMIT" default:"40"`
}

type SquareConfig struct {
	AccessToken    string `envconfig:"LOOMS_SQUARE_ACCESS_TOKEN"`
	ApplicationID  string `envconfig:"LOOMS_SQUARE_APPLICATION_ID"`
	Env            string `envconfig:"LOOMS_SQUARE_ENV" default:"sandbox"`
	CallbackSecret string `envconfig:"LOOMS_SQUARE_CALLBACK_SECRET"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type CheckoutConfig struct {
	CallTimeout time.Duration `envconfig:"LOOMS_CHECKOUT_CALL_TIMEOUT" default:"10s"`
	SessionTTL  time.Duration `envconfig:"LOOMS_CHECKOUT_SESSION_TTL" default:"30m"`
	Currency    string        `envconfig:"LOOMS_CHECKOUT_CURRENCY" default:"USD"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LOOMS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LOOMS_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, "sqlite") {
		db.DSN = "file:looms.db?cache=shared"
		return nil
	}

	missing := []string{}
	required := map[string]string{
		"LOOMS_DB_HOST": db.Host,
		"LOOMS_DB_USER": db.User,
		"LOOMS_DB_NAME": db.Name,
	}
	for _, key := range []string{"LOOMS_DB_HOST", "LOOMS_DB_USER", "LOOMS_DB_NAME"} {
		if required[key] == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either LOOMS_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
