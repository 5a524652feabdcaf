package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "AURELLE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "AURELLE_DB_DSN"
	EnvDBHost = "AURELLE_DB_HOST"
	EnvDBUser = "AURELLE_DB_USER"
	EnvDBName = "AURELLE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Checkout     CheckoutConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"AURELLE_APP_ENV" required:"true"`
	Port         string `envconfig:"AURELLE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AURELLE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AURELLE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"AURELLE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"AURELLE_DB_DSN"`
	Driver string `envconfig:"AURELLE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AURELLE_DB_HOST"`
	LegacyPort     int    `envconfig:"AURELLE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AURELLE_DB_USER"`
	LegacyPassword string `envconfig:"AURELLE_DB_PASSWORD"`
	LegacyName     string `envconfig:"AURELLE_DB_NAME"`
	LegacySSLMode  string `envconfig:"AURELLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AURELLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AURELLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AURELLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AURELLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AURELLE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AURELLE_REDIS_ADDR"`
	Password     string        `envconfig:"AURELLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"AURELLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AURELLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AURELLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AURELLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AURELLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AURELLE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"AURELLE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AURELLE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"AURELLE_JWT_EXPIRATION_MINUTES" default:"1440"`
}

// Expiration returns the access token TTL configured in minutes.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type CheckoutConfig struct {
	StaleOrderTTL        time.Duration `envconfig:"AURELLE_CHECKOUT_STALE_ORDER_TTL" default:"30m"`
	ShippingFlatCents    int           `envconfig:"AURELLE_CHECKOUT_SHIPPING_FLAT_CENTS" default:"500"`
	FreeShippingMinCents int           `envconfig:"AURELLE_CHECKOUT_FREE_SHIPPING_MIN_CENTS" default:"10000"`
	PointValueCents      int           `envconfig:"AURELLE_CHECKOUT_POINT_VALUE_CENTS" default:"1"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"AURELLE_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"AURELLE_CRON_LOCK_TTL" default:"5m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"AURELLE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"AURELLE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
