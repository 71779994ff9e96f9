package postgres

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/caarlos0/env/v11"
)

// Config holds the connection settings of the Postgres pool.
type Config struct {
	Host            string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port            int    `env:"POSTGRES_PORT" envDefault:"5432"`
	Database        string `env:"POSTGRES_DATABASE" envDefault:"fees"`
	Username        string `env:"POSTGRES_USERNAME" envDefault:"postgres"`
	Password        string `env:"POSTGRES_PASSWORD" envDefault:""`
	SSLMode         string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	MaxConns        int32  `env:"POSTGRES_MAX_CONNS" envDefault:"5"`
	ConnMaxLifetime int    `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"30"` // minutes

	// DSN, when set, takes precedence over the discrete fields above.
	DSN string `env:"POSTGRES_DSN" envDefault:""`
}

// Load reads the Postgres configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	return cfg, nil
}

// ConnString renders the configuration as a postgres:// URL.
func (c Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	} else {
		u.User = url.User(c.Username)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}
