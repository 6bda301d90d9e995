package config

import (
	"fmt"
	"time"
)

const (
	defaultPort          = 8080
	defaultDBPort        = 5432
	defaultDBPoolMax     = 25
	defaultDBPoolMin     = 5
	defaultDBIdleTimeout = 10 * time.Minute
	defaultDBConnTimeout = 5 * time.Second
	defaultAppEnv        = "production"
)

// ServiceConfig holds the environment-driven configuration shared by the
// process entry points (cmd/apiserver, cmd/ingestord): the HTTP listen
// port, the discrete Postgres connection parameters (read separately per
// spec §6 rather than as a single DATABASE_URL, unlike the migrator),
// and the environment flag gating whether error responses carry full
// detail or a redacted message.
type ServiceConfig struct {
	Port int

	DBHost        string
	DBPort        int
	DBName        string
	DBUser        string
	DBPassword    string
	DBPoolMax     int
	DBPoolMin     int
	DBIdleTimeout time.Duration
	DBConnTimeout time.Duration

	AppEnv string
}

// LoadServiceConfig reads ServiceConfig from the environment, applying the
// same production-ready defaults the teacher's storage.Config used for
// pool sizing.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port: GetEnvInt("PORT", defaultPort),

		DBHost:        GetEnvStr("DB_HOST", "localhost"),
		DBPort:        GetEnvInt("DB_PORT", defaultDBPort),
		DBName:        GetEnvStr("DB_NAME", ""),
		DBUser:        GetEnvStr("DB_USER", ""),
		DBPassword:    GetEnvStr("DB_PASSWORD", ""),
		DBPoolMax:     GetEnvInt("DB_POOL_MAX", defaultDBPoolMax),
		DBPoolMin:     GetEnvInt("DB_POOL_MIN", defaultDBPoolMin),
		DBIdleTimeout: GetEnvDuration("DB_IDLE_TIMEOUT", defaultDBIdleTimeout),
		DBConnTimeout: GetEnvDuration("DB_CONNECT_TIMEOUT", defaultDBConnTimeout),

		AppEnv: GetEnvStr("APP_ENV", defaultAppEnv),
	}
}

// IsDevelopment reports whether error responses should carry full detail
// rather than a redacted message, mirroring the NODE_ENV convention named
// in spec §6.
func (c *ServiceConfig) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// DSN builds a lib/pq-compatible connection string from the discrete
// connection parameters.
func (c *ServiceConfig) DSN() string {
	sslmode := "require"
	if c.IsDevelopment() {
		sslmode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s connect_timeout=%d sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword,
		int(c.DBConnTimeout.Seconds()), sslmode,
	)
}

// MaskedDSN returns DSN() with the password replaced, safe for logging.
func (c *ServiceConfig) MaskedDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=*** connect_timeout=%d",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, int(c.DBConnTimeout.Seconds()),
	)
}
