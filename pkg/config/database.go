package config

import (
	"fmt"

	dbutils "github.com/tendant/db-utils/db"
)

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string `env:"PORTAL_MFA_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"PORTAL_MFA_PG_PORT" env-default:"5432"`
	Database string `env:"PORTAL_MFA_PG_DATABASE" env-default:"portal_db"`
	User     string `env:"PORTAL_MFA_PG_USER" env-default:"portal"`
	Password string `env:"PORTAL_MFA_PG_PASSWORD" env-default:"pwd"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Database)
}

// ToDbConfig converts the config to a db-utils DbConfig
func (d DatabaseConfig) ToDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}
