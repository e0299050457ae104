package ledger

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds configuration for the ledger database.
type Config struct {
	// Driver is "sqlite" or "postgres" (default: sqlite)
	Driver string `hcl:"driver,optional"`

	// DSN is a file path for sqlite or a connection string for postgres
	// (default: repomigrate.db)
	DSN string `hcl:"dsn,optional"`

	MaxIdleConns    int    `hcl:"max_idle_conns,optional"`    // default: 2
	MaxOpenConns    int    `hcl:"max_open_conns,optional"`    // default: 10, always 1 for sqlite
	ConnMaxLifetime string `hcl:"conn_max_lifetime,optional"` // default: 5m
}

// DefaultConfig returns the default ledger configuration.
func DefaultConfig() *Config {
	return &Config{
		Driver:          DriverSQLite,
		DSN:             "repomigrate.db",
		MaxIdleConns:    2,
		MaxOpenConns:    10,
		ConnMaxLifetime: "5m",
	}
}

// ApplyDefaults fills unset fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Driver == "" {
		c.Driver = d.Driver
	}
	if c.DSN == "" {
		c.DSN = d.DSN
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = d.MaxIdleConns
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = d.MaxOpenConns
	}
	if c.ConnMaxLifetime == "" {
		c.ConnMaxLifetime = d.ConnMaxLifetime
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.MaxIdleConns, validation.Min(0)),
		validation.Field(&c.MaxOpenConns, validation.Min(0)),
		validation.Field(&c.ConnMaxLifetime, validation.By(isDuration)),
	)
}

func (c Config) connMaxLifetime() time.Duration {
	d, err := time.ParseDuration(c.ConnMaxLifetime)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

func isDuration(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("must be a duration such as 5m: %w", err)
	}
	return nil
}
