// Package config loads the repomigrate HCL configuration file.
//
// Example:
//
//	log_level = "info"
//
//	source {
//	  root    = "/srv/export"
//	  sharded = true
//	}
//
//	migration {
//	  max_tries          = 5
//	  retry_delay        = "2s"
//	  workers            = 8
//	  queue_capacity     = 128
//	  module_concurrency = 16
//	  strategy           = "forced"
//	}
//
//	repository {
//	  base_url   = "https://repo.example.org/atom"
//	  auth_token = "..."
//	}
//
//	ledger {
//	  driver = "sqlite"
//	  dsn    = "repomigrate.db"
//	}
//
//	events {
//	  brokers = ["localhost:9092"]
//	  topic   = "repomigrate.events"
//	}
//
// The repository, ledger, and events blocks are optional. Without a
// repository block migrations run against an in-memory repository.
// REPOMIGRATE_* environment variables override file values.
package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/hashicorp-forge/repomigrate/pkg/events"
	"github.com/hashicorp-forge/repomigrate/pkg/ledger"
	"github.com/hashicorp-forge/repomigrate/pkg/migration"
	"github.com/hashicorp-forge/repomigrate/pkg/repository/atompub"
)

// Config contains the repomigrate configuration.
type Config struct {
	// LogLevel is one of trace, debug, info, warn, error (default: info)
	LogLevel string `hcl:"log_level,optional"`

	Source     *Source         `hcl:"source,block"`
	Migration  *Migration      `hcl:"migration,block"`
	Repository *atompub.Config `hcl:"repository,block"`
	Ledger     *ledger.Config  `hcl:"ledger,block"`
	Events     *events.Config  `hcl:"events,block"`
}

// Source locates the content tree.
type Source struct {
	Root    string `hcl:"root,optional"`
	Sharded bool   `hcl:"sharded,optional"`
}

// Migration holds the file form of migration.Config.
type Migration struct {
	MaxTries          uint32 `hcl:"max_tries,optional"`
	RetryDelay        string `hcl:"retry_delay,optional"`
	Verbose           bool   `hcl:"verbose,optional"`
	Workers           int    `hcl:"workers,optional"`
	QueueCapacity     int    `hcl:"queue_capacity,optional"`
	ModuleConcurrency int    `hcl:"module_concurrency,optional"`
	Strategy          string `hcl:"strategy,optional"`
}

// NewConfig loads the file at path. An empty path yields the defaults.
func NewConfig(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		if err := hclsimple.DecodeFile(path, nil, c); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Source == nil {
		c.Source = &Source{}
	}

	d := migration.DefaultConfig()
	if c.Migration == nil {
		c.Migration = &Migration{}
	}
	m := c.Migration
	if m.MaxTries == 0 {
		m.MaxTries = d.MaxTries
	}
	if m.RetryDelay == "" {
		m.RetryDelay = d.RetryDelay.String()
	}
	if m.Workers == 0 {
		m.Workers = d.Workers
	}
	if m.QueueCapacity == 0 {
		m.QueueCapacity = d.QueueCapacity
	}
	if m.ModuleConcurrency == 0 {
		m.ModuleConcurrency = d.ModuleConcurrency
	}
	if m.Strategy == "" {
		m.Strategy = string(d.Strategy)
	}

	if c.Repository != nil {
		rd := atompub.DefaultConfig()
		if c.Repository.Timeout == "" {
			c.Repository.Timeout = rd.Timeout
		}
		if c.Repository.TLSVerify == nil {
			c.Repository.TLSVerify = rd.TLSVerify
		}
	}
	if c.Ledger != nil {
		c.Ledger.ApplyDefaults()
	}
	if c.Events != nil && c.Events.Topic == "" {
		c.Events.Topic = events.DefaultTopic
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.By(func(value interface{}) error {
			if hclog.LevelFromString(value.(string)) == hclog.NoLevel {
				return fmt.Errorf("unknown log level")
			}
			return nil
		})),
	)
	if err != nil {
		return err
	}

	if _, err := c.MigrationConfig(); err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	if c.Repository != nil {
		if err := c.Repository.Validate(); err != nil {
			return fmt.Errorf("repository: %w", err)
		}
	}
	if c.Ledger != nil {
		if err := c.Ledger.Validate(); err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
	}
	if c.Events != nil {
		if err := c.Events.Validate(); err != nil {
			return fmt.Errorf("events: %w", err)
		}
	}
	return nil
}

// MigrationConfig converts the migration block into a migration.Config.
func (c *Config) MigrationConfig() (migration.Config, error) {
	m := c.Migration
	delay, err := time.ParseDuration(m.RetryDelay)
	if err != nil {
		return migration.Config{}, fmt.Errorf("invalid retry_delay %q: %w", m.RetryDelay, err)
	}

	cfg := migration.Config{
		MaxTries:          m.MaxTries,
		RetryDelay:        delay,
		Verbose:           m.Verbose,
		Workers:           m.Workers,
		QueueCapacity:     m.QueueCapacity,
		ModuleConcurrency: m.ModuleConcurrency,
		Strategy:          migration.Strategy(m.Strategy),
	}
	if err := cfg.Validate(); err != nil {
		return migration.Config{}, err
	}
	return cfg, nil
}
