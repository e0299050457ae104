package config

import (
	"os"
	"strings"

	"github.com/hashicorp-forge/repomigrate/pkg/events"
	"github.com/hashicorp-forge/repomigrate/pkg/ledger"
	"github.com/hashicorp-forge/repomigrate/pkg/repository/atompub"
)

// Environment variables that override the config file.
const (
	EnvRoot          = "REPOMIGRATE_ROOT"
	EnvRepositoryURL = "REPOMIGRATE_REPOSITORY_URL"
	EnvAuthToken     = "REPOMIGRATE_AUTH_TOKEN"
	EnvLedgerDSN     = "REPOMIGRATE_LEDGER_DSN"
	EnvBrokers       = "REPOMIGRATE_BROKERS"
	EnvEventsTopic   = "REPOMIGRATE_EVENTS_TOPIC"
)

// applyEnv overrides file values with environment variables. Setting a
// variable for an absent block creates the block.
func (c *Config) applyEnv() {
	if root := os.Getenv(EnvRoot); root != "" {
		if c.Source == nil {
			c.Source = &Source{}
		}
		c.Source.Root = root
	}

	if u := os.Getenv(EnvRepositoryURL); u != "" {
		if c.Repository == nil {
			c.Repository = &atompub.Config{}
		}
		c.Repository.BaseURL = u
	}
	if token := os.Getenv(EnvAuthToken); token != "" && c.Repository != nil {
		c.Repository.AuthToken = token
	}

	if dsn := os.Getenv(EnvLedgerDSN); dsn != "" {
		if c.Ledger == nil {
			c.Ledger = &ledger.Config{}
		}
		c.Ledger.DSN = dsn
	}

	if brokers := os.Getenv(EnvBrokers); brokers != "" {
		if c.Events == nil {
			c.Events = &events.Config{}
		}
		c.Events.Brokers = splitList(brokers)
	}
	if topic := os.Getenv(EnvEventsTopic); topic != "" && c.Events != nil {
		c.Events.Topic = topic
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
