package atompub

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Config contains configuration for the AtomPub repository client.
//
// Example configuration (HCL):
//
//	repository {
//	  base_url   = "https://repo.example.org/atom"
//	  auth_token = "..."
//	  timeout    = "30s"
//	  tls_verify = true
//	}
type Config struct {
	// BaseURL is the collection root of the repository
	// Example: "https://repo.example.org/atom"
	BaseURL string `hcl:"base_url" json:"baseUrl"`

	// AuthToken is sent as a Bearer token when set
	AuthToken string `hcl:"auth_token,optional" json:"-"`

	// TLSVerify controls TLS certificate verification
	// Set to false only for development/testing with self-signed certs
	TLSVerify *bool `hcl:"tls_verify,optional" json:"tlsVerify,omitempty"`

	// Timeout for a single request, as a Go duration string
	// Default: 30s
	Timeout string `hcl:"timeout,optional" json:"timeout,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	tlsVerify := true
	return &Config{
		TLSVerify: &tlsVerify,
		Timeout:   "30s",
	}
}

// timeout returns the parsed request timeout.
func (c *Config) timeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	return d, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base_url must use http or https scheme, got: %s", parsedURL.Scheme)
	}

	d, err := c.timeout()
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("timeout must be positive, got: %v", d)
	}

	return nil
}

// NewHTTPClient creates a configured HTTP client for this repository
func (c *Config) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	if c.TLSVerify != nil && !*c.TLSVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	timeout, err := c.timeout()
	if err != nil {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
