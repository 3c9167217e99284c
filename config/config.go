/*
config.go - Service configuration

PURPOSE:
  Configuration for the loyalty service: HTTP listener, database path,
  Shopify credentials and metrics. Values come from three layers, each
  overriding the last:

    1. Built-in defaults (DefaultConfig)
    2. A TOML file, when one is passed to Load
    3. Environment variables

ENVIRONMENT:
  SHOPIFY_SHOP            Shop domain (your-store.myshopify.com)
  SHOPIFY_ACCESS_TOKEN    Admin API access token
  SHOPIFY_WEBHOOK_SECRET  Webhook signing secret
  LOYALTY_DB              SQLite database path
  LOYALTY_ADDR            Listen address (host:port)

  Credentials belong in the environment, not in the TOML file. The file
  keys exist for local development only.
*/
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/pointsmith/loyalty-engine/shopify"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Shopify ShopifyConfig `toml:"shopify"`
	Metrics MetricsConfig `toml:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// StoreConfig configures persistence.
type StoreConfig struct {
	Path string `toml:"path"`
}

// ShopifyConfig holds the shop binding and credentials. All fields are
// optional: without them the service still processes unsigned webhooks
// and serves the ledger, it just cannot call the Admin API.
type ShopifyConfig struct {
	ShopDomain    string `toml:"shop_domain"`
	APIVersion    string `toml:"api_version"`
	AccessToken   string `toml:"access_token"`
	WebhookSecret string `toml:"webhook_secret"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Store: StoreConfig{
			Path: "./data/loyalty.db",
		},
		Shopify: ShopifyConfig{
			APIVersion: shopify.DefaultAPIVersion,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load builds the configuration: defaults, then the TOML file at path
// (skipped when path is empty), then environment overrides. The result
// is validated before it is returned.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SHOPIFY_SHOP"); v != "" {
		c.Shopify.ShopDomain = v
	}
	if v := os.Getenv("SHOPIFY_ACCESS_TOKEN"); v != "" {
		c.Shopify.AccessToken = v
	}
	if v := os.Getenv("SHOPIFY_WEBHOOK_SECRET"); v != "" {
		c.Shopify.WebhookSecret = v
	}
	if v := os.Getenv("LOYALTY_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("LOYALTY_ADDR"); v != "" {
		host, portStr, err := net.SplitHostPort(v)
		if err != nil {
			return fmt.Errorf("parsing LOYALTY_ADDR %q: %w", v, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("parsing LOYALTY_ADDR port %q: %w", portStr, err)
		}
		c.Server.Host = host
		c.Server.Port = port
	}
	return nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path must not be empty")
	}
	if c.Shopify.ShopDomain != "" && !shopify.IsValidShopDomain(c.Shopify.ShopDomain) {
		return fmt.Errorf("shop domain %q is not a myshopify domain", c.Shopify.ShopDomain)
	}
	return nil
}
