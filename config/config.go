// Package config loads the daemon configuration from TOML, creating a
// default file on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	NetworkName string `toml:"NetworkName"`
	Environment string `toml:"Environment"`
	LogFile     string `toml:"LogFile"`

	// RPCTokenEnv names the environment variable holding the bearer token
	// required for mutating RPC methods. Leaving it empty disables writes
	// over HTTP entirely.
	RPCTokenEnv string `toml:"RPCTokenEnv"`

	// AllowDevFaucet enables the balance-crediting faucet method. Never
	// enable this outside local development networks.
	AllowDevFaucet bool `toml:"AllowDevFaucet"`

	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`

	Telemetry Telemetry `toml:"Telemetry"`
}

// Telemetry holds the OTLP exporter settings.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Load loads the configuration from the given path. A missing file is not an
// error: a default configuration is written there and returned.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Token resolves the RPC bearer token from the configured environment
// variable. An empty result means mutating methods stay disabled.
func (c *Config) Token() string {
	if strings.TrimSpace(c.RPCTokenEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.RPCTokenEnv))
}

// Validate rejects configurations the daemon cannot safely run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if c.RateLimitPerSecond < 0 {
		return fmt.Errorf("config: RateLimitPerSecond must not be negative")
	}
	if c.RateLimitBurst < 0 {
		return fmt.Errorf("config: RateLimitBurst must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "market-local"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	if c.RateLimitPerSecond == 0 {
		c.RateLimitPerSecond = 50
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 100
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:         ":8080",
		DataDir:            "./market-data",
		NetworkName:        "market-local",
		Environment:        "dev",
		RPCTokenEnv:        "MARKET_RPC_TOKEN",
		AllowDevFaucet:     false,
		RateLimitPerSecond: 50,
		RateLimitBurst:     100,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
