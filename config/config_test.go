package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = "0.0.0.0:9000"
DataDir = "./data"
NetworkName = "testnet"
Environment = "staging"
LogFile = "./market.log"
RPCTokenEnv = "TEST_RPC_TOKEN"
AllowDevFaucet = true
RateLimitPerSecond = 12.5
RateLimitBurst = 25

[Telemetry]
Endpoint = "collector:4318"
Insecure = true
Metrics = true
Traces = true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected RPCAddress: %q", cfg.RPCAddress)
	}
	if cfg.NetworkName != "testnet" || cfg.Environment != "staging" {
		t.Fatalf("unexpected network settings: %q %q", cfg.NetworkName, cfg.Environment)
	}
	if !cfg.AllowDevFaucet {
		t.Fatal("expected dev faucet enabled")
	}
	if cfg.RateLimitPerSecond != 12.5 || cfg.RateLimitBurst != 25 {
		t.Fatalf("unexpected rate limits: %v %v", cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	}
	if cfg.Telemetry.Endpoint != "collector:4318" || !cfg.Telemetry.Traces {
		t.Fatalf("unexpected telemetry settings: %+v", cfg.Telemetry)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("unexpected default RPCAddress: %q", cfg.RPCAddress)
	}
	if cfg.AllowDevFaucet {
		t.Fatal("dev faucet must default to disabled")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	// Reload the written file to make sure it round-trips.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if again.RPCAddress != cfg.RPCAddress || again.DataDir != cfg.DataDir {
		t.Fatalf("reloaded config differs: %+v vs %+v", again, cfg)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = ":9999"
DataDir = "./data"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.NetworkName != "market-local" {
		t.Fatalf("unexpected default network name: %q", cfg.NetworkName)
	}
	if cfg.RateLimitPerSecond != 50 || cfg.RateLimitBurst != 100 {
		t.Fatalf("unexpected default rate limits: %v %v", cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	}
}

func TestValidateRejectsEmptyAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = ""
DataDir = "./data"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for empty RPCAddress")
	}
}

func TestTokenResolvesEnvironment(t *testing.T) {
	cfg := &Config{RPCTokenEnv: "MARKET_CONFIG_TEST_TOKEN"}
	t.Setenv("MARKET_CONFIG_TEST_TOKEN", "  secret-token \n")
	if got := cfg.Token(); got != "secret-token" {
		t.Fatalf("unexpected token: %q", got)
	}

	cfg.RPCTokenEnv = ""
	if got := cfg.Token(); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}
