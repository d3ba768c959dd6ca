package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
ChainName = "ausd-test"
Admin = "0x00000000000000000000000000000000000000aa"
FlutterRatios = [
  "14250000000000000000",
  "28350000000000000000",
  "61000000000000000000",
  "112800000000000000000",
]

[Pool]
StableToken = "0x0000000000000000000000000000000000000001"
BaseToken = "0x0000000000000000000000000000000000000002"
FeeTier = 500
StableIsToken0 = true
Liquidity = "1000000000000000000"
SqrtPriceX96 = "79228162514264337593543950336000000"

[[Collaterals]]
Token = "0x0000000000000000000000000000000000000002"
Oracle = "weth/usd"
IsBase = true
Decimals = 18
Weights = ["250000000000000000", "350000000000000000", "1000000000000000000", "800000000000000000"]
PriceUSD = "2000000000000000000000"

[[Collaterals]]
Token = "0x0000000000000000000000000000000000000003"
Oracle = "dai/usd"
IsStable = true
Decimals = 18
Weights = ["1000000000000000000", "1000000000000000000", "1000000000000000000", "1000000000000000000"]
PathIn = "0x00000000000000000000000000000000000000010001f40000000000000000000000000000000000000003"
PathOut = "0x00000000000000000000000000000000000000030001f40000000000000000000000000000000000000001"
FeeTier = 500
PriceUSD = "1000000000000000000"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ausd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ChainName != "ausd-test" {
		t.Fatalf("unexpected chain name %q", cfg.ChainName)
	}
	if len(cfg.Collaterals) != 2 {
		t.Fatalf("expected 2 collaterals, got %d", len(cfg.Collaterals))
	}
	ratios, err := cfg.Ratios()
	if err != nil {
		t.Fatalf("ratios: %v", err)
	}
	if ratios[0].String() != "14250000000000000000" {
		t.Fatalf("unexpected first ratio %s", ratios[0])
	}
	asset, err := cfg.Collaterals[1].Asset()
	if err != nil {
		t.Fatalf("asset: %v", err)
	}
	if len(asset.PathIn) != 43 {
		t.Fatalf("expected single-hop path, got %d bytes", len(asset.PathIn))
	}
	if asset.Weights[2].String() != "1000000000000000000" {
		t.Fatalf("unexpected weight %s", asset.Weights[2])
	}
}

func TestValidateRejectsUnsortedRatios(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.FlutterRatios[1] = cfg.FlutterRatios[0]
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unsorted flutter ratios to be rejected")
	}
}

func TestValidateRejectsBaseWithPath(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Collaterals[0].PathIn = "0x00"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected base collateral with swap path to be rejected")
	}
}

func TestValidateRequiresSingleBase(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Collaterals[0].IsBase = false
	cfg.Collaterals[0].PathIn = cfg.Collaterals[1].PathIn
	cfg.Collaterals[0].PathOut = cfg.Collaterals[1].PathOut
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected zero base collaterals to be rejected")
	}
}
