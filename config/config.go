package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"ausd/native/stable"
)

// Config is the deployment descriptor for a stablecoin instance: the
// collateral set, the global flutter thresholds and the pool binding.
type Config struct {
	ChainName     string             `toml:"ChainName"`
	DataDir       string             `toml:"DataDir"`
	Admin         string             `toml:"Admin"`
	FlutterRatios []string           `toml:"FlutterRatios"`
	Pool          PoolConfig         `toml:"Pool"`
	Collaterals   []CollateralConfig `toml:"Collaterals"`
}

// PoolConfig binds the AMM pair holding the stable unit.
type PoolConfig struct {
	StableToken string `toml:"StableToken"`
	BaseToken   string `toml:"BaseToken"`
	FeeTier     uint32 `toml:"FeeTier"`
	// StableIsToken0 records the pair ordering, which decides the peg's
	// square-root price representation.
	StableIsToken0 bool `toml:"StableIsToken0"`
	// Liquidity and SqrtPriceX96 seed the simulated pool.
	Liquidity    string `toml:"Liquidity"`
	SqrtPriceX96 string `toml:"SqrtPriceX96"`
}

// CollateralConfig describes one collateral registration.
type CollateralConfig struct {
	Token    string   `toml:"Token"`
	Oracle   string   `toml:"Oracle"`
	IsBase   bool     `toml:"IsBase"`
	IsStable bool     `toml:"IsStable"`
	Decimals uint8    `toml:"Decimals"`
	Weights  []string `toml:"Weights"`
	PathIn   string   `toml:"PathIn"`
	PathOut  string   `toml:"PathOut"`
	FeeTier  uint32   `toml:"FeeTier"`
	// PriceUSD seeds the simulation oracle (1e18 scale).
	PriceUSD string `toml:"PriceUSD"`
}

// Load decodes and validates a deployment descriptor.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.ChainName) == "" {
		cfg.ChainName = "ausd-local"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the registry and threshold invariants at the boundary so
// a malformed descriptor never reaches the engines.
func (c *Config) Validate() error {
	if len(c.FlutterRatios) != stable.BandCount {
		return fmt.Errorf("config: expected %d flutter ratios, got %d", stable.BandCount, len(c.FlutterRatios))
	}
	prev := new(big.Int)
	for i, raw := range c.FlutterRatios {
		ratio, err := parseBig(raw)
		if err != nil {
			return fmt.Errorf("config: flutter ratio %d: %w", i, err)
		}
		if i > 0 && prev.Cmp(ratio) >= 0 {
			return fmt.Errorf("config: flutter ratios must be strictly ascending")
		}
		prev.Set(ratio)
	}
	if len(c.Collaterals) == 0 {
		return fmt.Errorf("config: at least one collateral required")
	}
	baseCount := 0
	for i, col := range c.Collaterals {
		if !common.IsHexAddress(col.Token) {
			return fmt.Errorf("config: collateral %d: invalid token address %q", i, col.Token)
		}
		if len(col.Weights) != stable.BandCount {
			return fmt.Errorf("config: collateral %d: expected %d weights, got %d", i, stable.BandCount, len(col.Weights))
		}
		for j, raw := range col.Weights {
			if _, err := parseBig(raw); err != nil {
				return fmt.Errorf("config: collateral %d weight %d: %w", i, j, err)
			}
		}
		if col.IsBase {
			baseCount++
			if col.PathIn != "" || col.PathOut != "" {
				return fmt.Errorf("config: collateral %d: base asset must not carry swap paths", i)
			}
		} else {
			if _, err := parsePath(col.PathIn); err != nil {
				return fmt.Errorf("config: collateral %d PathIn: %w", i, err)
			}
			if _, err := parsePath(col.PathOut); err != nil {
				return fmt.Errorf("config: collateral %d PathOut: %w", i, err)
			}
		}
	}
	if baseCount != 1 {
		return fmt.Errorf("config: exactly one base collateral required, got %d", baseCount)
	}
	if !common.IsHexAddress(c.Pool.StableToken) || !common.IsHexAddress(c.Pool.BaseToken) {
		return fmt.Errorf("config: pool token addresses must be valid hex addresses")
	}
	return nil
}

// Asset converts a collateral entry into the engine's registry type.
func (c *CollateralConfig) Asset() (stable.CollateralAsset, error) {
	asset := stable.CollateralAsset{
		Token:    common.HexToAddress(c.Token),
		Oracle:   c.Oracle,
		IsBase:   c.IsBase,
		IsStable: c.IsStable,
		Decimals: c.Decimals,
		FeeTier:  c.FeeTier,
	}
	for i, raw := range c.Weights {
		weight, err := parseBig(raw)
		if err != nil {
			return asset, err
		}
		asset.Weights[i] = weight
	}
	var err error
	if asset.PathIn, err = parsePath(c.PathIn); err != nil {
		return asset, err
	}
	if asset.PathOut, err = parsePath(c.PathOut); err != nil {
		return asset, err
	}
	return asset, nil
}

// Ratios converts the configured thresholds into engine form.
func (c *Config) Ratios() ([stable.BandCount]*big.Int, error) {
	var ratios [stable.BandCount]*big.Int
	for i, raw := range c.FlutterRatios {
		ratio, err := parseBig(raw)
		if err != nil {
			return ratios, err
		}
		ratios[i] = ratio
	}
	return ratios, nil
}

func parseBig(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid decimal amount %q", raw)
	}
	return value, nil
}

func parsePath(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(raw, "0x"))
	if trimmed == "" {
		return nil, nil
	}
	return hex.DecodeString(trimmed)
}
