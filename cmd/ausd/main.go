package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ausd/adapters/simulation"
	"ausd/config"
	"ausd/core/events"
	"ausd/native/oracle"
	"ausd/native/rebalance"
	"ausd/native/stable"
	"ausd/native/uniswap"
	"ausd/observability/logging"
	"ausd/storage"
)

var (
	adminAccount  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	ledgerAccount = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	poolAccount   = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	rebalAccount  = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	routerAccount = common.HexToAddress("0x00000000000000000000000000000000000000f4")

	// maxAllowance is the unbounded ERC-20 style approval, 2^256 - 1.
	maxAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// logEmitter forwards ledger and rebalancer events to the structured log.
type logEmitter struct{ log *slog.Logger }

func (l logEmitter) Emit(evt events.Event) {
	attrs := make([]any, 0, 8)
	for key, value := range evt.Attributes() {
		attrs = append(attrs, slog.String(key, value))
	}
	l.log.Info(evt.EventType(), attrs...)
}

func main() {
	configPath := flag.String("config", "ausd.toml", "path to the deployment descriptor")
	rounds := flag.Int("rounds", 3, "number of shock/rebalance rounds to simulate")
	env := flag.String("env", "local", "environment label attached to log records")
	flag.Parse()

	logger := logging.Setup("ausd", *env)

	if err := run(*configPath, *rounds, logger); err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, rounds int, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var db storage.Database
	if strings.TrimSpace(cfg.DataDir) == "" {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer leveldb.Close()
		db = leveldb
	}
	state := storage.NewState(db)

	admin := adminAccount
	if common.IsHexAddress(cfg.Admin) {
		admin = common.HexToAddress(cfg.Admin)
	}

	prices := oracle.NewStatic()
	ledger := stable.NewEngine(ledgerAccount)
	ledger.SetState(state)
	ledger.SetOracle(prices)
	ledger.SetEmitter(logEmitter{log: logger})

	if err := ledger.Bootstrap(admin); err != nil {
		return fmt.Errorf("bootstrap ledger: %w", err)
	}

	var base common.Address
	for i := range cfg.Collaterals {
		entry := &cfg.Collaterals[i]
		asset, err := entry.Asset()
		if err != nil {
			return fmt.Errorf("collateral %s: %w", entry.Token, err)
		}
		if err := ledger.AddCollateral(admin, asset); err != nil {
			return fmt.Errorf("register %s: %w", entry.Token, err)
		}
		if asset.IsBase {
			base = asset.Token
		}
		price, ok := new(big.Int).SetString(entry.PriceUSD, 10)
		if !ok {
			return fmt.Errorf("collateral %s: invalid price %q", entry.Token, entry.PriceUSD)
		}
		prices.SetPrice(asset.Token, price)
		logger.Info("collateral registered",
			"token", asset.Token.Hex(),
			"feed", asset.Oracle,
			"base", asset.IsBase,
		)
	}

	pool, router, err := buildPool(cfg, prices)
	if err != nil {
		return err
	}
	stableToken := common.HexToAddress(cfg.Pool.StableToken)
	router.RegisterToken(stableToken, stable.LedgerDecimals)
	for i := range cfg.Collaterals {
		router.RegisterToken(common.HexToAddress(cfg.Collaterals[i].Token), cfg.Collaterals[i].Decimals)
	}

	// The router only spends tokens the ledger has approved for it.
	if err := ledger.SetRouter(admin, routerAccount); err != nil {
		return fmt.Errorf("register router: %w", err)
	}
	if err := ledger.ApproveSpender(admin, stableToken, routerAccount, maxAllowance); err != nil {
		return fmt.Errorf("approve router for stable: %w", err)
	}
	for i := range cfg.Collaterals {
		token := common.HexToAddress(cfg.Collaterals[i].Token)
		if err := ledger.ApproveSpender(admin, token, routerAccount, maxAllowance); err != nil {
			return fmt.Errorf("approve router for %s: %w", cfg.Collaterals[i].Token, err)
		}
	}
	router.RequireApproval(ledger, routerAccount)

	rebalancer := rebalance.NewEngine(rebalAccount, stableToken)
	rebalancer.SetState(state)
	rebalancer.SetLedger(ledger)
	rebalancer.SetOracle(prices)
	rebalancer.SetEmitter(logEmitter{log: logger})

	if err := ledger.SetRebalancer(admin, rebalAccount); err != nil {
		return fmt.Errorf("register rebalancer: %w", err)
	}
	if err := rebalancer.SetPool(admin, pool, poolAccount); err != nil {
		return fmt.Errorf("bind pool: %w", err)
	}
	if err := rebalancer.SetRouter(admin, router); err != nil {
		return fmt.Errorf("bind router: %w", err)
	}
	if err := rebalancer.SetCalculator(admin, uniswap.NewCalculator()); err != nil {
		return fmt.Errorf("bind calculator: %w", err)
	}
	if err := rebalancer.SetBaseAsset(admin, base); err != nil {
		return fmt.Errorf("bind base asset: %w", err)
	}
	ratios, err := cfg.Ratios()
	if err != nil {
		return fmt.Errorf("flutter ratios: %w", err)
	}
	if err := rebalancer.SetFlutterRatios(admin, ratios); err != nil {
		return fmt.Errorf("set flutter ratios: %w", err)
	}

	// Hand half the genesis supply to the pool account so below-peg rounds
	// have stable inventory to buy back.
	supply, err := ledger.TotalSupply()
	if err != nil {
		return err
	}
	if err := ledger.Transfer(ledgerAccount, poolAccount, new(big.Int).Div(supply, big.NewInt(2))); err != nil {
		return fmt.Errorf("seed pool inventory: %w", err)
	}
	// Seed held base collateral for the same reason.
	baseReserve := new(big.Int).Exp(big.NewInt(10), big.NewInt(22), nil)
	if err := state.SetCollateralBalance(base, baseReserve); err != nil {
		return fmt.Errorf("seed base reserve: %w", err)
	}

	logStatus(logger, ledger, rebalancer, "deployed")

	stableIsToken0 := cfg.Pool.StableIsToken0
	for round := 0; round < rounds; round++ {
		// Alternate demand shocks: premium on even rounds, discount on odd.
		num, den := uint64(103), uint64(100)
		if round%2 == 1 {
			num, den = 97, 100
		}
		shock := new(uint256.Int).Mul(uniswap.PegSqrtPriceX96(stableIsToken0), uint256.NewInt(num))
		shock.Div(shock, uint256.NewInt(den))
		pool.SetSqrtPriceX96(shock)

		valuation, err := rebalancer.GetOwnValuation()
		if err != nil {
			return err
		}
		logger.Info("demand shock applied", "round", round, "valuation", valuation.String())

		regime, err := rebalancer.Rebalance()
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		logger.Info("rebalance round complete", "round", round, "regime", string(regime))
		logStatus(logger, ledger, rebalancer, "post-rebalance")
	}
	return nil
}

func buildPool(cfg *config.Config, prices oracle.PriceOracle) (*simulation.Pool, *simulation.Router, error) {
	liquidity, err := parseUint256(cfg.Pool.Liquidity)
	if err != nil {
		return nil, nil, fmt.Errorf("pool liquidity: %w", err)
	}
	sqrtPrice, err := parseUint256(cfg.Pool.SqrtPriceX96)
	if err != nil {
		return nil, nil, fmt.Errorf("pool sqrt price: %w", err)
	}
	if sqrtPrice.IsZero() {
		sqrtPrice = uniswap.PegSqrtPriceX96(cfg.Pool.StableIsToken0)
	}
	token0 := common.HexToAddress(cfg.Pool.StableToken)
	token1 := common.HexToAddress(cfg.Pool.BaseToken)
	if !cfg.Pool.StableIsToken0 {
		token0, token1 = token1, token0
	}
	pool := simulation.NewPool(token0, token1, cfg.Pool.FeeTier, sqrtPrice, liquidity)
	return pool, simulation.NewRouter(pool, prices), nil
}

func parseUint256(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return uint256.NewInt(0), nil
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, err
	}
	return value, nil
}

func logStatus(logger *slog.Logger, ledger *stable.Engine, rebalancer *rebalance.Engine, stage string) {
	supply, err := ledger.TotalSupply()
	if err != nil {
		logger.Error("read supply", "error", err)
		return
	}
	factor, err := ledger.CollateralFactor()
	if err != nil {
		logger.Error("read collateral factor", "error", err)
		return
	}
	valuation, err := rebalancer.GetOwnValuation()
	if err != nil {
		logger.Error("read valuation", "error", err)
		return
	}
	logger.Info("ledger status",
		"stage", stage,
		"supply", supply.String(),
		"collateral_factor", factor.String(),
		"valuation", valuation.String(),
	)
}
