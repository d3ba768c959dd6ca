package rebalance

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ausd/core/events"
	nativecommon "ausd/native/common"
	"ausd/native/oracle"
	"ausd/native/stable"
	"ausd/native/uniswap"
	"ausd/observability"
)

var (
	errNilState      = errors.New("rebalance engine: state not configured")
	errNotWired      = errors.New("rebalance engine: pool, router, calculator or ledger not wired")
	errNoBaseAsset   = errors.New("rebalance engine: base asset not configured")
	errPoolMismatch  = errors.New("rebalance engine: stable token not part of the pool")
	errNoFlutter     = errors.New("rebalance engine: flutter ratios not configured")
	errUnknownWeight = errors.New("rebalance engine: base asset missing from registry")

	// ErrInvalidBandOrdering rejects flutter thresholds that are not
	// strictly ascending.
	ErrInvalidBandOrdering = errors.New("rebalance engine: flutter ratios must be strictly ascending")
	// ErrSwapFailed wraps a router-side failure. The whole call aborts and
	// no ledger state changes.
	ErrSwapFailed = errors.New("rebalance engine: swap failed")
)

// pegValuation is the stable unit's target price on the 1e6 valuation scale.
var pegValuation = big.NewInt(1_000_000)

// defaultDeadband is the half-width of the no-action price window around the
// peg, on the 1e6 valuation scale.
var defaultDeadband = big.NewInt(10_000)

type engineState interface {
	FlutterRatios() ([stable.BandCount]*big.Int, bool, error)
	SetFlutterRatios(ratios [stable.BandCount]*big.Int) error
	BaseAsset() (common.Address, error)
	SetBaseAsset(addr common.Address) error
	HasRole(role string, addr common.Address) (bool, error)
}

// Engine observes the pool, classifies the regime and executes the
// corrective trade. Decision logic is pure given pool state, oracle prices
// and the collateral factor; all ledger effects commit only after the router
// reports success.
type Engine struct {
	state       engineState
	ledger      Ledger
	pool        uniswap.Pool
	router      uniswap.Router
	calc        Calculator
	oracles     oracle.PriceOracle
	emitter     events.Emitter
	self        common.Address
	stableToken common.Address
	poolAccount common.Address
	deadband    *big.Int
}

// NewEngine constructs a rebalancer. Self is the identity registered with
// the ledger's SetRebalancer; stableToken is the stable unit's identifier
// inside the pool pair.
func NewEngine(self, stableToken common.Address) *Engine {
	return &Engine{
		self:        self,
		stableToken: stableToken,
		emitter:     events.NoopEmitter{},
		deadband:    new(big.Int).Set(defaultDeadband),
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the stable engine facade.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetOracle wires the USD price source used to size collateral sales.
func (e *Engine) SetOracle(source oracle.PriceOracle) { e.oracles = source }

// SetEmitter wires the event sink. A nil emitter restores the no-op sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetDeadband overrides the no-action window half-width (1e6 scale).
func (e *Engine) SetDeadband(width *big.Int) {
	if width == nil || width.Sign() < 0 {
		return
	}
	e.deadband = new(big.Int).Set(width)
}

// SetPool binds the AMM pool holding the stable unit. The pool account is
// the ledger identity holding the pool's stable-unit inventory.
func (e *Engine) SetPool(caller common.Address, pool uniswap.Pool, poolAccount common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.state, nativecommon.RoleStableControl, caller); err != nil {
		return err
	}
	e.pool = pool
	e.poolAccount = poolAccount
	return nil
}

// SetRouter binds the swap router used to execute corrective trades.
func (e *Engine) SetRouter(caller common.Address, router uniswap.Router) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.state, nativecommon.RoleStableControl, caller); err != nil {
		return err
	}
	e.router = router
	return nil
}

// SetCalculator binds the liquidity-range calculator.
func (e *Engine) SetCalculator(caller common.Address, calc Calculator) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.state, nativecommon.RoleStableControl, caller); err != nil {
		return err
	}
	e.calc = calc
	return nil
}

// SetBaseAsset records which registered collateral the rebalancer trades
// through.
func (e *Engine) SetBaseAsset(caller, base common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.state, nativecommon.RoleStableControl, caller); err != nil {
		return err
	}
	return e.state.SetBaseAsset(base)
}

// SetFlutterRatios replaces the four global collateralization thresholds.
// Thresholds are 1e18-scaled and must be strictly ascending.
func (e *Engine) SetFlutterRatios(caller common.Address, ratios [stable.BandCount]*big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.state, nativecommon.RoleStableControl, caller); err != nil {
		return err
	}
	for i, ratio := range ratios {
		if ratio == nil || ratio.Sign() <= 0 {
			return ErrInvalidBandOrdering
		}
		if i > 0 && ratios[i-1].Cmp(ratio) >= 0 {
			return ErrInvalidBandOrdering
		}
	}
	stored := ratios
	for i, ratio := range ratios {
		stored[i] = new(big.Int).Set(ratio)
	}
	if err := e.state.SetFlutterRatios(stored); err != nil {
		return err
	}
	e.emitter.Emit(events.FlutterRatiosUpdated{Ratios: stored})
	return nil
}

// FlutterRatios returns the configured thresholds.
func (e *Engine) FlutterRatios() ([stable.BandCount]*big.Int, error) {
	var none [stable.BandCount]*big.Int
	if e == nil || e.state == nil {
		return none, errNilState
	}
	ratios, ok, err := e.state.FlutterRatios()
	if err != nil {
		return none, err
	}
	if !ok {
		return none, errNoFlutter
	}
	return ratios, nil
}

// GetOwnValuation reads the pool and returns the stable unit's market price
// scaled 1e6 (1e6 == exactly at peg).
func (e *Engine) GetOwnValuation() (*big.Int, error) {
	if e == nil || e.pool == nil {
		return nil, errNotWired
	}
	stableIsToken0, err := e.stableIsToken0()
	if err != nil {
		return nil, err
	}
	sqrtPrice, err := e.pool.SqrtPriceX96()
	if err != nil {
		return nil, err
	}
	return uniswap.SpotValuation(sqrtPrice, stableIsToken0), nil
}

// CalculateAmountTillPriceMatch sizes the exact-input trade that moves the
// pool's current price to target. The returned amount is denominated in the
// token that must be sold; the flag reports whether that token is token0.
func (e *Engine) CalculateAmountTillPriceMatch(target *uint256.Int) (*big.Int, bool, error) {
	if e == nil || e.pool == nil || e.calc == nil {
		return nil, false, errNotWired
	}
	sqrtPrice, err := e.pool.SqrtPriceX96()
	if err != nil {
		return nil, false, err
	}
	liquidity, err := e.pool.Liquidity()
	if err != nil {
		return nil, false, err
	}
	return e.calc.AmountToTarget(sqrtPrice, target, liquidity)
}

// Classify maps a 1e6-scaled valuation onto a regime using the peg deadband.
func (e *Engine) Classify(valuation *big.Int) Regime {
	if valuation == nil {
		return RegimeAtPeg
	}
	diff := new(big.Int).Sub(valuation, pegValuation)
	if diff.CmpAbs(e.deadband) <= 0 {
		return RegimeAtPeg
	}
	if diff.Sign() > 0 {
		return RegimeAboveOne
	}
	return RegimeBelowOne
}

// ActiveBand maps a 1e18-scaled collateral factor onto one of the four
// global bands: band 0 below the first threshold, band 3 at or above the
// last.
func ActiveBand(factor *big.Int, ratios [stable.BandCount]*big.Int) int {
	band := 0
	for _, ratio := range ratios {
		if ratio == nil || factor == nil {
			break
		}
		if factor.Cmp(ratio) >= 0 {
			band++
		}
	}
	if band >= stable.BandCount {
		band = stable.BandCount - 1
	}
	return band
}

// Rebalance reads the pool, classifies the regime and executes the
// corrective trade sized by the calculator. AboveOne mints and sells stable
// units, distributing the proceeds across collaterals by the active band's
// allocation weights. BelowOne sells collateral (base asset first, then the
// registry order) to buy stable units back and burns them. AtPeg is a no-op.
func (e *Engine) Rebalance() (Regime, error) {
	if e == nil || e.state == nil {
		return RegimeAtPeg, errNilState
	}
	if e.pool == nil || e.router == nil || e.calc == nil || e.ledger == nil {
		return RegimeAtPeg, errNotWired
	}
	stableIsToken0, err := e.stableIsToken0()
	if err != nil {
		return RegimeAtPeg, err
	}
	sqrtPrice, err := e.pool.SqrtPriceX96()
	if err != nil {
		return RegimeAtPeg, err
	}
	valuation := uniswap.SpotValuation(sqrtPrice, stableIsToken0)
	regime := e.Classify(valuation)
	if regime == RegimeAtPeg {
		return regime, nil
	}

	liquidity, err := e.pool.Liquidity()
	if err != nil {
		return regime, err
	}
	target := uniswap.PegSqrtPriceX96(stableIsToken0)
	amount, _, err := e.calc.AmountToTarget(sqrtPrice, target, liquidity)
	if err != nil {
		return regime, err
	}
	if amount.Sign() == 0 {
		return RegimeAtPeg, nil
	}

	base, err := e.baseAsset()
	if err != nil {
		return regime, err
	}

	switch regime {
	case RegimeAboveOne:
		err = e.expandAndSell(amount, base)
	case RegimeBelowOne:
		err = e.buyBackAndBurn(amount, base)
	}
	if err != nil {
		return regime, err
	}

	observability.Stable().RecordRebalance(string(regime))
	band := -1
	if ratios, ok, ratioErr := e.state.FlutterRatios(); ratioErr == nil && ok {
		if factor, factorErr := e.ledger.CollateralFactor(); factorErr == nil {
			band = ActiveBand(factor, ratios)
		}
	}
	e.emitter.Emit(events.RebalanceExecuted{
		Regime:    string(regime),
		Band:      band,
		Amount:    new(big.Int).Set(amount),
		Valuation: valuation,
	})
	return regime, nil
}

// expandAndSell mints `amountStable` new units and sells them into the pool
// for the base asset, then converts the proceeds into collateral according
// to the active band's allocation weights. All router calls run before any
// ledger mutation.
func (e *Engine) expandAndSell(amountStable *big.Int, base common.Address) error {
	ratios, ok, err := e.state.FlutterRatios()
	if err != nil {
		return err
	}
	if !ok {
		return errNoFlutter
	}
	factor, err := e.ledger.CollateralFactor()
	if err != nil {
		return err
	}
	band := ActiveBand(factor, ratios)

	collaterals, err := e.ledger.Collaterals()
	if err != nil {
		return err
	}
	totalWeight := big.NewInt(0)
	for _, asset := range collaterals {
		if asset.IsBase || asset.Token == base {
			continue
		}
		if weight := asset.Weights[band]; weight != nil {
			totalWeight.Add(totalWeight, weight)
		}
	}

	sellPath, err := uniswap.EncodePath([]common.Address{e.stableToken, base}, []uint32{e.pool.FeeTier()})
	if err != nil {
		return err
	}
	baseOut, err := e.router.ExactInput(sellPath, amountStable)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSwapFailed, err)
	}

	type credit struct {
		token  common.Address
		amount *big.Int
	}
	credits := make([]credit, 0, len(collaterals))
	remaining := new(big.Int).Set(baseOut)
	if totalWeight.Sign() > 0 {
		for _, asset := range collaterals {
			if asset.IsBase || asset.Token == base {
				continue
			}
			weight := asset.Weights[band]
			if weight == nil || weight.Sign() == 0 {
				continue
			}
			portion := new(big.Int).Mul(baseOut, weight)
			portion.Quo(portion, totalWeight)
			if portion.Sign() == 0 {
				continue
			}
			if portion.Cmp(remaining) > 0 {
				portion.Set(remaining)
			}
			got, err := e.router.ExactInput(asset.PathIn, portion)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrSwapFailed, err)
			}
			credits = append(credits, credit{token: asset.Token, amount: got})
			remaining.Sub(remaining, portion)
		}
	}

	// Swaps succeeded; commit ledger effects.
	if err := e.ledger.MintForRebalance(e.self, amountStable); err != nil {
		return err
	}
	if err := e.ledger.Transfer(e.ledger.LedgerAccount(), e.poolAccount, amountStable); err != nil {
		return err
	}
	for _, c := range credits {
		if c.amount.Sign() == 0 {
			continue
		}
		if err := e.ledger.CreditCollateral(e.self, c.token, c.amount); err != nil {
			return err
		}
	}
	if remaining.Sign() > 0 {
		if err := e.ledger.CreditCollateral(e.self, base, remaining); err != nil {
			return err
		}
	}
	return nil
}

// buyBackAndBurn sells held collateral for `amountBase` of the base asset
// (base holdings first, then registry order), buys stable units with the
// gathered base and burns them.
func (e *Engine) buyBackAndBurn(amountBase *big.Int, base common.Address) error {
	if e.oracles == nil {
		return errNotWired
	}
	collaterals, err := e.ledger.Collaterals()
	if err != nil {
		return err
	}
	var baseDecimals uint8
	baseFound := false
	for _, asset := range collaterals {
		if asset.Token == base {
			baseDecimals = asset.Decimals
			baseFound = true
			break
		}
	}
	if !baseFound {
		return errUnknownWeight
	}

	type sale struct {
		token  common.Address
		amount *big.Int
	}
	sales := make([]sale, 0, len(collaterals))
	gathered := big.NewInt(0)

	// Base asset sells directly, so spend it first.
	baseHeld, err := e.ledger.CollateralBalance(base)
	if err != nil {
		return err
	}
	if baseHeld.Sign() > 0 {
		use := new(big.Int).Set(baseHeld)
		if use.Cmp(amountBase) > 0 {
			use.Set(amountBase)
		}
		gathered.Add(gathered, use)
		sales = append(sales, sale{token: base, amount: use})
	}

	for _, asset := range collaterals {
		if gathered.Cmp(amountBase) >= 0 {
			break
		}
		if asset.Token == base || asset.IsBase {
			continue
		}
		held, err := e.ledger.CollateralBalance(asset.Token)
		if err != nil {
			return err
		}
		if held.Sign() == 0 {
			continue
		}
		needed := new(big.Int).Sub(amountBase, gathered)
		size, err := e.collateralForBase(needed, asset, baseDecimals, base)
		if err != nil {
			return err
		}
		if size.Sign() == 0 {
			continue
		}
		if size.Cmp(held) > 0 {
			size.Set(held)
		}
		got, err := e.router.ExactInput(asset.PathOut, size)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSwapFailed, err)
		}
		gathered.Add(gathered, got)
		sales = append(sales, sale{token: asset.Token, amount: size})
	}

	spend := new(big.Int).Set(gathered)
	if spend.Cmp(amountBase) > 0 {
		spend.Set(amountBase)
	}
	if spend.Sign() == 0 {
		return stable.ErrInsufficientBalance
	}
	buyPath, err := uniswap.EncodePath([]common.Address{base, e.stableToken}, []uint32{e.pool.FeeTier()})
	if err != nil {
		return err
	}
	stableBought, err := e.router.ExactInput(buyPath, spend)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSwapFailed, err)
	}

	// The pool account must be able to hand over the bought units before any
	// ledger write commits, so a shortfall aborts with state untouched.
	poolBalance, err := e.ledger.BalanceOf(e.poolAccount)
	if err != nil {
		return err
	}
	if poolBalance.Cmp(stableBought) < 0 {
		return stable.ErrInsufficientBalance
	}

	// Swaps succeeded and the buyback is funded; commit ledger effects. The
	// transfer runs first as the only write the checks above do not fully
	// cover.
	if stableBought.Sign() > 0 {
		if err := e.ledger.Transfer(e.poolAccount, e.ledger.LedgerAccount(), stableBought); err != nil {
			return err
		}
		if err := e.ledger.BurnForRebalance(e.self, stableBought); err != nil {
			return err
		}
	}
	for _, s := range sales {
		if err := e.ledger.DebitCollateral(e.self, s.token, s.amount); err != nil {
			return err
		}
	}
	leftover := new(big.Int).Sub(gathered, spend)
	if leftover.Sign() > 0 {
		if err := e.ledger.CreditCollateral(e.self, base, leftover); err != nil {
			return err
		}
	}
	return nil
}

// collateralForBase sizes how much of a collateral must be sold to obtain
// `baseAmount` of the base asset, using oracle prices for both legs.
func (e *Engine) collateralForBase(baseAmount *big.Int, asset stable.CollateralAsset, baseDecimals uint8, base common.Address) (*big.Int, error) {
	basePrice, err := oracle.Validate(e.oracles.PriceUSD(base))
	if err != nil {
		return nil, err
	}
	assetPrice, err := oracle.Validate(e.oracles.PriceUSD(asset.Token))
	if err != nil {
		return nil, err
	}
	// size = baseAmount * basePrice * 10^assetDecimals / (assetPrice * 10^baseDecimals)
	num := new(big.Int).Mul(baseAmount, basePrice)
	num.Mul(num, pow10(int(asset.Decimals)))
	den := new(big.Int).Mul(assetPrice, pow10(int(baseDecimals)))
	return num.Quo(num, den), nil
}

func (e *Engine) baseAsset() (common.Address, error) {
	base, err := e.state.BaseAsset()
	if err != nil {
		return common.Address{}, err
	}
	if base == (common.Address{}) {
		return common.Address{}, errNoBaseAsset
	}
	return base, nil
}

func (e *Engine) stableIsToken0() (bool, error) {
	switch e.stableToken {
	case e.pool.Token0():
		return true, nil
	case e.pool.Token1():
		return false, nil
	}
	return false, errPoolMismatch
}

func pow10(exp int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
