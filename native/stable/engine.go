package stable

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ausd/core/events"
	nativecommon "ausd/native/common"
	"ausd/native/oracle"
	"ausd/native/uniswap"
	"ausd/observability"
)

var (
	errNilState = errors.New("stable engine: state not configured")
	errNoOracle = errors.New("stable engine: oracle not configured")

	// ErrUnknownCollateral is returned for operations against an asset that
	// was never registered.
	ErrUnknownCollateral = errors.New("stable engine: unknown collateral")
	// ErrDuplicateCollateral rejects re-registration of an existing asset.
	ErrDuplicateCollateral = errors.New("stable engine: collateral already registered")
	// ErrInvalidWeights rejects an allocation vector that does not carry one
	// usable weight per flutter band.
	ErrInvalidWeights = errors.New("stable engine: invalid allocation weights")
	// ErrZeroAmount rejects zero or negative monetary arguments.
	ErrZeroAmount = errors.New("stable engine: amount must be positive")
	// ErrInsufficientBalance is returned when a debit exceeds the held amount.
	ErrInsufficientBalance = errors.New("stable engine: insufficient balance")
	// ErrNotRebalancer gates the supply-adjustment entry points reserved for
	// the registered rebalancer.
	ErrNotRebalancer = errors.New("stable engine: caller is not the rebalancer")
	// ErrAlreadyInitialized rejects a second genesis mint.
	ErrAlreadyInitialized = errors.New("stable engine: supply already initialized")
)

// initialSupply is the genesis mint credited to the ledger account: 10,000
// stable units at the 6-decimal ledger scale.
var initialSupply = big.NewInt(10_000_000_000)

type engineState interface {
	GetCollateral(token common.Address) (*CollateralAsset, error)
	PutCollateral(asset *CollateralAsset) error
	ListCollateral() ([]*CollateralAsset, error)
	CollateralBalance(token common.Address) (*big.Int, error)
	SetCollateralBalance(token common.Address, balance *big.Int) error
	Balance(addr common.Address) (*big.Int, error)
	SetBalance(addr common.Address, balance *big.Int) error
	TotalSupply() (*big.Int, error)
	SetTotalSupply(supply *big.Int) error
	Allowance(token common.Address, spender common.Address) (*big.Int, error)
	SetAllowance(token common.Address, spender common.Address, amount *big.Int) error
	Router() (common.Address, error)
	SetRouter(addr common.Address) error
	Rebalancer() (common.Address, error)
	SetRebalancer(addr common.Address) error
	HasRole(role string, addr common.Address) (bool, error)
	GrantRole(role string, addr common.Address) error
	RevokeRole(role string, addr common.Address) error
	RoleMembers(role string) ([]common.Address, error)
}

// Engine owns the collateral registry and the stable-unit ledger. All
// mutating entry points run to completion or leave state untouched: checks
// and oracle reads happen first, state writes last.
type Engine struct {
	state         engineState
	oracles       oracle.PriceOracle
	emitter       events.Emitter
	ledgerAccount common.Address
}

// NewEngine constructs a ledger engine. The ledger account holds the genesis
// supply and any units the rebalancer mints ahead of a corrective sale.
func NewEngine(ledgerAccount common.Address) *Engine {
	return &Engine{ledgerAccount: ledgerAccount, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle wires the USD price source consulted for minting and valuation.
func (e *Engine) SetOracle(source oracle.PriceOracle) { e.oracles = source }

// SetEmitter wires the event sink. A nil emitter restores the no-op sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// LedgerAccount returns the account holding protocol-owned stable units.
func (e *Engine) LedgerAccount() common.Address { return e.ledgerAccount }

// Bootstrap grants the control capability to the deployer when the table is
// still empty and performs the genesis mint. It fails once either has
// happened, so a live deployment cannot be re-seeded.
func (e *Engine) Bootstrap(admin common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	members, err := e.state.RoleMembers(nativecommon.RoleStableControl)
	if err != nil {
		return err
	}
	supply, err := e.totalSupply()
	if err != nil {
		return err
	}
	if len(members) > 0 || supply.Sign() != 0 {
		return ErrAlreadyInitialized
	}
	if err := e.state.GrantRole(nativecommon.RoleStableControl, admin); err != nil {
		return err
	}
	if err := e.state.SetBalance(e.ledgerAccount, new(big.Int).Set(initialSupply)); err != nil {
		return err
	}
	if err := e.state.SetTotalSupply(new(big.Int).Set(initialSupply)); err != nil {
		return err
	}
	e.emitter.Emit(events.StableMinted{
		Recipient: e.ledgerAccount,
		Minted:    new(big.Int).Set(initialSupply),
	})
	return nil
}

// AddCollateral registers a new collateral asset. Registration order is
// preserved and drives the rebalancer's sell priority, so the base asset is
// expected to be registered first.
func (e *Engine) AddCollateral(caller common.Address, asset CollateralAsset) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.state, nativecommon.RoleStableControl, caller); err != nil {
		return err
	}
	for _, weight := range asset.Weights {
		if weight == nil || weight.Sign() < 0 {
			return ErrInvalidWeights
		}
	}
	if asset.IsBase {
		if len(asset.PathIn) != 0 || len(asset.PathOut) != 0 {
			return uniswap.ErrInvalidPath
		}
	} else {
		if _, err := uniswap.DecodePath(asset.PathIn); err != nil {
			return err
		}
		if _, err := uniswap.DecodePath(asset.PathOut); err != nil {
			return err
		}
	}
	existing, err := e.state.GetCollateral(asset.Token)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrDuplicateCollateral
	}
	if err := e.state.PutCollateral(asset.Copy()); err != nil {
		return err
	}
	if err := e.state.SetCollateralBalance(asset.Token, big.NewInt(0)); err != nil {
		return err
	}
	e.emitter.Emit(events.CollateralAdded{
		Token:    asset.Token,
		Oracle:   asset.Oracle,
		IsBase:   asset.IsBase,
		IsStable: asset.IsStable,
		FeeTier:  asset.FeeTier,
		PathIn:   append([]byte(nil), asset.PathIn...),
		PathOut:  append([]byte(nil), asset.PathOut...),
	})
	return nil
}

// MintForToken accepts a deposit of a registered collateral and mints the
// oracle-priced stable amount to the recipient. Each call mints anew; there
// is no idempotence.
func (e *Engine) MintForToken(token common.Address, amount *big.Int, recipient common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.oracles == nil {
		return nil, errNoOracle
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	asset, err := e.state.GetCollateral(token)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, ErrUnknownCollateral
	}
	price, err := oracle.Validate(e.oracles.PriceUSD(token))
	if err != nil {
		return nil, err
	}
	minted := mintedUnits(amount, price, asset.Decimals)

	held, err := e.collateralBalance(token)
	if err != nil {
		return nil, err
	}
	balance, err := e.balance(recipient)
	if err != nil {
		return nil, err
	}
	supply, err := e.totalSupply()
	if err != nil {
		return nil, err
	}

	if err := e.state.SetCollateralBalance(token, new(big.Int).Add(held, amount)); err != nil {
		return nil, err
	}
	if err := e.state.SetBalance(recipient, new(big.Int).Add(balance, minted)); err != nil {
		return nil, err
	}
	if err := e.state.SetTotalSupply(new(big.Int).Add(supply, minted)); err != nil {
		return nil, err
	}

	observability.Stable().RecordMint(asset.Oracle)
	e.emitter.Emit(events.StableMinted{
		Token:      token,
		Recipient:  recipient,
		Collateral: new(big.Int).Set(amount),
		Minted:     new(big.Int).Set(minted),
	})
	return minted, nil
}

// CollateralFactor values every held collateral at its current oracle price
// and divides by the USD-equivalent of the outstanding supply. The result is
// scaled 1e18 (1e18 == 100% backed) and recomputed fresh on every call.
func (e *Engine) CollateralFactor() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.oracles == nil {
		return nil, errNoOracle
	}
	collaterals, err := e.state.ListCollateral()
	if err != nil {
		return nil, err
	}
	totalUSD := big.NewInt(0)
	for _, asset := range collaterals {
		held, err := e.collateralBalance(asset.Token)
		if err != nil {
			return nil, err
		}
		if held.Sign() == 0 {
			continue
		}
		price, err := oracle.Validate(e.oracles.PriceUSD(asset.Token))
		if err != nil {
			return nil, err
		}
		totalUSD.Add(totalUSD, collateralValueUSD(held, price, asset.Decimals))
	}
	supply, err := e.totalSupply()
	if err != nil {
		return nil, err
	}
	return backingRatio(totalUSD, supply), nil
}

// Collaterals returns the registry entries in registration order.
func (e *Engine) Collaterals() ([]CollateralAsset, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	records, err := e.state.ListCollateral()
	if err != nil {
		return nil, err
	}
	out := make([]CollateralAsset, 0, len(records))
	for _, record := range records {
		out = append(out, *record.Copy())
	}
	return out, nil
}

// CollateralBalance reports the ledger's held balance of a registered asset.
func (e *Engine) CollateralBalance(token common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	asset, err := e.state.GetCollateral(token)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, ErrUnknownCollateral
	}
	return e.collateralBalance(token)
}

// BalanceOf reports a holder's stable-unit balance.
func (e *Engine) BalanceOf(addr common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.balance(addr)
}

// TotalSupply reports the outstanding stable-unit supply.
func (e *Engine) TotalSupply() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.totalSupply()
}

// Transfer moves stable units between holders. The sum of balances always
// equals total supply; transfers only redistribute it.
func (e *Engine) Transfer(from, to common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	fromBalance, err := e.balance(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := e.balance(to)
	if err != nil {
		return err
	}
	if err := e.state.SetBalance(from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := e.state.SetBalance(to, new(big.Int).Add(toBalance, amount)); err != nil {
		return err
	}
	e.emitter.Emit(events.StableTransferred{From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// ApproveSpender records a spending allowance on a held collateral for the
// router, mirroring the approvals an on-chain deployment hands its exchange.
func (e *Engine) ApproveSpender(caller common.Address, token, spender common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.state, nativecommon.RoleStableControl, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrZeroAmount
	}
	return e.state.SetAllowance(token, spender, new(big.Int).Set(amount))
}

// Allowance reports the approved spending amount for a token/spender pair.
func (e *Engine) Allowance(token, spender common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.Allowance(token, spender)
}

// SetRouter records the swap router reference.
func (e *Engine) SetRouter(caller, router common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.state, nativecommon.RoleStableControl, caller); err != nil {
		return err
	}
	return e.state.SetRouter(router)
}

// SetRebalancer registers the identity allowed to adjust supply and
// collateral composition.
func (e *Engine) SetRebalancer(caller, rebalancer common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.state, nativecommon.RoleStableControl, caller); err != nil {
		return err
	}
	return e.state.SetRebalancer(rebalancer)
}

// GrantRole extends a capability to an account.
func (e *Engine) GrantRole(caller common.Address, role string, addr common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.state, nativecommon.RoleStableControl, caller); err != nil {
		return err
	}
	return e.state.GrantRole(role, addr)
}

// RevokeRole removes a capability from an account.
func (e *Engine) RevokeRole(caller common.Address, role string, addr common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.RequireRole(e.state, nativecommon.RoleStableControl, caller); err != nil {
		return err
	}
	return e.state.RevokeRole(role, addr)
}

// HasRole reports capability membership.
func (e *Engine) HasRole(role string, addr common.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.HasRole(role, addr)
}

// MintForRebalance expands supply into the ledger account ahead of a
// corrective sale. Only the registered rebalancer may call it.
func (e *Engine) MintForRebalance(caller common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRebalancer(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	balance, err := e.balance(e.ledgerAccount)
	if err != nil {
		return err
	}
	supply, err := e.totalSupply()
	if err != nil {
		return err
	}
	if err := e.state.SetBalance(e.ledgerAccount, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	if err := e.state.SetTotalSupply(new(big.Int).Add(supply, amount)); err != nil {
		return err
	}
	e.emitter.Emit(events.SupplyExpanded{Amount: new(big.Int).Set(amount)})
	return nil
}

// BurnForRebalance destroys stable units bought back from the pool.
func (e *Engine) BurnForRebalance(caller common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRebalancer(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	balance, err := e.balance(e.ledgerAccount)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := e.totalSupply()
	if err != nil {
		return err
	}
	if supply.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.state.SetBalance(e.ledgerAccount, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	if err := e.state.SetTotalSupply(new(big.Int).Sub(supply, amount)); err != nil {
		return err
	}
	e.emitter.Emit(events.SupplyContracted{Amount: new(big.Int).Set(amount)})
	return nil
}

// CreditCollateral increases a held collateral balance with swap proceeds.
func (e *Engine) CreditCollateral(caller common.Address, token common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRebalancer(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	asset, err := e.state.GetCollateral(token)
	if err != nil {
		return err
	}
	if asset == nil {
		return ErrUnknownCollateral
	}
	held, err := e.collateralBalance(token)
	if err != nil {
		return err
	}
	return e.state.SetCollateralBalance(token, new(big.Int).Add(held, amount))
}

// DebitCollateral reduces a held collateral balance sold into the pool.
func (e *Engine) DebitCollateral(caller common.Address, token common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireRebalancer(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	asset, err := e.state.GetCollateral(token)
	if err != nil {
		return err
	}
	if asset == nil {
		return ErrUnknownCollateral
	}
	held, err := e.collateralBalance(token)
	if err != nil {
		return err
	}
	if held.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return e.state.SetCollateralBalance(token, new(big.Int).Sub(held, amount))
}

func (e *Engine) requireRebalancer(caller common.Address) error {
	rebalancer, err := e.state.Rebalancer()
	if err != nil {
		return err
	}
	if rebalancer == (common.Address{}) || caller != rebalancer {
		return ErrNotRebalancer
	}
	return nil
}

func (e *Engine) collateralBalance(token common.Address) (*big.Int, error) {
	held, err := e.state.CollateralBalance(token)
	if err != nil {
		return nil, err
	}
	if held == nil {
		return big.NewInt(0), nil
	}
	return held, nil
}

func (e *Engine) balance(addr common.Address) (*big.Int, error) {
	balance, err := e.state.Balance(addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (e *Engine) totalSupply() (*big.Int, error) {
	supply, err := e.state.TotalSupply()
	if err != nil {
		return nil, err
	}
	if supply == nil {
		return big.NewInt(0), nil
	}
	return supply, nil
}
