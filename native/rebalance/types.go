package rebalance

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ausd/native/stable"
)

// Regime classifies the pool price of the stable unit relative to the peg.
// The classification is recomputed from pool state on every call; nothing is
// persisted between invocations.
type Regime string

const (
	// RegimeAtPeg means the price sits inside the peg deadband; no action.
	RegimeAtPeg Regime = "atpeg"
	// RegimeAboveOne means the stable unit trades above one USD-equivalent;
	// the corrective action mints and sells stable units.
	RegimeAboveOne Regime = "aboveone"
	// RegimeBelowOne means the stable unit trades below one USD-equivalent;
	// the corrective action sells collateral, buys stable units and burns
	// them.
	RegimeBelowOne Regime = "belowone"
)

// Ledger is the slice of the stable engine the rebalancer drives. Every call
// is made under the rebalancer's registered identity.
type Ledger interface {
	CollateralFactor() (*big.Int, error)
	Collaterals() ([]stable.CollateralAsset, error)
	CollateralBalance(token common.Address) (*big.Int, error)
	BalanceOf(addr common.Address) (*big.Int, error)
	Transfer(from, to common.Address, amount *big.Int) error
	LedgerAccount() common.Address
	MintForRebalance(caller common.Address, amount *big.Int) error
	BurnForRebalance(caller common.Address, amount *big.Int) error
	CreditCollateral(caller common.Address, token common.Address, amount *big.Int) error
	DebitCollateral(caller common.Address, token common.Address, amount *big.Int) error
}

// Calculator sizes the exact-input trade that moves the pool from its
// current square-root price to a target within the active liquidity range.
type Calculator interface {
	AmountToTarget(current, target, liquidity *uint256.Int) (*big.Int, bool, error)
}
