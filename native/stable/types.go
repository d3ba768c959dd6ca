package stable

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BandCount is the number of global flutter bands. Every collateral carries
// one allocation weight per band.
const BandCount = 4

// LedgerDecimals is the precision of the stable unit: balances and total
// supply are integers scaled by 1e6.
const LedgerDecimals = 6

// CollateralAsset describes one registered collateral. Entries are immutable
// after registration; the registry only ever appends.
type CollateralAsset struct {
	// Token is the collateral's asset identifier.
	Token common.Address
	// Oracle names the price feed backing the asset, recorded for observers.
	Oracle string
	// IsBase marks the asset the rebalancer trades through. Exactly one
	// registered asset carries both IsBase and IsStable.
	IsBase bool
	// IsStable marks collaterals whose USD value is expected to hold 1:1.
	IsStable bool
	// Decimals is the asset's native precision, used when rescaling amounts
	// between the asset, oracle and ledger scales.
	Decimals uint8
	// Weights holds the 1e18-scaled allocation weight per flutter band.
	// Weights are allocation targets, not thresholds; no ordering among them
	// is required.
	Weights [BandCount]*big.Int
	// PathIn is the encoded route that buys this asset with the base asset.
	// Empty for the base asset, which needs no route.
	PathIn []byte
	// PathOut is the encoded route that sells this asset into the base asset.
	PathOut []byte
	// FeeTier is the pool fee tier used when routing through this asset.
	FeeTier uint32
}

// Copy returns a deep copy so callers cannot mutate registry state through
// shared pointers.
func (a *CollateralAsset) Copy() *CollateralAsset {
	if a == nil {
		return nil
	}
	clone := *a
	for i, weight := range a.Weights {
		if weight != nil {
			clone.Weights[i] = new(big.Int).Set(weight)
		}
	}
	clone.PathIn = append([]byte(nil), a.PathIn...)
	clone.PathOut = append([]byte(nil), a.PathOut...)
	return &clone
}
