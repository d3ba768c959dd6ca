package stable

import (
	"math/big"

	"ausd/native/oracle"
)

var (
	oneE6  = big.NewInt(1_000_000)
	oneE18 = mustBigInt("1000000000000000000")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func pow10(exp int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// mintedUnits converts a collateral deposit into stable units: amount times
// the 1e18-scaled oracle price, rescaled from the asset's native precision
// down to the ledger's 6-decimal scale with truncating division.
func mintedUnits(amount, price *big.Int, assetDecimals uint8) *big.Int {
	minted := new(big.Int).Mul(amount, price)
	scale := pow10(oracle.PriceDecimals + int(assetDecimals) - LedgerDecimals)
	return minted.Quo(minted, scale)
}

// collateralValueUSD values a held collateral balance in USD scaled 1e18.
func collateralValueUSD(balance, price *big.Int, assetDecimals uint8) *big.Int {
	value := new(big.Int).Mul(balance, price)
	return value.Quo(value, pow10(int(assetDecimals)))
}

// backingRatio divides the 1e18-scaled USD collateral value by the
// USD-equivalent value of the 1e6-scaled supply, yielding a 1e18-scaled
// ratio where 1e18 means fully backed.
func backingRatio(collateralUSD, supply *big.Int) *big.Int {
	if supply == nil || supply.Sign() == 0 {
		return big.NewInt(0)
	}
	ratio := new(big.Int).Mul(collateralUSD, oneE6)
	return ratio.Quo(ratio, supply)
}
