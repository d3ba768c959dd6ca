package oracle

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceDecimals is the fixed scale of every oracle answer: prices are USD per
// whole asset unit scaled by 1e18, regardless of the asset's own precision.
const PriceDecimals = 18

// ErrStalePrice flags an oracle answer that must not be used for accounting.
// Consumers treat a zero or failing feed the same way.
var ErrStalePrice = errors.New("oracle: stale or invalid price")

// PriceOracle resolves the USD price for a collateral asset.
type PriceOracle interface {
	PriceUSD(asset common.Address) (*big.Int, error)
}

// Validate normalises an oracle answer: a nil, zero or negative price is
// rejected as stale and a defensive copy is returned otherwise.
func Validate(price *big.Int, err error) (*big.Int, error) {
	if err != nil {
		return nil, errors.Join(ErrStalePrice, err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrStalePrice
	}
	return new(big.Int).Set(price), nil
}
