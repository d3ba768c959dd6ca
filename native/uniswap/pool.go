package uniswap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Pool exposes the concentrated-liquidity pool state the rebalancer needs:
// the current square-root price and the liquidity active around it. Token0
// and Token1 report the pool's canonical token ordering, which decides on
// which side of the price the stable unit sits.
type Pool interface {
	SqrtPriceX96() (*uint256.Int, error)
	Liquidity() (*uint256.Int, error)
	Token0() common.Address
	Token1() common.Address
	FeeTier() uint32
}

// Router executes an exact-input swap along an encoded multi-hop path and
// returns the output amount of the final token. Amounts are raw token units.
type Router interface {
	ExactInput(path []byte, amountIn *big.Int) (*big.Int, error)
}
