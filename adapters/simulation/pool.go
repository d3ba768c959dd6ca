package simulation

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ausd/native/uniswap"
)

var (
	errBadAmount = errors.New("simulation: amount must be positive")
	errOverflow  = errors.New("simulation: price math overflow")
)

// Pool is an in-memory constant-liquidity pool. It mimics a single active
// range of a concentrated-liquidity pair: swaps move the square-root price
// along the constant-L curve, so a trade sized by the range calculator lands
// on its target price up to truncation.
type Pool struct {
	mu        sync.Mutex
	token0    common.Address
	token1    common.Address
	fee       uint32
	sqrtPrice *uint256.Int
	liquidity *uint256.Int
}

// NewPool builds a pool at the given square-root price with fixed liquidity.
func NewPool(token0, token1 common.Address, fee uint32, sqrtPriceX96, liquidity *uint256.Int) *Pool {
	return &Pool{
		token0:    token0,
		token1:    token1,
		fee:       fee,
		sqrtPrice: new(uint256.Int).Set(sqrtPriceX96),
		liquidity: new(uint256.Int).Set(liquidity),
	}
}

// SqrtPriceX96 implements the uniswap.Pool interface.
func (p *Pool) SqrtPriceX96() (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(p.sqrtPrice), nil
}

// Liquidity implements the uniswap.Pool interface.
func (p *Pool) Liquidity() (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(p.liquidity), nil
}

// Token0 implements the uniswap.Pool interface.
func (p *Pool) Token0() common.Address { return p.token0 }

// Token1 implements the uniswap.Pool interface.
func (p *Pool) Token1() common.Address { return p.token1 }

// FeeTier implements the uniswap.Pool interface.
func (p *Pool) FeeTier() uint32 { return p.fee }

// SetSqrtPriceX96 moves the pool off its current price. Scenario hook used
// by tests and the simulator to push the pair away from the peg.
func (p *Pool) SetSqrtPriceX96(sqrtPriceX96 *uint256.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sqrtPrice.Set(sqrtPriceX96)
}

// Swap executes an exact-input swap against the active range and returns the
// output amount. zeroForOne sells token0 (price moves down), otherwise
// token1 is sold (price moves up).
func (p *Pool) Swap(zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, errBadAmount
	}
	in, overflow := uint256.FromBig(amountIn)
	if overflow {
		return nil, errOverflow
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if zeroForOne {
		// sqrtP' = L*Q96*sqrtP / (L*Q96 + in*sqrtP)
		lq, over := new(uint256.Int).MulOverflow(p.liquidity, uniswap.Q96)
		if over {
			return nil, errOverflow
		}
		inPrice, over := new(uint256.Int).MulOverflow(in, p.sqrtPrice)
		if over {
			return nil, errOverflow
		}
		den, carry := new(uint256.Int).AddOverflow(lq, inPrice)
		if carry {
			return nil, errOverflow
		}
		next, over := new(uint256.Int).MulDivOverflow(lq, p.sqrtPrice, den)
		if over {
			return nil, errOverflow
		}
		diff := new(uint256.Int).Sub(p.sqrtPrice, next)
		out, over := new(uint256.Int).MulDivOverflow(p.liquidity, diff, uniswap.Q96)
		if over {
			return nil, errOverflow
		}
		p.sqrtPrice.Set(next)
		return out.ToBig(), nil
	}

	// sqrtP' = sqrtP + in*Q96/L
	step, over := new(uint256.Int).MulDivOverflow(in, uniswap.Q96, p.liquidity)
	if over {
		return nil, errOverflow
	}
	next, carry := new(uint256.Int).AddOverflow(p.sqrtPrice, step)
	if carry {
		return nil, errOverflow
	}
	diff := new(uint256.Int).Sub(next, p.sqrtPrice)
	scaled, over := new(uint256.Int).MulDivOverflow(p.liquidity, uniswap.Q96, p.sqrtPrice)
	if over {
		return nil, errOverflow
	}
	out, over := new(uint256.Int).MulDivOverflow(scaled, diff, next)
	if over {
		return nil, errOverflow
	}
	p.sqrtPrice.Set(next)
	return out.ToBig(), nil
}
