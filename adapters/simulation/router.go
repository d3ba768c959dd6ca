package simulation

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"ausd/native/oracle"
	"ausd/native/uniswap"
)

var (
	errUnknownToken = errors.New("simulation: token decimals not registered")
	errNotApproved  = errors.New("simulation: router not approved to spend token")
)

// AllowanceView reports the approved spend recorded for a token and spender
// pair.
type AllowanceView interface {
	Allowance(token, spender common.Address) (*big.Int, error)
}

// Router executes encoded multi-hop routes against the simulation. Hops over
// the bound pool pair trade against the pool's curve; every other hop is
// priced off the oracle set, standing in for deep external pairs.
type Router struct {
	mu        sync.Mutex
	pool      *Pool
	prices    oracle.PriceOracle
	decimals  map[common.Address]uint8
	approvals AllowanceView
	spender   common.Address
	failNext  error
}

// NewRouter builds a router over the simulated pool and oracle prices.
func NewRouter(pool *Pool, prices oracle.PriceOracle) *Router {
	return &Router{
		pool:     pool,
		prices:   prices,
		decimals: make(map[common.Address]uint8),
	}
}

// RegisterToken records a token's native precision for oracle-priced hops.
func (r *Router) RegisterToken(token common.Address, decimals uint8) {
	r.mu.Lock()
	r.decimals[token] = decimals
	r.mu.Unlock()
}

// RequireApproval makes the router enforce recorded allowances under the
// given spender identity: a route's input token must carry an approval
// covering the amount sold or the swap is refused.
func (r *Router) RequireApproval(view AllowanceView, spender common.Address) {
	r.mu.Lock()
	r.approvals = view
	r.spender = spender
	r.mu.Unlock()
}

// FailNext arms a one-shot failure: the next ExactInput call returns err
// without touching the pool. Used to exercise swap-abort paths.
func (r *Router) FailNext(err error) {
	r.mu.Lock()
	r.failNext = err
	r.mu.Unlock()
}

// ExactInput implements the uniswap.Router interface.
func (r *Router) ExactInput(path []byte, amountIn *big.Int) (*big.Int, error) {
	r.mu.Lock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		r.mu.Unlock()
		return nil, err
	}
	approvals, spender := r.approvals, r.spender
	r.mu.Unlock()

	hops, err := uniswap.DecodePath(path)
	if err != nil {
		return nil, err
	}
	if approvals != nil {
		allowed, err := approvals.Allowance(hops[0].TokenIn, spender)
		if err != nil {
			return nil, err
		}
		if allowed == nil || allowed.Cmp(amountIn) < 0 {
			return nil, errNotApproved
		}
	}
	amount := new(big.Int).Set(amountIn)
	for _, hop := range hops {
		if r.isPoolPair(hop.TokenIn, hop.TokenOut) {
			amount, err = r.pool.Swap(hop.TokenIn == r.pool.Token0(), amount)
		} else {
			amount, err = r.convert(hop.TokenIn, hop.TokenOut, amount)
		}
		if err != nil {
			return nil, err
		}
	}
	return amount, nil
}

func (r *Router) isPoolPair(a, b common.Address) bool {
	if r.pool == nil {
		return false
	}
	t0, t1 := r.pool.Token0(), r.pool.Token1()
	return (a == t0 && b == t1) || (a == t1 && b == t0)
}

// convert prices one hop off the oracle set:
// out = in * priceIn * 10^decOut / (priceOut * 10^decIn).
func (r *Router) convert(tokenIn, tokenOut common.Address, amount *big.Int) (*big.Int, error) {
	r.mu.Lock()
	decIn, okIn := r.decimals[tokenIn]
	decOut, okOut := r.decimals[tokenOut]
	r.mu.Unlock()
	if !okIn || !okOut {
		return nil, errUnknownToken
	}
	priceIn, err := oracle.Validate(r.prices.PriceUSD(tokenIn))
	if err != nil {
		return nil, err
	}
	priceOut, err := oracle.Validate(r.prices.PriceUSD(tokenOut))
	if err != nil {
		return nil, err
	}
	num := new(big.Int).Mul(amount, priceIn)
	num.Mul(num, pow10(int(decOut)))
	den := new(big.Int).Mul(priceOut, pow10(int(decIn)))
	return num.Quo(num, den), nil
}

func pow10(exp int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
