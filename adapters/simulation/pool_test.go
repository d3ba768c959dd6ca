package simulation

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ausd/native/oracle"
	"ausd/native/uniswap"
)

var (
	token0 = common.HexToAddress("0x01")
	token1 = common.HexToAddress("0x03")
)

func newPegPool(liquidity uint64) *Pool {
	return NewPool(token0, token1, 500, uniswap.PegSqrtPriceX96(true), uint256.NewInt(liquidity))
}

// sqrtStep is the price granularity of a one-wei token0 input at the given
// liquidity, sqrtP^2 / (L*Q96) plus one for the pool's own truncation. A
// calculator-sized trade cannot land closer to its target than this.
func sqrtStep(sqrt, liquidity *uint256.Int) *uint256.Int {
	lq := new(uint256.Int).Mul(liquidity, uniswap.Q96)
	step, _ := new(uint256.Int).MulDivOverflow(sqrt, sqrt, lq)
	return step.AddUint64(step, 1)
}

// withinStep reports whether a and b differ by at most the one-wei price
// granularity at the given liquidity.
func withinStep(a, b, liquidity *uint256.Int) bool {
	diff := new(uint256.Int)
	if a.Lt(b) {
		diff.Sub(b, a)
	} else {
		diff.Sub(a, b)
	}
	step := sqrtStep(b, liquidity)
	return !step.Lt(diff)
}

func TestSwapLandsOnCalculatorTarget(t *testing.T) {
	calc := uniswap.NewCalculator()
	liquidity := uint256.NewInt(100_000_000_000_000_000)
	target := uniswap.PegSqrtPriceX96(true)

	// Price above peg: the sized token0 sale walks the pool back down.
	pool := newPegPool(100_000_000_000_000_000)
	above := new(uint256.Int).Mul(target, uint256.NewInt(102))
	above.Div(above, uint256.NewInt(100))
	pool.SetSqrtPriceX96(above)

	amount, zeroForOne, err := calc.AmountToTarget(above, target, liquidity)
	if err != nil {
		t.Fatalf("size trade: %v", err)
	}
	if !zeroForOne {
		t.Fatal("expected token0 sale to lower the price")
	}
	if _, err := pool.Swap(zeroForOne, amount); err != nil {
		t.Fatalf("swap: %v", err)
	}
	landed, _ := pool.SqrtPriceX96()
	if !withinStep(landed, target, liquidity) {
		t.Fatalf("pool landed at %s, target %s", landed, target)
	}

	// Price below peg: the sized token1 sale walks it back up.
	below := new(uint256.Int).Mul(target, uint256.NewInt(98))
	below.Div(below, uint256.NewInt(100))
	pool.SetSqrtPriceX96(below)

	amount, zeroForOne, err = calc.AmountToTarget(below, target, liquidity)
	if err != nil {
		t.Fatalf("size trade: %v", err)
	}
	if zeroForOne {
		t.Fatal("expected token1 sale to raise the price")
	}
	if _, err := pool.Swap(zeroForOne, amount); err != nil {
		t.Fatalf("swap: %v", err)
	}
	landed, _ = pool.SqrtPriceX96()
	if !withinStep(landed, target, liquidity) {
		t.Fatalf("pool landed at %s, target %s", landed, target)
	}
}

func TestSwapRejectsBadAmount(t *testing.T) {
	pool := newPegPool(1_000_000)
	if _, err := pool.Swap(true, big.NewInt(0)); err == nil {
		t.Fatal("expected zero amount to be rejected")
	}
	if _, err := pool.Swap(true, nil); err == nil {
		t.Fatal("expected nil amount to be rejected")
	}
}

func TestRouterPoolHop(t *testing.T) {
	prices := oracle.NewStatic()
	pool := newPegPool(100_000_000_000_000_000)
	router := NewRouter(pool, prices)

	path, err := uniswap.EncodePath([]common.Address{token0, token1}, []uint32{500})
	if err != nil {
		t.Fatalf("encode path: %v", err)
	}
	// At peg, selling 100 stable units yields ~100 units of the 18-decimal
	// counterpart, shifted by the 1e12 raw-price gap.
	out, err := router.ExactInput(path, big.NewInt(100_000_000))
	if err != nil {
		t.Fatalf("exact input: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(100), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	// Constant-liquidity slippage keeps the output strictly below parity.
	if out.Sign() <= 0 || out.Cmp(want) > 0 {
		t.Fatalf("unexpected pool hop output %s", out)
	}
}

func TestRouterOracleHop(t *testing.T) {
	prices := oracle.NewStatic()
	weth := common.HexToAddress("0x02")
	dai := common.HexToAddress("0x03")
	prices.SetPrice(weth, new(big.Int).Mul(big.NewInt(2000), pow10(18)))
	prices.SetPrice(dai, pow10(18))

	router := NewRouter(newPegPool(1), prices)
	router.RegisterToken(weth, 18)
	router.RegisterToken(dai, 18)

	path, err := uniswap.EncodePath([]common.Address{weth, dai}, []uint32{3000})
	if err != nil {
		t.Fatalf("encode path: %v", err)
	}
	out, err := router.ExactInput(path, pow10(18))
	if err != nil {
		t.Fatalf("exact input: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(2000), pow10(18))
	if out.Cmp(want) != 0 {
		t.Fatalf("oracle hop output %s, want %s", out, want)
	}
}

type allowanceMap map[common.Address]*big.Int

func (m allowanceMap) Allowance(token, spender common.Address) (*big.Int, error) {
	if amount, ok := m[token]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func TestRouterEnforcesAllowances(t *testing.T) {
	prices := oracle.NewStatic()
	pool := newPegPool(100_000_000_000_000_000)
	router := NewRouter(pool, prices)
	routerAddr := common.HexToAddress("0x99")
	approvals := allowanceMap{}
	router.RequireApproval(approvals, routerAddr)

	path, err := uniswap.EncodePath([]common.Address{token0, token1}, []uint32{500})
	if err != nil {
		t.Fatalf("encode path: %v", err)
	}
	amount := big.NewInt(1_000_000)
	if _, err := router.ExactInput(path, amount); !errors.Is(err, errNotApproved) {
		t.Fatalf("expected unapproved spend to be refused, got %v", err)
	}

	approvals[token0] = big.NewInt(999_999)
	if _, err := router.ExactInput(path, amount); !errors.Is(err, errNotApproved) {
		t.Fatalf("expected undersized approval to be refused, got %v", err)
	}

	approvals[token0] = amount
	if _, err := router.ExactInput(path, amount); err != nil {
		t.Fatalf("approved spend refused: %v", err)
	}
}

func TestRouterFailNextIsOneShot(t *testing.T) {
	prices := oracle.NewStatic()
	pool := newPegPool(100_000_000_000_000_000)
	router := NewRouter(pool, prices)
	path, err := uniswap.EncodePath([]common.Address{token0, token1}, []uint32{500})
	if err != nil {
		t.Fatalf("encode path: %v", err)
	}

	boom := errors.New("pair offline")
	router.FailNext(boom)
	if _, err := router.ExactInput(path, big.NewInt(1_000_000)); !errors.Is(err, boom) {
		t.Fatalf("expected armed failure, got %v", err)
	}
	if _, err := router.ExactInput(path, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("failure not one-shot: %v", err)
	}
}
