package oracle

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Static serves fixed per-asset USD prices. It backs deployments that pin
// prices during bring-up and the simulator, where prices are scenario inputs.
type Static struct {
	mu     sync.RWMutex
	prices map[common.Address]*big.Int
}

// NewStatic builds an empty static oracle.
func NewStatic() *Static {
	return &Static{prices: make(map[common.Address]*big.Int)}
}

// SetPrice pins the 1e18-scaled USD price for an asset. A nil price removes
// the feed, making subsequent reads stale.
func (s *Static) SetPrice(asset common.Address, price *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if price == nil {
		delete(s.prices, asset)
		return
	}
	s.prices[asset] = new(big.Int).Set(price)
}

// PriceUSD implements the PriceOracle interface.
func (s *Static) PriceUSD(asset common.Address) (*big.Int, error) {
	s.mu.RLock()
	price, ok := s.prices[asset]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrStalePrice
	}
	return Validate(price, nil)
}

// Aggregator consults a list of oracles in priority order until one returns a
// usable price. All registered feeds failing yields ErrStalePrice.
type Aggregator struct {
	mu      sync.RWMutex
	oracles []PriceOracle
}

// NewAggregator builds an aggregator over the supplied feeds. Order encodes
// priority.
func NewAggregator(feeds ...PriceOracle) *Aggregator {
	agg := &Aggregator{}
	for _, feed := range feeds {
		if feed != nil {
			agg.oracles = append(agg.oracles, feed)
		}
	}
	return agg
}

// Register appends a feed with the lowest priority.
func (a *Aggregator) Register(feed PriceOracle) {
	if feed == nil {
		return
	}
	a.mu.Lock()
	a.oracles = append(a.oracles, feed)
	a.mu.Unlock()
}

// PriceUSD implements the PriceOracle interface.
func (a *Aggregator) PriceUSD(asset common.Address) (*big.Int, error) {
	a.mu.RLock()
	feeds := append([]PriceOracle(nil), a.oracles...)
	a.mu.RUnlock()
	for _, feed := range feeds {
		price, err := Validate(feed.PriceUSD(asset))
		if err == nil {
			return price, nil
		}
	}
	return nil, ErrStalePrice
}
