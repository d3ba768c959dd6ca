package uniswap

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Swap routes are encoded the way the exchange's router consumes them: a
// 20-byte token address followed by a 3-byte fee tier for every hop, ending
// with the final token address.
const (
	addrSize    = common.AddressLength
	feeSize     = 3
	hopSize     = addrSize + feeSize
	maxFee      = 1<<24 - 1
	minPathSize = hopSize + addrSize
)

var (
	// ErrInvalidPath rejects a malformed route encoding.
	ErrInvalidPath = errors.New("uniswap: invalid swap path")
)

// Hop is one decoded leg of a multi-hop route.
type Hop struct {
	TokenIn  common.Address
	TokenOut common.Address
	Fee      uint32
}

// EncodePath packs a token sequence and per-hop fee tiers into router wire
// form. A route of n hops takes n+1 tokens and n fees.
func EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) < 2 || len(fees) != len(tokens)-1 {
		return nil, ErrInvalidPath
	}
	path := make([]byte, 0, len(tokens)*addrSize+len(fees)*feeSize)
	for i, fee := range fees {
		if fee > maxFee {
			return nil, fmt.Errorf("%w: fee tier %d exceeds 24 bits", ErrInvalidPath, fee)
		}
		path = append(path, tokens[i].Bytes()...)
		path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
	}
	return append(path, tokens[len(tokens)-1].Bytes()...), nil
}

// DecodePath unpacks a router route into its hops. The encoding is validated
// strictly: anything that is not a whole number of hops is rejected.
func DecodePath(path []byte) ([]Hop, error) {
	if len(path) < minPathSize || (len(path)-addrSize)%hopSize != 0 {
		return nil, ErrInvalidPath
	}
	hops := make([]Hop, 0, (len(path)-addrSize)/hopSize)
	for offset := 0; offset+hopSize+addrSize <= len(path); offset += hopSize {
		var hop Hop
		hop.TokenIn = common.BytesToAddress(path[offset : offset+addrSize])
		fee := path[offset+addrSize : offset+hopSize]
		hop.Fee = uint32(fee[0])<<16 | uint32(fee[1])<<8 | uint32(fee[2])
		hop.TokenOut = common.BytesToAddress(path[offset+hopSize : offset+hopSize+addrSize])
		hops = append(hops, hop)
	}
	return hops, nil
}

// PathEndpoints returns the first and last token of an encoded route.
func PathEndpoints(path []byte) (common.Address, common.Address, error) {
	hops, err := DecodePath(path)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return hops[0].TokenIn, hops[len(hops)-1].TokenOut, nil
}
