package storage

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"ausd/native/stable"
)

var (
	collateralIndexKey = []byte("ausd/collateral/index")
	collateralPrefix   = []byte("ausd/collateral/")
	heldBalancePrefix  = []byte("ausd/collateral-balance/")
	balancePrefix      = []byte("ausd/balance/")
	allowancePrefix    = []byte("ausd/allowance/")
	rolePrefix         = []byte("ausd/role/")
	supplyKey          = []byte("ausd/supply")
	routerKey          = []byte("ausd/router")
	rebalancerKey      = []byte("ausd/rebalancer")
	baseAssetKey       = []byte("ausd/base-asset")
	flutterKey         = []byte("ausd/flutter")
)

// State persists registry entries, balances, supply, roles and rebalancer
// configuration as RLP records inside a Database. It implements the state
// interfaces of both the stable and rebalance engines. Callers are expected
// to serialize mutating operations; the execution model is one call at a
// time.
type State struct {
	db Database
}

// NewState wraps a database in the ledger state schema.
func NewState(db Database) *State {
	return &State{db: db}
}

type storedCollateral struct {
	Token    common.Address
	Oracle   string
	IsBase   bool
	IsStable bool
	Decimals uint64
	Weights  []*big.Int
	PathIn   []byte
	PathOut  []byte
	FeeTier  uint64
}

func collateralKey(token common.Address) []byte {
	return append(append([]byte(nil), collateralPrefix...), token.Bytes()...)
}

func heldBalanceKey(token common.Address) []byte {
	return append(append([]byte(nil), heldBalancePrefix...), token.Bytes()...)
}

func balanceKey(addr common.Address) []byte {
	return append(append([]byte(nil), balancePrefix...), addr.Bytes()...)
}

func allowanceKey(token, spender common.Address) []byte {
	key := append(append([]byte(nil), allowancePrefix...), token.Bytes()...)
	key = append(key, '/')
	return append(key, spender.Bytes()...)
}

func roleKey(role string) []byte {
	digest := ethcrypto.Keccak256([]byte(role))
	return append(append([]byte(nil), rolePrefix...), digest...)
}

// GetCollateral returns a registry entry, or nil when the asset is unknown.
func (s *State) GetCollateral(token common.Address) (*stable.CollateralAsset, error) {
	data, err := s.db.Get(collateralKey(token))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record storedCollateral
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return nil, err
	}
	return record.toAsset(), nil
}

// PutCollateral stores a registry entry and appends it to the insertion
// order index on first write.
func (s *State) PutCollateral(asset *stable.CollateralAsset) error {
	if asset == nil {
		return errors.New("storage: nil collateral")
	}
	index, err := s.collateralIndex()
	if err != nil {
		return err
	}
	known := false
	for _, entry := range index {
		if bytes.Equal(entry, asset.Token.Bytes()) {
			known = true
			break
		}
	}
	record := storedCollateral{
		Token:    asset.Token,
		Oracle:   asset.Oracle,
		IsBase:   asset.IsBase,
		IsStable: asset.IsStable,
		Decimals: uint64(asset.Decimals),
		Weights:  make([]*big.Int, 0, stable.BandCount),
		PathIn:   append([]byte(nil), asset.PathIn...),
		PathOut:  append([]byte(nil), asset.PathOut...),
		FeeTier:  uint64(asset.FeeTier),
	}
	for _, weight := range asset.Weights {
		if weight == nil {
			weight = big.NewInt(0)
		}
		record.Weights = append(record.Weights, new(big.Int).Set(weight))
	}
	encoded, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return err
	}
	if err := s.db.Put(collateralKey(asset.Token), encoded); err != nil {
		return err
	}
	if known {
		return nil
	}
	index = append(index, asset.Token.Bytes())
	return s.putIndex(index)
}

// ListCollateral returns all registry entries in registration order.
func (s *State) ListCollateral() ([]*stable.CollateralAsset, error) {
	index, err := s.collateralIndex()
	if err != nil {
		return nil, err
	}
	out := make([]*stable.CollateralAsset, 0, len(index))
	for _, entry := range index {
		asset, err := s.GetCollateral(common.BytesToAddress(entry))
		if err != nil {
			return nil, err
		}
		if asset != nil {
			out = append(out, asset)
		}
	}
	return out, nil
}

// CollateralBalance returns the held balance of a collateral asset.
func (s *State) CollateralBalance(token common.Address) (*big.Int, error) {
	return s.getBig(heldBalanceKey(token))
}

// SetCollateralBalance stores the held balance of a collateral asset.
func (s *State) SetCollateralBalance(token common.Address, balance *big.Int) error {
	return s.putBig(heldBalanceKey(token), balance)
}

// Balance returns a holder's stable-unit balance.
func (s *State) Balance(addr common.Address) (*big.Int, error) {
	return s.getBig(balanceKey(addr))
}

// SetBalance stores a holder's stable-unit balance.
func (s *State) SetBalance(addr common.Address, balance *big.Int) error {
	return s.putBig(balanceKey(addr), balance)
}

// TotalSupply returns the outstanding supply.
func (s *State) TotalSupply() (*big.Int, error) {
	return s.getBig(supplyKey)
}

// SetTotalSupply stores the outstanding supply.
func (s *State) SetTotalSupply(supply *big.Int) error {
	return s.putBig(supplyKey, supply)
}

// Allowance returns the approved amount for a token/spender pair.
func (s *State) Allowance(token, spender common.Address) (*big.Int, error) {
	return s.getBig(allowanceKey(token, spender))
}

// SetAllowance stores the approved amount for a token/spender pair.
func (s *State) SetAllowance(token, spender common.Address, amount *big.Int) error {
	return s.putBig(allowanceKey(token, spender), amount)
}

// Router returns the recorded router reference.
func (s *State) Router() (common.Address, error) {
	return s.getAddress(routerKey)
}

// SetRouter stores the router reference.
func (s *State) SetRouter(addr common.Address) error {
	return s.db.Put(routerKey, addr.Bytes())
}

// Rebalancer returns the registered rebalancer identity.
func (s *State) Rebalancer() (common.Address, error) {
	return s.getAddress(rebalancerKey)
}

// SetRebalancer stores the rebalancer identity.
func (s *State) SetRebalancer(addr common.Address) error {
	return s.db.Put(rebalancerKey, addr.Bytes())
}

// BaseAsset returns the configured base collateral.
func (s *State) BaseAsset() (common.Address, error) {
	return s.getAddress(baseAssetKey)
}

// SetBaseAsset stores the base collateral reference.
func (s *State) SetBaseAsset(addr common.Address) error {
	return s.db.Put(baseAssetKey, addr.Bytes())
}

// FlutterRatios returns the stored threshold vector; ok is false when the
// thresholds were never configured.
func (s *State) FlutterRatios() ([stable.BandCount]*big.Int, bool, error) {
	var ratios [stable.BandCount]*big.Int
	data, err := s.db.Get(flutterKey)
	if errors.Is(err, ErrNotFound) {
		return ratios, false, nil
	}
	if err != nil {
		return ratios, false, err
	}
	var stored []*big.Int
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return ratios, false, err
	}
	if len(stored) != stable.BandCount {
		return ratios, false, errors.New("storage: malformed flutter record")
	}
	copy(ratios[:], stored)
	return ratios, true, nil
}

// SetFlutterRatios stores the threshold vector.
func (s *State) SetFlutterRatios(ratios [stable.BandCount]*big.Int) error {
	stored := make([]*big.Int, 0, stable.BandCount)
	for _, ratio := range ratios {
		if ratio == nil {
			ratio = big.NewInt(0)
		}
		stored = append(stored, new(big.Int).Set(ratio))
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return s.db.Put(flutterKey, encoded)
}

// HasRole reports whether the address is a member of the role.
func (s *State) HasRole(role string, addr common.Address) (bool, error) {
	members, err := s.RoleMembers(role)
	if err != nil {
		return false, err
	}
	for _, member := range members {
		if member == addr {
			return true, nil
		}
	}
	return false, nil
}

// GrantRole adds the address to the role's member list.
func (s *State) GrantRole(role string, addr common.Address) error {
	members, err := s.RoleMembers(role)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member == addr {
			return nil
		}
	}
	members = append(members, addr)
	return s.putRoleMembers(role, members)
}

// RevokeRole removes the address from the role's member list.
func (s *State) RevokeRole(role string, addr common.Address) error {
	members, err := s.RoleMembers(role)
	if err != nil {
		return err
	}
	filtered := members[:0]
	for _, member := range members {
		if member != addr {
			filtered = append(filtered, member)
		}
	}
	return s.putRoleMembers(role, filtered)
}

// RoleMembers lists the addresses granted a role.
func (s *State) RoleMembers(role string) ([]common.Address, error) {
	data, err := s.db.Get(roleKey(role))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw [][]byte
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, err
	}
	members := make([]common.Address, 0, len(raw))
	for _, entry := range raw {
		members = append(members, common.BytesToAddress(entry))
	}
	return members, nil
}

func (s *State) putRoleMembers(role string, members []common.Address) error {
	raw := make([][]byte, 0, len(members))
	for _, member := range members {
		raw = append(raw, member.Bytes())
	}
	encoded, err := rlp.EncodeToBytes(raw)
	if err != nil {
		return err
	}
	return s.db.Put(roleKey(role), encoded)
}

func (s *State) collateralIndex() ([][]byte, error) {
	data, err := s.db.Get(collateralIndexKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var index [][]byte
	if err := rlp.DecodeBytes(data, &index); err != nil {
		return nil, err
	}
	return index, nil
}

func (s *State) putIndex(index [][]byte) error {
	encoded, err := rlp.EncodeToBytes(index)
	if err != nil {
		return err
	}
	return s.db.Put(collateralIndexKey, encoded)
}

func (s *State) getBig(key []byte) (*big.Int, error) {
	data, err := s.db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

func (s *State) putBig(key []byte, value *big.Int) error {
	if value == nil || value.Sign() < 0 {
		return errors.New("storage: negative or nil amount")
	}
	return s.db.Put(key, value.Bytes())
}

func (s *State) getAddress(key []byte) (common.Address, error) {
	data, err := s.db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(data), nil
}

func (r *storedCollateral) toAsset() *stable.CollateralAsset {
	asset := &stable.CollateralAsset{
		Token:    r.Token,
		Oracle:   r.Oracle,
		IsBase:   r.IsBase,
		IsStable: r.IsStable,
		Decimals: uint8(r.Decimals),
		PathIn:   append([]byte(nil), r.PathIn...),
		PathOut:  append([]byte(nil), r.PathOut...),
		FeeTier:  uint32(r.FeeTier),
	}
	for i := 0; i < stable.BandCount && i < len(r.Weights); i++ {
		weight := r.Weights[i]
		if weight == nil {
			weight = big.NewInt(0)
		}
		asset.Weights[i] = new(big.Int).Set(weight)
	}
	return asset
}
