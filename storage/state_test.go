package storage

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"ausd/native/stable"
)

func testAsset(token common.Address, base bool) *stable.CollateralAsset {
	asset := &stable.CollateralAsset{
		Token:    token,
		Oracle:   "test/usd",
		IsBase:   base,
		Decimals: 18,
		FeeTier:  500,
	}
	for i := range asset.Weights {
		asset.Weights[i] = big.NewInt(int64(i+1) * 1_000_000)
	}
	if !base {
		asset.PathIn = []byte{0x01, 0x02, 0x03}
		asset.PathOut = []byte{0x04, 0x05, 0x06}
	}
	return asset
}

func TestCollateralRoundTrip(t *testing.T) {
	state := NewState(NewMemDB())
	token := common.HexToAddress("0x11")

	got, err := state.GetCollateral(token)
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown collateral, got %+v", got)
	}

	want := testAsset(token, false)
	if err := state.PutCollateral(want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err = state.GetCollateral(token)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("stored collateral not found")
	}
	if got.Token != want.Token || got.Oracle != want.Oracle || got.Decimals != want.Decimals || got.FeeTier != want.FeeTier {
		t.Fatalf("record mismatch: got %+v want %+v", got, want)
	}
	for i := range want.Weights {
		if got.Weights[i].Cmp(want.Weights[i]) != 0 {
			t.Fatalf("weight %d mismatch: got %s want %s", i, got.Weights[i], want.Weights[i])
		}
	}
	if string(got.PathIn) != string(want.PathIn) || string(got.PathOut) != string(want.PathOut) {
		t.Fatalf("path mismatch")
	}
}

func TestListCollateralPreservesInsertionOrder(t *testing.T) {
	state := NewState(NewMemDB())
	tokens := []common.Address{
		common.HexToAddress("0x33"),
		common.HexToAddress("0x11"),
		common.HexToAddress("0x22"),
	}
	for _, token := range tokens {
		if err := state.PutCollateral(testAsset(token, false)); err != nil {
			t.Fatalf("put %s: %v", token, err)
		}
	}
	// Updating an existing entry must not reorder the index.
	if err := state.PutCollateral(testAsset(tokens[0], false)); err != nil {
		t.Fatalf("update: %v", err)
	}
	list, err := state.ListCollateral()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != len(tokens) {
		t.Fatalf("expected %d entries, got %d", len(tokens), len(list))
	}
	for i, token := range tokens {
		if list[i].Token != token {
			t.Fatalf("position %d: got %s want %s", i, list[i].Token, token)
		}
	}
}

func TestBalancesDefaultToZero(t *testing.T) {
	state := NewState(NewMemDB())
	addr := common.HexToAddress("0x42")

	balance, err := state.Balance(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", balance)
	}
	supply, err := state.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Sign() != 0 {
		t.Fatalf("expected zero supply, got %s", supply)
	}

	if err := state.SetBalance(addr, big.NewInt(12_345)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	balance, err = state.Balance(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(12_345)) != 0 {
		t.Fatalf("unexpected balance %s", balance)
	}

	if err := state.SetBalance(addr, big.NewInt(-1)); err == nil {
		t.Fatal("expected negative balance to be rejected")
	}
	if err := state.SetTotalSupply(nil); err == nil {
		t.Fatal("expected nil supply to be rejected")
	}
}

func TestRoleMembership(t *testing.T) {
	state := NewState(NewMemDB())
	role := "STABLECONTROL"
	a := common.HexToAddress("0xaa")
	b := common.HexToAddress("0xbb")

	ok, err := state.HasRole(role, a)
	if err != nil || ok {
		t.Fatalf("expected no membership: ok=%v err=%v", ok, err)
	}
	if err := state.GrantRole(role, a); err != nil {
		t.Fatalf("grant a: %v", err)
	}
	if err := state.GrantRole(role, b); err != nil {
		t.Fatalf("grant b: %v", err)
	}
	// Granting twice keeps the list deduplicated.
	if err := state.GrantRole(role, a); err != nil {
		t.Fatalf("re-grant a: %v", err)
	}
	members, err := state.RoleMembers(role)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 || members[0] != a || members[1] != b {
		t.Fatalf("unexpected members %v", members)
	}
	if err := state.RevokeRole(role, a); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = state.HasRole(role, a)
	if err != nil || ok {
		t.Fatalf("revoke not applied: ok=%v err=%v", ok, err)
	}
	ok, err = state.HasRole(role, b)
	if err != nil || !ok {
		t.Fatalf("unrelated member lost: ok=%v err=%v", ok, err)
	}
}

func TestFlutterRatiosRoundTrip(t *testing.T) {
	state := NewState(NewMemDB())

	_, ok, err := state.FlutterRatios()
	if err != nil {
		t.Fatalf("read unset: %v", err)
	}
	if ok {
		t.Fatal("expected unset flutter ratios")
	}

	var want [stable.BandCount]*big.Int
	for i := range want {
		want[i] = big.NewInt(int64(i+1) * 1_000)
	}
	if err := state.SetFlutterRatios(want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := state.FlutterRatios()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !ok {
		t.Fatal("expected configured flutter ratios")
	}
	for i := range want {
		if got[i].Cmp(want[i]) != 0 {
			t.Fatalf("ratio %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestAddressReferences(t *testing.T) {
	state := NewState(NewMemDB())

	rebalancer, err := state.Rebalancer()
	if err != nil {
		t.Fatalf("rebalancer: %v", err)
	}
	if rebalancer != (common.Address{}) {
		t.Fatalf("expected zero address, got %s", rebalancer)
	}

	want := common.HexToAddress("0x77")
	if err := state.SetRebalancer(want); err != nil {
		t.Fatalf("set rebalancer: %v", err)
	}
	rebalancer, err = state.Rebalancer()
	if err != nil {
		t.Fatalf("rebalancer: %v", err)
	}
	if rebalancer != want {
		t.Fatalf("got %s want %s", rebalancer, want)
	}

	if err := state.SetBaseAsset(want); err != nil {
		t.Fatalf("set base asset: %v", err)
	}
	base, err := state.BaseAsset()
	if err != nil {
		t.Fatalf("base asset: %v", err)
	}
	if base != want {
		t.Fatalf("got %s want %s", base, want)
	}
}
