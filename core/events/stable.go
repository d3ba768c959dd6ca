package events

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeCollateralAdded is emitted when a new collateral asset is
	// registered with the ledger.
	TypeCollateralAdded = "stable.collateral.added"
	// TypeStableMinted is emitted whenever collateral is deposited and new
	// stable units are minted to a recipient.
	TypeStableMinted = "stable.minted"
	// TypeStableTransferred is emitted on balance movements between holders.
	TypeStableTransferred = "stable.transferred"
	// TypeSupplyExpanded is emitted when the rebalancer mints stable units
	// ahead of a corrective sale.
	TypeSupplyExpanded = "stable.supply.expanded"
	// TypeSupplyContracted is emitted when the rebalancer burns stable units
	// bought back from the pool.
	TypeSupplyContracted = "stable.supply.contracted"
)

// CollateralAdded records a registry append.
type CollateralAdded struct {
	Token    common.Address
	Oracle   string
	IsBase   bool
	IsStable bool
	FeeTier  uint32
	PathIn   []byte
	PathOut  []byte
}

func (CollateralAdded) EventType() string { return TypeCollateralAdded }

func (e CollateralAdded) Attributes() map[string]string {
	return map[string]string{
		"token":    e.Token.Hex(),
		"oracle":   e.Oracle,
		"isBase":   boolString(e.IsBase),
		"isStable": boolString(e.IsStable),
		"feeTier":  uintString(uint64(e.FeeTier)),
		"pathIn":   hexBytes(e.PathIn),
		"pathOut":  hexBytes(e.PathOut),
	}
}

// StableMinted records a collateral deposit and the resulting mint.
type StableMinted struct {
	Token      common.Address
	Recipient  common.Address
	Collateral *big.Int
	Minted     *big.Int
}

func (StableMinted) EventType() string { return TypeStableMinted }

func (e StableMinted) Attributes() map[string]string {
	return map[string]string{
		"token":      e.Token.Hex(),
		"recipient":  e.Recipient.Hex(),
		"collateral": bigString(e.Collateral),
		"minted":     bigString(e.Minted),
	}
}

// StableTransferred records a balance movement.
type StableTransferred struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
}

func (StableTransferred) EventType() string { return TypeStableTransferred }

func (e StableTransferred) Attributes() map[string]string {
	return map[string]string{
		"from":   e.From.Hex(),
		"to":     e.To.Hex(),
		"amount": bigString(e.Amount),
	}
}

// SupplyExpanded records a rebalancer mint.
type SupplyExpanded struct {
	Amount *big.Int
}

func (SupplyExpanded) EventType() string { return TypeSupplyExpanded }

func (e SupplyExpanded) Attributes() map[string]string {
	return map[string]string{"amount": bigString(e.Amount)}
}

// SupplyContracted records a rebalancer burn.
type SupplyContracted struct {
	Amount *big.Int
}

func (SupplyContracted) EventType() string { return TypeSupplyContracted }

func (e SupplyContracted) Attributes() map[string]string {
	return map[string]string{"amount": bigString(e.Amount)}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func uintString(v uint64) string {
	return new(big.Int).SetUint64(v).String()
}

func hexBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(b)
}
