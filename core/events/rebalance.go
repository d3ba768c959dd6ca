package events

import (
	"math/big"
	"strconv"
)

const (
	// TypeRebalanceExecuted is emitted after a corrective trade commits.
	TypeRebalanceExecuted = "rebalance.executed"
	// TypeFlutterRatiosUpdated is emitted when the global band thresholds
	// are replaced.
	TypeFlutterRatiosUpdated = "rebalance.flutter.updated"
)

// RebalanceExecuted records a completed corrective trade. Amount is
// denominated in the token that was sold into the pool.
type RebalanceExecuted struct {
	Regime    string
	Band      int
	Amount    *big.Int
	Valuation *big.Int
}

func (RebalanceExecuted) EventType() string { return TypeRebalanceExecuted }

func (e RebalanceExecuted) Attributes() map[string]string {
	return map[string]string{
		"regime":    e.Regime,
		"band":      strconv.Itoa(e.Band),
		"amount":    bigString(e.Amount),
		"valuation": bigString(e.Valuation),
	}
}

// FlutterRatiosUpdated records the replacement threshold vector.
type FlutterRatiosUpdated struct {
	Ratios [4]*big.Int
}

func (FlutterRatiosUpdated) EventType() string { return TypeFlutterRatiosUpdated }

func (e FlutterRatiosUpdated) Attributes() map[string]string {
	attrs := make(map[string]string, 4)
	keys := [4]string{"band0", "band1", "band2", "band3"}
	for i, ratio := range e.Ratios {
		attrs[keys[i]] = bigString(ratio)
	}
	return attrs
}
