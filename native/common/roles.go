package common

import (
	"errors"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// RoleStableControl is the administrative capability gating every privileged
// entry point on the ledger and rebalancer engines.
const RoleStableControl = "STABLECONTROL"

// ErrUnauthorized is returned when a caller lacks the required capability.
var ErrUnauthorized = errors.New("unauthorized: capability missing")

// RoleView exposes read access to the capability table. Implementations read
// from committed state; errors surface as a denied check at call sites via
// RequireRole.
type RoleView interface {
	HasRole(role string, addr ethcommon.Address) (bool, error)
}

// RequireRole checks the capability table and collapses both a missing grant
// and a read failure into ErrUnauthorized, so privileged entry points fail
// closed.
func RequireRole(view RoleView, role string, addr ethcommon.Address) error {
	if view == nil {
		return ErrUnauthorized
	}
	ok, err := view.HasRole(role, addr)
	if err != nil || !ok {
		return ErrUnauthorized
	}
	return nil
}
