package domain

import (
	"fmt"
	"strings"
)

// ActionKind is the kind of lending operation recorded in an event.
type ActionKind string

// Action kinds. Raw protocol names are mapped onto these by ParseAction.
const (
	ActionDeposit     ActionKind = "deposit"
	ActionBorrow      ActionKind = "borrow"
	ActionRepay       ActionKind = "repay"
	ActionRedeem      ActionKind = "redeem"
	ActionLiquidation ActionKind = "liquidation"
	ActionOther       ActionKind = "other"
)

// DefaultTrackedActions are the action kinds that get a value-ratio feature.
var DefaultTrackedActions = []ActionKind{
	ActionDeposit,
	ActionBorrow,
	ActionRepay,
	ActionRedeem,
	ActionLiquidation,
}

// actionAliases maps raw action names (lowercased) to kinds.
var actionAliases = map[string]ActionKind{
	"deposit":          ActionDeposit,
	"borrow":           ActionBorrow,
	"repay":            ActionRepay,
	"redeem":           ActionRedeem,
	"redeemunderlying": ActionRedeem,
	"liquidation":      ActionLiquidation,
	"liquidationcall":  ActionLiquidation,
}

// ParseAction maps a raw action string to an ActionKind.
// Unknown actions map to ActionOther; they still count towards activity totals.
func ParseAction(raw string) ActionKind {
	if kind, ok := actionAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return kind
	}
	return ActionOther
}

// ParseTrackedActions parses a comma-separated list of action kinds.
// Unlike ParseAction it rejects unknown names, since a typo would silently
// produce an always-zero feature column.
func ParseTrackedActions(list string) ([]ActionKind, error) {
	var kinds []ActionKind
	seen := make(map[ActionKind]struct{})
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind := ParseAction(part)
		if kind == ActionOther {
			return nil, fmt.Errorf("unknown tracked action %q", part)
		}
		if _, dup := seen[kind]; dup {
			continue
		}
		seen[kind] = struct{}{}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no tracked actions in %q", list)
	}
	return kinds, nil
}
