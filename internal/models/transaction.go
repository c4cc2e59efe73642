package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Action is a user action that is carried out by an on-chain transaction.
type Action string

const (
	ActionStake   Action = "stake"
	ActionUnstake Action = "unstake"
	ActionClaim   Action = "claim"
)

// ParseAction parses the wire form of an action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionStake, ActionUnstake, ActionClaim:
		return Action(s), nil
	}
	return "", NewError(KindInvalidRequest, fmt.Sprintf("unknown action %q", s), nil)
}

// TargetStaked is the staked flag an asset ends up with after the action.
func (a Action) TargetStaked() bool {
	return a == ActionStake
}

// PendingTransaction is a built, authority co-signed, base64 serialized transaction
// waiting for the owner's signature. It is consumed exactly once.
type PendingTransaction struct {
	Action               Action          `json:"action"`
	Transaction          string          `json:"transaction"`
	Blockhash            string          `json:"blockhash"`
	LastValidBlockHeight uint64          `json:"last_valid_block_height"`
	Mints                []string        `json:"mints,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
}

// StateTransition is the record store change that follows a confirmed transaction.
type StateTransition struct {
	Owner     string   `json:"owner"`
	Action    Action   `json:"action"`
	Mints     []string `json:"mints,omitempty"`
	Signature string   `json:"signature"`
}

// TransitionResult reports what PersistStateTransition changed.
type TransitionResult struct {
	// Changed is the number of assets whose flag flipped, or 1 when a claim reset was applied.
	Changed int64           `json:"changed"`
	Balance decimal.Decimal `json:"balance"`
}
