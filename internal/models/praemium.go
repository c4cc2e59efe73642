package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio is an account with its assets split by stake status.
type Portfolio struct {
	Account  *Account `json:"account"`
	Staked   []*Asset `json:"staked"`
	Unstaked []*Asset `json:"unstaked"`
}

// BalanceView is a checkpointed balance plus what a client needs to project it.
type BalanceView struct {
	Balance     decimal.Decimal `json:"balance"`
	StakedCount int64           `json:"staked_count"`
	RatePerSec  decimal.Decimal `json:"rate_per_asset_per_second"`
	AsOf        time.Time       `json:"as_of"`
}

// PraemiumI is the server-side staking application.
type PraemiumI interface {
	// Start starts background jobs
	Start() error
	Stop() error

	// Login checkpoints the account's rewards and syncs its on-chain assets.
	Login(ctx context.Context, owner string) (*Portfolio, error)
	GetPortfolio(ctx context.Context, owner string) (*Portfolio, error)
	GetBalance(ctx context.Context, owner string) (*BalanceView, error)

	BuildTransaction(ctx context.Context, action Action, owner string, mints []string) (*PendingTransaction, error)
	PersistStateTransition(ctx context.Context, transition StateTransition) (*TransitionResult, error)
}
