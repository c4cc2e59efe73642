// Package ledger maintains the reward balance of each account.
//
// The balance is a lazily evaluated accumulator: it is only materialized at
// checkpoints, where the time elapsed since the previous checkpoint is charged at
// the rate of the assets staked at that instant.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
)

// ComputeAccrued returns stakedCount * perAssetRate * elapsedSeconds.
// Negative inputs accrue nothing.
func ComputeAccrued(perAssetRate decimal.Decimal, stakedCount int64, elapsedSeconds decimal.Decimal) decimal.Decimal {
	if stakedCount <= 0 || !elapsedSeconds.IsPositive() || !perAssetRate.IsPositive() {
		return decimal.Zero
	}
	return perAssetRate.Mul(decimal.NewFromInt(stakedCount)).Mul(elapsedSeconds)
}

// Seconds converts a duration to fractional seconds with microsecond precision.
func Seconds(d time.Duration) decimal.Decimal {
	return decimal.New(d.Microseconds(), -6)
}

type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Ledger is the Reward Accrual Ledger.
type Ledger struct {
	logger *logger.Logger
	repo   models.Repository
	rate   decimal.Decimal
	now    func() time.Time
}

func NewLedger(repo models.Repository, perAssetRate decimal.Decimal, logger *logger.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		logger: logger,
		repo:   repo,
		rate:   perAssetRate,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Rate returns the per-asset reward rate per second.
func (l *Ledger) Rate() decimal.Decimal {
	return l.rate
}

// Now returns the ledger's current time.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// WithRepository returns a ledger that writes through repo, e.g. a transaction.
func (l *Ledger) WithRepository(repo models.Repository) *Ledger {
	clone := *l
	clone.repo = repo
	return &clone
}

// Checkpoint charges the time since the account's last checkpoint at the rate of its
// currently staked assets and moves the basis timestamp to now. With no staked
// assets nothing is written. The account is created on first observation.
func (l *Ledger) Checkpoint(ctx context.Context, owner string) (*models.Account, error) {
	return l.checkpoint(ctx, owner, false)
}

// Rebase is a checkpoint that always moves the basis timestamp, even with nothing
// staked. It must run before the staked set of the account changes so the old rate
// applies up to now and the new rate from now on.
func (l *Ledger) Rebase(ctx context.Context, owner string) (*models.Account, error) {
	return l.checkpoint(ctx, owner, true)
}

func (l *Ledger) checkpoint(ctx context.Context, owner string, always bool) (*models.Account, error) {
	now := l.now()
	account, created, err := l.repo.GetOrCreateAccount(ctx, owner, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if created {
		return account, nil
	}

	stakedCount, err := l.repo.CountStakedAssets(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to count staked assets: %w", err)
	}
	if stakedCount == 0 && !always {
		l.logger.Debugw("Checkpoint skipped, nothing staked", "account", owner)
		return account, nil
	}

	elapsed := now.Sub(account.LastLogin)
	accrued := ComputeAccrued(l.rate, stakedCount, Seconds(elapsed))
	balance := account.TokenBalance.Add(accrued)
	basis := now
	if elapsed < 0 {
		// Clock went backwards; keep the later basis so no interval is charged twice
		basis = account.LastLogin
	}

	if err := l.repo.UpdateAccountLedger(ctx, owner, balance, basis); err != nil {
		return nil, fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	l.logger.Debugw("Checkpoint",
		"account", owner,
		"staked", stakedCount,
		"elapsed", elapsed,
		"accrued", accrued.String(),
		"balance", balance.String())

	account.TokenBalance = balance
	account.LastLogin = basis
	return account, nil
}

// Balance checkpoints the account and returns the resulting view.
func (l *Ledger) Balance(ctx context.Context, owner string) (*models.BalanceView, error) {
	account, err := l.Checkpoint(ctx, owner)
	if err != nil {
		return nil, err
	}
	stakedCount, err := l.repo.CountStakedAssets(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to count staked assets: %w", err)
	}
	return &models.BalanceView{
		Balance:     account.TokenBalance,
		StakedCount: stakedCount,
		RatePerSec:  l.rate,
		AsOf:        l.now(),
	}, nil
}

// Reset zeroes the balance after the claim transfer identified by claimSignature
// was confirmed. Replaying the same signature is a no-op.
func (l *Ledger) Reset(ctx context.Context, owner, claimSignature string) (bool, error) {
	if claimSignature == "" {
		return false, models.NewError(models.KindInvalidRequest, "claim signature is required", nil)
	}
	applied, err := l.repo.ResetAccountBalance(ctx, owner, claimSignature)
	if err != nil {
		return false, fmt.Errorf("failed to reset balance: %w", err)
	}
	if applied {
		l.logger.Infow("Balance reset after claim", "account", owner, "signature", claimSignature)
	}
	return applied, nil
}
