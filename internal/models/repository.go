package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository is the persistent record store for accounts and assets.
type Repository interface {
	// GetOrCreateAccount returns the account, creating it with a zero balance and
	// LastLogin = now when it does not exist. created reports whether it was created.
	GetOrCreateAccount(ctx context.Context, publicKey string, now time.Time) (account *Account, created bool, err error)
	// GetAccount returns ErrNotFound when the account does not exist.
	GetAccount(ctx context.Context, publicKey string) (*Account, error)
	UpdateAccountLedger(ctx context.Context, publicKey string, balance decimal.Decimal, lastLogin time.Time) error
	// ResetAccountBalance zeroes the balance unless claimSignature was already applied.
	// applied is false when the reset had already happened for that signature.
	ResetAccountBalance(ctx context.Context, publicKey, claimSignature string) (applied bool, err error)

	GetAssetsByOwner(ctx context.Context, owner string) ([]*Asset, error)
	GetAssetsByMints(ctx context.Context, mints []string) ([]*Asset, error)
	CountStakedAssets(ctx context.Context, owner string) (int64, error)
	CreateAsset(ctx context.Context, asset *Asset) error
	// UpdateAssetOwner reassigns the owner unless a newer sync pass already wrote it.
	UpdateAssetOwner(ctx context.Context, mint, owner string, syncedAt time.Time) (bool, error)
	// DeleteAsset deletes the asset unless a newer sync pass already wrote it.
	DeleteAsset(ctx context.Context, mint string, syncedAt time.Time) (bool, error)
	// SetAssetsStaked atomically flips the staked flag of the owner's assets whose flag
	// differs from staked. It returns the number of rows changed.
	SetAssetsStaked(ctx context.Context, owner string, mints []string, staked bool, at time.Time) (int64, error)
	ListOwnersWithStakedAssets(ctx context.Context) ([]string, error)

	// Transaction runs fn against a repository bound to a single database transaction.
	Transaction(ctx context.Context, fn func(repo Repository) error) error
	Close() error
}
