// Package ownership reconciles the persisted asset records of an account with the
// assets its wallet holds on the ledger network.
package ownership

import (
	"context"
	"fmt"
	"time"

	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
)

// Result counts the record changes made by one sync pass.
type Result struct {
	Created    int `json:"created"`
	Reassigned int `json:"reassigned"`
	Removed    int `json:"removed"`
	// Stale counts writes skipped because a newer pass already touched the record.
	Stale int `json:"stale"`
}

type Option func(*Synchronizer)

// WithClock overrides the time source used to stamp sync passes.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

type Synchronizer struct {
	logger *logger.Logger
	repo   models.Repository
	now    func() time.Time
}

func NewSynchronizer(repo models.Repository, logger *logger.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		logger: logger,
		repo:   repo,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync makes the persisted assets of owner equal to onChain, stamping the pass with
// the current time.
func (s *Synchronizer) Sync(ctx context.Context, owner string, onChain []*models.OnChainAsset) (*Result, error) {
	return s.SyncObserved(ctx, owner, onChain, s.now())
}

// SyncObserved is Sync for an observation taken at observedAt. Passes are totally
// ordered by observedAt: a record last written by a later pass is left alone, so
// when two passes disagree about a mint the later observation wins.
func (s *Synchronizer) SyncObserved(ctx context.Context, owner string, onChain []*models.OnChainAsset, observedAt time.Time) (*Result, error) {
	if owner == "" {
		return nil, models.NewError(models.KindInvalidRequest, "owner is required", nil)
	}

	observed := make(map[string]*models.OnChainAsset, len(onChain))
	mints := make([]string, 0, len(onChain))
	for _, asset := range onChain {
		if asset == nil || asset.Mint == "" {
			continue
		}
		if _, ok := observed[asset.Mint]; ok {
			continue
		}
		observed[asset.Mint] = asset
		mints = append(mints, asset.Mint)
	}

	result := &Result{}
	err := s.repo.Transaction(ctx, func(repo models.Repository) error {
		persisted, err := repo.GetAssetsByOwner(ctx, owner)
		if err != nil {
			return err
		}
		known, err := repo.GetAssetsByMints(ctx, mints)
		if err != nil {
			return err
		}
		byMint := make(map[string]*models.Asset, len(known))
		for _, asset := range known {
			byMint[asset.Mint] = asset
		}

		for _, mint := range mints {
			current, ok := byMint[mint]
			if !ok {
				src := observed[mint]
				if err := repo.CreateAsset(ctx, &models.Asset{
					Mint:           mint,
					Name:           src.Name,
					Symbol:         src.Symbol,
					URI:            src.URI,
					Image:          src.Image,
					OwnerPublicKey: owner,
					IsStaked:       false,
					OwnerSyncedAt:  observedAt,
				}); err != nil {
					return err
				}
				result.Created++
				continue
			}
			if current.OwnerPublicKey == owner {
				// Confirmed by this pass; older passes may no longer move it
				if _, err := repo.UpdateAssetOwner(ctx, mint, owner, observedAt); err != nil {
					return err
				}
				continue
			}
			// Staked flag travels with the asset
			updated, err := repo.UpdateAssetOwner(ctx, mint, owner, observedAt)
			if err != nil {
				return err
			}
			if !updated {
				result.Stale++
				s.logger.Warnw("Skipped stale reassignment", "mint", mint, "owner", owner, "observed_at", observedAt)
				continue
			}
			s.logger.Infow("Asset reassigned", "mint", mint, "from", current.OwnerPublicKey, "to", owner)
			result.Reassigned++
		}

		for _, asset := range persisted {
			if _, ok := observed[asset.Mint]; ok {
				continue
			}
			deleted, err := repo.DeleteAsset(ctx, asset.Mint, observedAt)
			if err != nil {
				return err
			}
			if !deleted {
				result.Stale++
				continue
			}
			s.logger.Infow("Asset removed", "mint", asset.Mint, "owner", owner, "was_staked", asset.IsStaked)
			result.Removed++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sync assets of %s: %w", owner, err)
	}

	s.logger.Debugw("Assets synced",
		"owner", owner,
		"observed", len(mints),
		"created", result.Created,
		"reassigned", result.Reassigned,
		"removed", result.Removed,
		"stale", result.Stale)
	return result, nil
}
