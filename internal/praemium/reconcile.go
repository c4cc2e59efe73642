package praemium

import (
	"context"
	"fmt"

	"github.com/core-coin/praemium/internal/ownership"
)

// Reconcile re-syncs every account holding staked assets. Each account is
// checkpointed first, then its assets are synced against the wallet, then the
// staked flags are compared with the frozen state of its token accounts.
// Drift is reported, not repaired.
func (p *Praemium) Reconcile(ctx context.Context) error {
	owners, err := p.repo.ListOwnersWithStakedAssets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list owners: %w", err)
	}
	p.logger.Infow("Reconciliation started", "accounts", len(owners))

	failed := 0
	drift := 0
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := p.reconcileAccount(ctx, owner)
		if err != nil {
			failed++
			p.logger.Errorw("Failed to reconcile account", "account", owner, "error", err)
			continue
		}
		drift += n
	}
	if p.recorder != nil {
		p.recorder.ObserveDrift(drift)
	}
	p.logger.Infow("Reconciliation finished", "accounts", len(owners), "failed", failed, "drift", drift)
	if failed > 0 {
		return fmt.Errorf("failed to reconcile %d of %d accounts", failed, len(owners))
	}
	return nil
}

func (p *Praemium) reconcileAccount(ctx context.Context, owner string) (int, error) {
	if _, err := p.syncHoldings(ctx, owner); err != nil {
		return 0, err
	}
	return p.checkDrift(ctx, owner)
}

// syncHoldings checkpoints owner and brings the record store in line with the
// assets the wallet holds now. Previous holders of incoming staked assets are
// rebased first.
func (p *Praemium) syncHoldings(ctx context.Context, owner string) (*ownership.Result, error) {
	observedAt := p.now()
	onChain, err := p.metadata.FetchOwnedAssets(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assets of %s: %w", owner, err)
	}
	if _, err := p.ledger.Checkpoint(ctx, owner); err != nil {
		return nil, err
	}
	if err := p.rebaseIncoming(ctx, owner, onChain); err != nil {
		return nil, err
	}
	result, err := p.sync.SyncObserved(ctx, owner, onChain, observedAt)
	if err != nil {
		return nil, err
	}
	if p.recorder != nil {
		p.recorder.ObserveSync(result.Created, result.Reassigned, result.Removed)
	}
	return result, nil
}

// checkDrift counts assets whose staked flag disagrees with the frozen state of
// the owner's token account.
func (p *Praemium) checkDrift(ctx context.Context, owner string) (int, error) {
	frozen, err := p.frozenMints(ctx, owner)
	if err != nil {
		return 0, err
	}
	assets, err := p.repo.GetAssetsByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}
	drift := 0
	for _, asset := range assets {
		isFrozen, held := frozen[asset.Mint]
		if !held || isFrozen == asset.IsStaked {
			continue
		}
		drift++
		p.logger.Warnw("Staked flag drift",
			"account", owner,
			"mint", asset.Mint,
			"staked", asset.IsStaked,
			"frozen", isFrozen)
	}
	return drift, nil
}
