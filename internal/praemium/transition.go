package praemium

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/validation"
)

// PersistStateTransition applies the record store change that follows a confirmed
// transaction. Stake and unstake flip the flag of the listed assets after a ledger
// rebase; a claim zeroes the balance. Replaying a transition changes nothing.
func (p *Praemium) PersistStateTransition(ctx context.Context, transition models.StateTransition) (*models.TransitionResult, error) {
	if err := validateOwner(transition.Owner); err != nil {
		return nil, err
	}
	sig, err := signatureOf(transition.Signature)
	if err != nil {
		return nil, err
	}
	if transition.Action != models.ActionClaim {
		if len(transition.Mints) == 0 {
			return nil, models.NewError(models.KindInvalidRequest, "no assets selected", nil)
		}
		if err := validation.ValidateAddresses(transition.Mints); err != nil {
			return nil, models.NewError(models.KindInvalidRequest, err.Error(), err)
		}
	}
	if err := p.verifyConfirmed(ctx, sig); err != nil {
		return nil, err
	}

	var result *models.TransitionResult
	switch transition.Action {
	case models.ActionStake, models.ActionUnstake:
		result, err = p.persistStake(ctx, transition)
	case models.ActionClaim:
		result, err = p.persistClaim(ctx, transition)
	default:
		err = models.NewError(models.KindInvalidRequest, fmt.Sprintf("unknown action %q", transition.Action), nil)
	}
	if err != nil {
		p.logger.Errorw("Failed to persist state transition",
			"account", transition.Owner,
			"action", transition.Action,
			"signature", transition.Signature,
			"error", err)
		p.notificator.Error(transition.Signature, fmt.Sprintf("%s of %s could not be recorded: %s", transition.Action, transition.Owner, models.UserMessage(err)))
		return nil, err
	}

	if p.recorder != nil {
		p.recorder.ObserveTransition(string(transition.Action), result.Changed)
	}
	if result.Changed > 0 {
		p.notificator.Success(transition.Signature, fmt.Sprintf("%s of %s recorded, %d changed", transition.Action, transition.Owner, result.Changed))
	}
	return result, nil
}

// verifyConfirmed rejects transitions whose transaction the network did not accept.
func (p *Praemium) verifyConfirmed(ctx context.Context, sig solana.Signature) error {
	confirmation, err := p.network.ConfirmTransaction(ctx, sig, nil)
	if err != nil {
		return models.NewError(models.KindConfirmationFailed, "transaction is not confirmed", err)
	}
	if confirmation.Err != "" {
		return models.NewError(models.KindInvalidRequest, "transaction failed on chain: "+confirmation.Err, nil)
	}
	return nil
}

func (p *Praemium) persistStake(ctx context.Context, transition models.StateTransition) (*models.TransitionResult, error) {
	staked := transition.Action.TargetStaked()
	frozen, err := p.frozenMints(ctx, transition.Owner)
	if err != nil {
		return nil, err
	}
	var changed int64
	err = p.repo.Transaction(ctx, func(repo models.Repository) error {
		assets, err := repo.GetAssetsByMints(ctx, transition.Mints)
		if err != nil {
			return err
		}
		if len(assets) != len(dedupe(transition.Mints)) {
			return models.NewError(models.KindInvalidRequest, "unknown asset in transition", nil)
		}
		pending := 0
		for _, asset := range assets {
			if asset.OwnerPublicKey != transition.Owner {
				return models.NewError(models.KindInvalidRequest, fmt.Sprintf("asset %s is not owned by %s", asset.Mint, transition.Owner), nil)
			}
			if asset.IsStaked == staked {
				continue
			}
			// The record store follows the token account, never the other way round
			isFrozen, held := frozen[asset.Mint]
			if !held {
				return models.NewError(models.KindInvalidRequest, fmt.Sprintf("asset %s is not held by %s on chain", asset.Mint, transition.Owner), nil)
			}
			if isFrozen != staked {
				if staked {
					return models.NewError(models.KindInvalidRequest, fmt.Sprintf("asset %s is not frozen on chain", asset.Mint), nil)
				}
				return models.NewError(models.KindInvalidRequest, fmt.Sprintf("asset %s is still frozen on chain", asset.Mint), nil)
			}
			pending++
		}
		if pending == 0 {
			return nil
		}

		// The old staked count applies up to now
		ledger := p.ledger.WithRepository(repo)
		if _, err := ledger.Rebase(ctx, transition.Owner); err != nil {
			return err
		}
		changed, err = repo.SetAssetsStaked(ctx, transition.Owner, transition.Mints, staked, ledger.Now())
		return err
	})
	if err != nil {
		return nil, persistenceError(err)
	}

	account, err := p.repo.GetAccount(ctx, transition.Owner)
	if err != nil {
		return nil, persistenceError(err)
	}
	p.logger.Infow("State transition persisted",
		"account", transition.Owner,
		"action", transition.Action,
		"changed", changed,
		"signature", transition.Signature)
	return &models.TransitionResult{Changed: changed, Balance: account.TokenBalance}, nil
}

// frozenMints maps each mint owner holds on chain to the freeze state of its
// token account.
func (p *Praemium) frozenMints(ctx context.Context, owner string) (map[string]bool, error) {
	key, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, models.NewError(models.KindInvalidRequest, "invalid account address", err)
	}
	holdings, err := p.network.GetTokenHoldings(ctx, key)
	if err != nil {
		return nil, models.NewError(models.KindConfirmationFailed, "token accounts could not be read", err)
	}
	frozen := make(map[string]bool, len(holdings))
	for _, h := range holdings {
		if h.Amount == 0 {
			continue
		}
		frozen[h.Mint.String()] = h.Frozen
	}
	return frozen, nil
}

func (p *Praemium) persistClaim(ctx context.Context, transition models.StateTransition) (*models.TransitionResult, error) {
	applied, err := p.ledger.Reset(ctx, transition.Owner, transition.Signature)
	if err != nil {
		return nil, persistenceError(err)
	}
	account, err := p.repo.GetAccount(ctx, transition.Owner)
	if err != nil {
		return nil, persistenceError(err)
	}
	result := &models.TransitionResult{Balance: account.TokenBalance}
	if applied {
		result.Changed = 1
	}
	return result, nil
}

// persistenceError keeps classified errors and marks the rest as store failures.
func persistenceError(err error) error {
	var classified *models.Error
	if errors.As(err, &classified) {
		return err
	}
	return models.NewError(models.KindPersistenceFailed, "failed to persist state transition", err)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
