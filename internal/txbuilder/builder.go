// Package txbuilder builds the stake, unstake and claim transactions. Every
// transaction is paid by the owner and co-signed by the service authority, and
// stays inert until the owner signs it.
package txbuilder

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/core-coin/praemium/internal/blockchain"
	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
	"github.com/core-coin/praemium/pkg/validation"
)

type Builder struct {
	logger    *logger.Logger
	network   models.LedgerNetwork
	authority models.Signer

	rewardMint     solana.PublicKey
	rewardDecimals uint8
}

func NewBuilder(network models.LedgerNetwork, authority models.Signer, rewardMint solana.PublicKey, rewardDecimals uint8, logger *logger.Logger) *Builder {
	return &Builder{
		logger:         logger,
		network:        network,
		authority:      authority,
		rewardMint:     rewardMint,
		rewardDecimals: rewardDecimals,
	}
}

// Authority returns the public key of the co-signing authority.
func (b *Builder) Authority() solana.PublicKey {
	return b.authority.PublicKey()
}

// BuildStakeTransaction freezes the owner's token account of every mint.
func (b *Builder) BuildStakeTransaction(ctx context.Context, owner string, mints []string) (*models.PendingTransaction, error) {
	return b.buildFreezeThaw(ctx, models.ActionStake, owner, mints)
}

// BuildUnstakeTransaction thaws the owner's token account of every mint.
func (b *Builder) BuildUnstakeTransaction(ctx context.Context, owner string, mints []string) (*models.PendingTransaction, error) {
	return b.buildFreezeThaw(ctx, models.ActionUnstake, owner, mints)
}

func (b *Builder) buildFreezeThaw(ctx context.Context, action models.Action, owner string, mints []string) (*models.PendingTransaction, error) {
	ownerKey, err := parseOwner(owner)
	if err != nil {
		return nil, err
	}
	if len(mints) == 0 {
		return nil, models.NewError(models.KindInvalidRequest, "no assets selected", nil)
	}
	if err := validation.ValidateAddresses(mints); err != nil {
		return nil, models.NewError(models.KindInvalidRequest, err.Error(), err)
	}
	mintKeys := make([]solana.PublicKey, len(mints))
	for i, mint := range mints {
		mintKeys[i] = solana.MustPublicKeyFromBase58(mint)
	}

	authority := b.authority.PublicKey()
	instructions := make([]solana.Instruction, 0, 2*len(mints))
	for _, mint := range mintKeys {
		ata, err := blockchain.AssociatedTokenAddress(ownerKey, mint)
		if err != nil {
			return nil, models.NewError(models.KindBuildFailed, "", err)
		}
		exists, err := b.network.AccountExists(ctx, ata)
		if err != nil {
			return nil, models.NewError(models.KindBuildFailed, "", fmt.Errorf("failed to look up token account %s: %w", ata, err))
		}
		if !exists {
			instructions = append(instructions, blockchain.CreateAssociatedTokenAccount(ownerKey, ownerKey, mint))
		}
		if action == models.ActionStake {
			instructions = append(instructions, blockchain.FreezeTokenAccount(ata, mint, authority))
		} else {
			instructions = append(instructions, blockchain.ThawTokenAccount(ata, mint, authority))
		}
	}

	pending, err := b.finish(ctx, ownerKey, instructions)
	if err != nil {
		return nil, err
	}
	pending.Action = action
	pending.Mints = mints
	pending.Amount = decimal.Zero
	b.logger.Debugw("Transaction built", "action", action, "owner", owner, "assets", len(mints), "instructions", len(instructions))
	return pending, nil
}

// BuildClaimTransaction transfers amount reward tokens from the authority's token
// account to the owner's, creating the owner's account when missing. The amount is
// truncated to the reward token's decimals.
func (b *Builder) BuildClaimTransaction(ctx context.Context, owner string, amount decimal.Decimal) (*models.PendingTransaction, error) {
	ownerKey, err := parseOwner(owner)
	if err != nil {
		return nil, err
	}
	units := amount.Shift(int32(b.rewardDecimals)).Floor()
	if !units.IsPositive() {
		return nil, models.NewError(models.KindInvalidRequest, "nothing to claim", nil)
	}
	baseUnits, err := toUint64(units)
	if err != nil {
		return nil, models.NewError(models.KindInvalidRequest, "invalid claim amount", err)
	}

	authority := b.authority.PublicKey()
	source, err := blockchain.AssociatedTokenAddress(authority, b.rewardMint)
	if err != nil {
		return nil, models.NewError(models.KindBuildFailed, "", err)
	}
	destination, err := blockchain.AssociatedTokenAddress(ownerKey, b.rewardMint)
	if err != nil {
		return nil, models.NewError(models.KindBuildFailed, "", err)
	}
	exists, err := b.network.AccountExists(ctx, destination)
	if err != nil {
		return nil, models.NewError(models.KindBuildFailed, "", fmt.Errorf("failed to look up token account %s: %w", destination, err))
	}

	instructions := make([]solana.Instruction, 0, 2)
	if !exists {
		instructions = append(instructions, blockchain.CreateAssociatedTokenAccount(ownerKey, ownerKey, b.rewardMint))
	}
	instructions = append(instructions,
		blockchain.TransferTokens(baseUnits, b.rewardDecimals, source, b.rewardMint, destination, authority))

	pending, err := b.finish(ctx, ownerKey, instructions)
	if err != nil {
		return nil, err
	}
	pending.Action = models.ActionClaim
	pending.Amount = units.Shift(-int32(b.rewardDecimals))
	b.logger.Debugw("Claim transaction built", "owner", owner, "amount", pending.Amount.String())
	return pending, nil
}

// finish binds the instructions to the latest blockhash, co-signs and serializes.
func (b *Builder) finish(ctx context.Context, owner solana.PublicKey, instructions []solana.Instruction) (*models.PendingTransaction, error) {
	ref, err := b.network.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, models.NewError(models.KindBuildFailed, "", err)
	}
	tx, err := solana.NewTransaction(instructions, ref.Blockhash, solana.TransactionPayer(owner))
	if err != nil {
		return nil, models.NewError(models.KindBuildFailed, "", fmt.Errorf("failed to create transaction: %w", err))
	}
	if err := blockchain.PartialSign(tx, b.authority); err != nil {
		return nil, models.NewError(models.KindBuildFailed, "", err)
	}
	encoded, err := blockchain.SerializeTransaction(tx)
	if err != nil {
		return nil, models.NewError(models.KindBuildFailed, "", err)
	}
	return &models.PendingTransaction{
		Transaction:          encoded,
		Blockhash:            ref.Blockhash.String(),
		LastValidBlockHeight: ref.LastValidBlockHeight,
	}, nil
}

func parseOwner(owner string) (solana.PublicKey, error) {
	if owner == "" {
		return solana.PublicKey{}, models.NewError(models.KindInvalidRequest, "owner public key is required", nil)
	}
	key, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return solana.PublicKey{}, models.NewError(models.KindInvalidRequest, "invalid owner public key", err)
	}
	return key, nil
}

func toUint64(d decimal.Decimal) (uint64, error) {
	v := d.BigInt()
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%s does not fit in uint64", d)
	}
	return v.Uint64(), nil
}
