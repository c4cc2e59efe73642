package txbuilder_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/praemium/internal/blockchain"
	"github.com/core-coin/praemium/internal/blockchain/blockchaintest"
	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/internal/txbuilder"
	"github.com/core-coin/praemium/internal/wallet"
	"github.com/core-coin/praemium/pkg/logger"
)

type fixture struct {
	network   *blockchaintest.Network
	authority *wallet.Keypair
	owner     *wallet.Keypair
	reward    solana.PublicKey
	builder   *txbuilder.Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	authority, err := wallet.Generate()
	require.NoError(t, err)
	owner, err := wallet.Generate()
	require.NoError(t, err)
	f := &fixture{
		network:   blockchaintest.NewNetwork(),
		authority: authority,
		owner:     owner,
		reward:    solana.NewWallet().PublicKey(),
	}
	f.builder = txbuilder.NewBuilder(f.network, authority, f.reward, 6, logger.NewNop())
	return f
}

func newMints(n int) []string {
	mints := make([]string, n)
	for i := range mints {
		mints[i] = solana.NewWallet().PublicKey().String()
	}
	return mints
}

func decode(t *testing.T, pending *models.PendingTransaction) (*solana.Transaction, *blockchain.Summary) {
	t.Helper()
	tx, err := blockchain.DeserializeTransaction(pending.Transaction)
	require.NoError(t, err)
	summary, err := blockchain.Inspect(tx)
	require.NoError(t, err)
	return tx, summary
}

func TestBuildStakeTransactionShape(t *testing.T) {
	f := newFixture(t)
	mints := newMints(2)

	pending, err := f.builder.BuildStakeTransaction(context.Background(), f.owner.PublicKey().String(), mints)
	require.NoError(t, err)
	require.Equal(t, models.ActionStake, pending.Action)
	require.Equal(t, mints, pending.Mints)

	tx, summary := decode(t, pending)
	require.Equal(t, 2, summary.Freeze)
	require.Equal(t, 0, summary.Thaw)
	require.LessOrEqual(t, summary.CreateAccount, 2)
	require.Equal(t, 2, summary.CreateAccount, "no token account exists on the fake network")
	require.Equal(t, f.owner.PublicKey(), summary.FeePayer)

	// Inert until the owner signs
	require.Equal(t, []solana.PublicKey{f.owner.PublicKey()}, blockchain.MissingSignatures(tx))
	require.Equal(t, f.network.Blockhashes[0], tx.Message.RecentBlockhash)
}

func TestBuildStakeSkipsExistingTokenAccounts(t *testing.T) {
	f := newFixture(t)
	mints := newMints(2)
	ata, err := blockchain.AssociatedTokenAddress(f.owner.PublicKey(), solana.MustPublicKeyFromBase58(mints[0]))
	require.NoError(t, err)
	f.network.SetAccount(ata)

	pending, err := f.builder.BuildStakeTransaction(context.Background(), f.owner.PublicKey().String(), mints)
	require.NoError(t, err)
	_, summary := decode(t, pending)
	require.Equal(t, 1, summary.CreateAccount)
	require.Equal(t, 2, summary.Freeze)
	require.Equal(t, ata, summary.FrozenAccounts[0])
}

func TestBuildUnstakeTransactionShape(t *testing.T) {
	f := newFixture(t)
	mints := newMints(3)
	for _, mint := range mints {
		ata, err := blockchain.AssociatedTokenAddress(f.owner.PublicKey(), solana.MustPublicKeyFromBase58(mint))
		require.NoError(t, err)
		f.network.SetAccount(ata)
	}

	pending, err := f.builder.BuildUnstakeTransaction(context.Background(), f.owner.PublicKey().String(), mints)
	require.NoError(t, err)
	_, summary := decode(t, pending)
	require.Equal(t, 3, summary.Thaw)
	require.Equal(t, 0, summary.Freeze)
	require.Equal(t, 0, summary.CreateAccount)
}

func TestBuildInvalidRequestMakesNoNetworkCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.builder.BuildStakeTransaction(ctx, f.owner.PublicKey().String(), nil)
	require.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = f.builder.BuildStakeTransaction(ctx, "", newMints(1))
	require.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = f.builder.BuildUnstakeTransaction(ctx, "not base58!", newMints(1))
	require.ErrorIs(t, err, models.ErrInvalidRequest)

	dup := newMints(1)
	_, err = f.builder.BuildStakeTransaction(ctx, f.owner.PublicKey().String(), append(dup, dup[0]))
	require.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = f.builder.BuildClaimTransaction(ctx, f.owner.PublicKey().String(), decimal.Zero)
	require.ErrorIs(t, err, models.ErrInvalidRequest)

	require.Zero(t, f.network.TotalCalls())
}

func TestBuildFailsWhenBlockhashUnavailable(t *testing.T) {
	f := newFixture(t)
	f.network.BlockhashErr = errors.New("rpc down")

	_, err := f.builder.BuildStakeTransaction(context.Background(), f.owner.PublicKey().String(), newMints(1))
	require.ErrorIs(t, err, models.ErrBuildFailed)
}

func TestBuildClaimTransaction(t *testing.T) {
	f := newFixture(t)

	pending, err := f.builder.BuildClaimTransaction(context.Background(), f.owner.PublicKey().String(),
		decimal.RequireFromString("1.23456789"))
	require.NoError(t, err)
	require.Equal(t, models.ActionClaim, pending.Action)
	require.True(t, pending.Amount.Equal(decimal.RequireFromString("1.234567")), pending.Amount.String())

	tx, summary := decode(t, pending)
	require.Equal(t, 1, summary.CreateAccount)
	require.Len(t, summary.Transfers, 1)
	require.EqualValues(t, 1_234_567, summary.Transfers[0].Amount)

	dst, err := blockchain.AssociatedTokenAddress(f.owner.PublicKey(), f.reward)
	require.NoError(t, err)
	require.Equal(t, dst, summary.Transfers[0].To)
	require.Equal(t, []solana.PublicKey{f.owner.PublicKey()}, blockchain.MissingSignatures(tx))
}

func TestBuildClaimBelowSmallestUnit(t *testing.T) {
	f := newFixture(t)
	_, err := f.builder.BuildClaimTransaction(context.Background(), f.owner.PublicKey().String(),
		decimal.RequireFromString("0.0000001"))
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}
