package blockchain_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/praemium/internal/blockchain"
	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/internal/wallet"
)

func newKeypair(t *testing.T) *wallet.Keypair {
	t.Helper()
	kp, err := wallet.Generate()
	require.NoError(t, err)
	return kp
}

func freezeTx(t *testing.T, owner, authority solana.PublicKey, mints ...solana.PublicKey) *solana.Transaction {
	t.Helper()
	instructions := make([]solana.Instruction, 0, len(mints))
	for _, mint := range mints {
		ata, err := blockchain.AssociatedTokenAddress(owner, mint)
		require.NoError(t, err)
		instructions = append(instructions, blockchain.FreezeTokenAccount(ata, mint, authority))
	}
	tx, err := solana.NewTransaction(instructions, solana.Hash{1}, solana.TransactionPayer(owner))
	require.NoError(t, err)
	return tx
}

func TestPartialSignLeavesOwnerSlotOpen(t *testing.T) {
	owner := newKeypair(t)
	authority := newKeypair(t)
	tx := freezeTx(t, owner.PublicKey(), authority.PublicKey(), solana.NewWallet().PublicKey())

	require.NoError(t, blockchain.PartialSign(tx, authority))
	require.Equal(t, []solana.PublicKey{owner.PublicKey()}, blockchain.MissingSignatures(tx))

	encoded, err := blockchain.SerializeTransaction(tx)
	require.NoError(t, err)
	decoded, err := blockchain.DeserializeTransaction(encoded)
	require.NoError(t, err)
	require.Equal(t, []solana.PublicKey{owner.PublicKey()}, blockchain.MissingSignatures(decoded))

	message, err := decoded.Message.MarshalBinary()
	require.NoError(t, err)
	require.True(t, ed25519.Verify(authority.PublicKey().Bytes(), message, decoded.Signatures[1][:]))
}

func TestPartialSignRejectsUnknownSigner(t *testing.T) {
	owner := newKeypair(t)
	authority := newKeypair(t)
	tx := freezeTx(t, owner.PublicKey(), authority.PublicKey(), solana.NewWallet().PublicKey())

	require.Error(t, blockchain.PartialSign(tx, newKeypair(t)))
}

func TestCompileV0KeepsInstructions(t *testing.T) {
	owner := newKeypair(t)
	authority := newKeypair(t)
	mints := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}
	tx := freezeTx(t, owner.PublicKey(), authority.PublicKey(), mints...)
	require.NoError(t, blockchain.PartialSign(tx, authority))

	ref := &models.BlockReference{Blockhash: solana.Hash{9}, LastValidBlockHeight: 100}
	compiled, err := blockchain.CompileV0(tx, ref, owner.PublicKey())
	require.NoError(t, err)
	require.Equal(t, solana.MessageVersionV0, compiled.Message.GetVersion())
	require.Equal(t, ref.Blockhash, compiled.Message.RecentBlockhash)
	require.Len(t, blockchain.MissingSignatures(compiled), 2)

	summary, err := blockchain.Inspect(compiled)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Freeze)
	require.Equal(t, owner.PublicKey(), summary.FeePayer)

	// v0 messages survive the wire round trip
	require.NoError(t, blockchain.PartialSign(compiled, authority, owner))
	require.Empty(t, blockchain.MissingSignatures(compiled))
	encoded, err := blockchain.SerializeTransaction(compiled)
	require.NoError(t, err)
	decoded, err := blockchain.DeserializeTransaction(encoded)
	require.NoError(t, err)
	require.Equal(t, solana.MessageVersionV0, decoded.Message.GetVersion())
	require.NoError(t, decoded.VerifySignatures())
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	_, err := blockchain.DeserializeTransaction("%%%")
	require.Error(t, err)
}
