package models

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// BlockReference binds a transaction to a recent blockhash and bounds its validity.
type BlockReference struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// SimulationResult is the outcome of a transaction simulation.
type SimulationResult struct {
	// Err is empty when the transaction would succeed.
	Err  string
	Logs []string
}

// ConfirmationResult is the outcome of waiting for a submitted transaction.
type ConfirmationResult struct {
	// Err is empty when the network accepted the transaction.
	Err string
}

// TokenHolding is a token account owned by a wallet.
type TokenHolding struct {
	Mint         solana.PublicKey
	TokenAccount solana.PublicKey
	Amount       uint64
	Frozen       bool
}

// LedgerNetwork represents the blockchain network the service transacts on.
type LedgerNetwork interface {
	GetLatestBlockhash(ctx context.Context) (*BlockReference, error)
	AccountExists(ctx context.Context, address solana.PublicKey) (bool, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// ConfirmTransaction waits until the signature is confirmed, rejected, or the
	// block height passes ref.LastValidBlockHeight.
	ConfirmTransaction(ctx context.Context, signature solana.Signature, ref *BlockReference) (*ConfirmationResult, error)
	GetTokenHoldings(ctx context.Context, owner solana.PublicKey) ([]*TokenHolding, error)
}

// MetadataService discovers the collection assets a wallet holds.
type MetadataService interface {
	FetchOwnedAssets(ctx context.Context, owner string) ([]*OnChainAsset, error)
}
