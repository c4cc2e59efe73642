package models

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Signer signs transaction messages with a single key.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(message []byte) (solana.Signature, error)
}

// Wallet is the connected owner wallet.
type Wallet interface {
	PublicKey() solana.PublicKey
	// SignMessage signs arbitrary bytes, used for sign-in.
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
	// SignTransaction fills the wallet's signature slot of tx.
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}
