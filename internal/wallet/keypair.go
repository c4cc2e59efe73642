// Package wallet holds local ed25519 keypairs. A Keypair serves as the owner
// wallet of the client commands and as the service authority signer.
package wallet

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/core-coin/praemium/internal/blockchain"
)

type Keypair struct {
	key solana.PrivateKey
}

func NewKeypair(key solana.PrivateKey) *Keypair {
	return &Keypair{key: key}
}

// Generate creates a random keypair.
func Generate() (*Keypair, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return NewKeypair(key), nil
}

// FromBase58 parses a base58 encoded 64 byte secret key.
func FromBase58(secret string) (*Keypair, error) {
	key, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeypair(key), nil
}

// Load reads a keypair file holding the secret key as a JSON byte array.
func Load(path string) (*Keypair, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}
	return NewKeypair(key), nil
}

func (k *Keypair) PublicKey() solana.PublicKey {
	return k.key.PublicKey()
}

func (k *Keypair) Sign(message []byte) (solana.Signature, error) {
	return k.key.Sign(message)
}

func (k *Keypair) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	sig, err := k.key.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return sig[:], nil
}

func (k *Keypair) SignTransaction(_ context.Context, tx *solana.Transaction) error {
	return blockchain.PartialSign(tx, k)
}
