// Package blockchaintest provides an in-memory ledger network for tests.
package blockchaintest

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/core-coin/praemium/internal/models"
)

// Network is a scriptable models.LedgerNetwork. Zero value hands out increasing
// blockhashes, reports every account as missing, and confirms everything.
type Network struct {
	mu sync.Mutex

	// Existing token accounts
	Accounts map[solana.PublicKey]bool
	Holdings map[solana.PublicKey][]*models.TokenHolding

	// Optional hooks, called with the 1-based call number
	Simulate func(call int, tx *solana.Transaction) *models.SimulationResult
	Confirm  func(call int, sig solana.Signature) (*models.ConfirmationResult, error)
	Send     func(call int, tx *solana.Transaction) error

	BlockhashErr error

	Calls       map[string]int
	Blockhashes []solana.Hash
	Sent        []*solana.Transaction
	Simulated   []*solana.Transaction
}

func NewNetwork() *Network {
	return &Network{}
}

func (n *Network) record(method string) int {
	if n.Calls == nil {
		n.Calls = map[string]int{}
	}
	n.Calls[method]++
	return n.Calls[method]
}

// Hold records one unit of each mint in owner's token accounts with the given
// freeze state, replacing earlier holdings of those mints.
func (n *Network) Hold(owner string, frozen bool, mints ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Holdings == nil {
		n.Holdings = map[solana.PublicKey][]*models.TokenHolding{}
	}
	key := solana.MustPublicKeyFromBase58(owner)
	replaced := make(map[solana.PublicKey]bool, len(mints))
	for _, mint := range mints {
		replaced[solana.MustPublicKeyFromBase58(mint)] = true
	}
	kept := n.Holdings[key][:0:0]
	for _, h := range n.Holdings[key] {
		if !replaced[h.Mint] {
			kept = append(kept, h)
		}
	}
	for _, mint := range mints {
		kept = append(kept, &models.TokenHolding{Mint: solana.MustPublicKeyFromBase58(mint), Amount: 1, Frozen: frozen})
	}
	n.Holdings[key] = kept
}

// Count returns the number of calls made to method.
func (n *Network) Count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Calls[method]
}

// TotalCalls returns the number of calls made to any method.
func (n *Network) TotalCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.Calls {
		total += c
	}
	return total
}

// SetAccount marks an account as existing.
func (n *Network) SetAccount(address solana.PublicKey) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Accounts == nil {
		n.Accounts = map[solana.PublicKey]bool{}
	}
	n.Accounts[address] = true
}

func (n *Network) GetLatestBlockhash(_ context.Context) (*models.BlockReference, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	call := n.record("GetLatestBlockhash")
	if n.BlockhashErr != nil {
		return nil, n.BlockhashErr
	}
	hash := solana.Hash{byte(call), 0xb1}
	n.Blockhashes = append(n.Blockhashes, hash)
	return &models.BlockReference{Blockhash: hash, LastValidBlockHeight: uint64(1000 + call)}, nil
}

func (n *Network) AccountExists(_ context.Context, address solana.PublicKey) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record("AccountExists")
	return n.Accounts[address], nil
}

func (n *Network) SimulateTransaction(_ context.Context, tx *solana.Transaction) (*models.SimulationResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	call := n.record("SimulateTransaction")
	n.Simulated = append(n.Simulated, tx)
	if n.Simulate != nil {
		return n.Simulate(call, tx), nil
	}
	return &models.SimulationResult{}, nil
}

func (n *Network) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	call := n.record("SendTransaction")
	if n.Send != nil {
		if err := n.Send(call, tx); err != nil {
			return solana.Signature{}, err
		}
	}
	if len(tx.Signatures) == 0 || tx.Signatures[0].IsZero() {
		return solana.Signature{}, fmt.Errorf("transaction is not signed by the fee payer")
	}
	n.Sent = append(n.Sent, tx)
	return tx.Signatures[0], nil
}

func (n *Network) ConfirmTransaction(_ context.Context, sig solana.Signature, _ *models.BlockReference) (*models.ConfirmationResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	call := n.record("ConfirmTransaction")
	if n.Confirm != nil {
		return n.Confirm(call, sig)
	}
	return &models.ConfirmationResult{}, nil
}

func (n *Network) GetTokenHoldings(_ context.Context, owner solana.PublicKey) ([]*models.TokenHolding, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record("GetTokenHoldings")
	return n.Holdings[owner], nil
}
