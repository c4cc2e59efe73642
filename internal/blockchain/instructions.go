package blockchain

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
)

// Token program instruction discriminators
const (
	tokenTransfer        = 3
	tokenFreezeAccount   = 10
	tokenThawAccount     = 11
	tokenTransferChecked = 12
)

// AssociatedTokenAddress returns the owner's associated token account for mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive associated token address: %w", err)
	}
	return ata, nil
}

// CreateAssociatedTokenAccount creates the associated token account of wallet for
// mint, paid by payer.
func CreateAssociatedTokenAccount(payer, wallet, mint solana.PublicKey) solana.Instruction {
	return associatedtokenaccount.NewCreateInstruction(payer, wallet, mint).Build()
}

// FreezeTokenAccount freezes account. authority must be the mint's freeze authority.
func FreezeTokenAccount(account, mint, authority solana.PublicKey) solana.Instruction {
	return token.NewFreezeAccountInstruction(account, mint, authority, nil).Build()
}

// ThawTokenAccount thaws a frozen account.
func ThawTokenAccount(account, mint, authority solana.PublicKey) solana.Instruction {
	return token.NewThawAccountInstruction(account, mint, authority, nil).Build()
}

// TransferTokens moves amount base units of mint from source to destination.
func TransferTokens(amount uint64, decimals uint8, source, mint, destination, owner solana.PublicKey) solana.Instruction {
	return token.NewTransferCheckedInstruction(amount, decimals, source, mint, destination, owner, nil).Build()
}

// Transfer is a token movement found in a transaction.
type Transfer struct {
	From   solana.PublicKey
	To     solana.PublicKey
	Amount uint64
}

// Summary describes the instructions of a transaction.
type Summary struct {
	CreateAccount int
	Freeze        int
	Thaw          int
	Other         int
	// FrozenAccounts and ThawedAccounts are the token accounts touched, in order
	FrozenAccounts []solana.PublicKey
	ThawedAccounts []solana.PublicKey
	Transfers      []*Transfer
	FeePayer       solana.PublicKey
	Signers        []solana.PublicKey
}

// Inspect decodes the instructions of tx.
func Inspect(tx *solana.Transaction) (*Summary, error) {
	msg := &tx.Message
	if len(msg.AccountKeys) == 0 {
		return nil, fmt.Errorf("transaction has no account keys")
	}
	summary := &Summary{
		FeePayer: msg.AccountKeys[0],
		Signers:  signerKeys(msg),
	}

	for i, ci := range msg.Instructions {
		programID, err := msg.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		accounts, err := ci.ResolveInstructionAccounts(msg)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}

		switch {
		case programID.Equals(solana.SPLAssociatedTokenAccountProgramID):
			summary.CreateAccount++
		case programID.Equals(solana.TokenProgramID):
			if err := inspectTokenInstruction(summary, accounts, ci.Data); err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
		default:
			summary.Other++
		}
	}
	return summary, nil
}

func inspectTokenInstruction(summary *Summary, accounts []*solana.AccountMeta, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty token instruction data")
	}
	switch data[0] {
	case tokenFreezeAccount:
		if len(accounts) < 1 {
			return fmt.Errorf("freeze instruction without accounts")
		}
		summary.Freeze++
		summary.FrozenAccounts = append(summary.FrozenAccounts, accounts[0].PublicKey)
	case tokenThawAccount:
		if len(accounts) < 1 {
			return fmt.Errorf("thaw instruction without accounts")
		}
		summary.Thaw++
		summary.ThawedAccounts = append(summary.ThawedAccounts, accounts[0].PublicKey)
	case tokenTransfer:
		// source, destination, owner
		if len(accounts) < 3 || len(data) < 9 {
			return fmt.Errorf("malformed transfer instruction")
		}
		summary.Transfers = append(summary.Transfers, &Transfer{
			From:   accounts[0].PublicKey,
			To:     accounts[1].PublicKey,
			Amount: binary.LittleEndian.Uint64(data[1:9]),
		})
	case tokenTransferChecked:
		// source, mint, destination, owner
		if len(accounts) < 4 || len(data) < 10 {
			return fmt.Errorf("malformed transfer checked instruction")
		}
		summary.Transfers = append(summary.Transfers, &Transfer{
			From:   accounts[0].PublicKey,
			To:     accounts[2].PublicKey,
			Amount: binary.LittleEndian.Uint64(data[1:9]),
		})
	default:
		summary.Other++
	}
	return nil
}

func signerKeys(msg *solana.Message) []solana.PublicKey {
	n := int(msg.Header.NumRequiredSignatures)
	if n > len(msg.AccountKeys) {
		n = len(msg.AccountKeys)
	}
	keys := make([]solana.PublicKey, n)
	copy(keys, msg.AccountKeys[:n])
	return keys
}

// ExplorerURL links a transaction signature in the block explorer.
func ExplorerURL(signature, cluster string) string {
	url := "https://explorer.solana.com/tx/" + signature
	switch cluster {
	case "", "mainnet", "mainnet-beta":
		return url
	}
	return url + "?cluster=" + cluster
}
