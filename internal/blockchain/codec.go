package blockchain

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/core-coin/praemium/internal/models"
)

// SerializeTransaction encodes tx as base64 without requiring every signature.
func SerializeTransaction(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DeserializeTransaction decodes a base64 transaction, legacy or versioned.
func DeserializeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
	}
	return tx, nil
}

// Instructions decompiles the instructions of tx.
func Instructions(tx *solana.Transaction) ([]solana.Instruction, error) {
	msg := &tx.Message
	instructions := make([]solana.Instruction, 0, len(msg.Instructions))
	for i, ci := range msg.Instructions {
		programID, err := msg.ResolveProgramIDIndex(ci.ProgramIDIndex)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		accounts, err := ci.ResolveInstructionAccounts(msg)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		instructions = append(instructions, solana.NewInstruction(programID, accounts, ci.Data))
	}
	return instructions, nil
}

// CompileV0 recompiles the instructions of tx into a version 0 message bound to ref,
// paid by payer. The result carries no signatures.
func CompileV0(tx *solana.Transaction, ref *models.BlockReference, payer solana.PublicKey) (*solana.Transaction, error) {
	instructions, err := Instructions(tx)
	if err != nil {
		return nil, err
	}
	compiled, err := solana.NewTransaction(instructions, ref.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to compile transaction: %w", err)
	}
	compiled.Message.SetVersion(solana.MessageVersionV0)
	compiled.Signatures = make([]solana.Signature, compiled.Message.Header.NumRequiredSignatures)
	return compiled, nil
}

// PartialSign fills the signature slots of the given signers and leaves the
// others untouched. Every signer must be a required signer of tx.
func PartialSign(tx *solana.Transaction, signers ...models.Signer) error {
	required := signerKeys(&tx.Message)
	if len(tx.Signatures) != len(required) {
		sigs := make([]solana.Signature, len(required))
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	for _, signer := range signers {
		index := -1
		for i, key := range required {
			if key.Equals(signer.PublicKey()) {
				index = i
				break
			}
		}
		if index < 0 {
			return fmt.Errorf("%s is not a required signer", signer.PublicKey())
		}
		sig, err := signer.Sign(message)
		if err != nil {
			return fmt.Errorf("failed to sign with %s: %w", signer.PublicKey(), err)
		}
		tx.Signatures[index] = sig
	}
	return nil
}

// MissingSignatures lists the required signers whose signature slot is empty.
func MissingSignatures(tx *solana.Transaction) []solana.PublicKey {
	var missing []solana.PublicKey
	for i, key := range signerKeys(&tx.Message) {
		if i >= len(tx.Signatures) || tx.Signatures[i].IsZero() {
			missing = append(missing, key)
		}
	}
	return missing
}
