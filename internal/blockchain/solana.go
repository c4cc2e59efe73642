package blockchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
)

const (
	// requestTimeout bounds every single RPC round trip
	requestTimeout = 10 * time.Second
	// DefaultPollInterval is how often signature statuses are polled while confirming
	DefaultPollInterval = 2 * time.Second
)

// BlockHeightExceeded is the confirmation error of a transaction that was not
// confirmed before its blockhash expired.
const BlockHeightExceeded = "block height exceeded"

// Solana is the ledger network client.
type Solana struct {
	logger *logger.Logger
	rpcURL string

	mu     sync.RWMutex
	client *rpc.Client

	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// NewSolana creates a new Solana client. Call Run before use.
func NewSolana(rpcURL string, confirmTimeout time.Duration, logger *logger.Logger) *Solana {
	return &Solana{
		rpcURL:         rpcURL,
		logger:         logger,
		pollInterval:   DefaultPollInterval,
		confirmTimeout: confirmTimeout,
	}
}

// SetPollInterval changes the confirmation polling interval.
func (s *Solana) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

func (s *Solana) Run() error {
	err := s.ConnectToRPC()
	if err != nil {
		return fmt.Errorf("failed to connect to the RPC server: %w", err)
	}
	return nil
}

func (s *Solana) ConnectToRPC() error {
	client := rpc.New(s.rpcURL)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if _, err := client.GetHealth(ctx); err != nil {
		return fmt.Errorf("RPC server is not healthy: %w", err)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.logger.Info("Connected to RPC server ", s.rpcURL)
	return nil
}

func (s *Solana) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		return err
	}
	return nil
}

func (s *Solana) conn() (*rpc.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, fmt.Errorf("RPC client is not connected")
	}
	return s.client, nil
}

func (s *Solana) GetLatestBlockhash(ctx context.Context) (*models.BlockReference, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	out, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("failed to get latest blockhash: empty response")
	}
	return &models.BlockReference{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

func (s *Solana) AccountExists(ctx context.Context, address solana.PublicKey) (bool, error) {
	client, err := s.conn()
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	out, err := client.GetAccountInfo(ctx, address)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get account info: %w", err)
	}
	return out != nil && out.Value != nil, nil
}

func (s *Solana) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*models.SimulationResult, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	out, err := client.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:  false,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to simulate transaction: %w", err)
	}
	result := &models.SimulationResult{}
	if out != nil && out.Value != nil {
		result.Logs = out.Value.Logs
		if out.Value.Err != nil {
			result.Err = fmt.Sprint(out.Value.Err)
		}
	}
	return result, nil
}

func (s *Solana) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	client, err := s.conn()
	if err != nil {
		return solana.Signature{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	sig, err := client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// ConfirmTransaction polls the signature status until the transaction is confirmed,
// rejected, or its blockhash expires. Network errors while polling are retried
// until the confirmation timeout.
func (s *Solana) ConfirmTransaction(ctx context.Context, signature solana.Signature, ref *models.BlockReference) (*models.ConfirmationResult, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	if s.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.confirmTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		done, result, err := s.pollSignature(ctx, client, signature, ref)
		if done {
			return result, nil
		}
		if err != nil {
			lastErr = err
			s.logger.Warnw("Signature status poll failed", "signature", signature.String(), "error", err)
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("confirmation of %s timed out: %w", signature, lastErr)
			}
			return nil, fmt.Errorf("confirmation of %s timed out: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Solana) pollSignature(ctx context.Context, client *rpc.Client, signature solana.Signature, ref *models.BlockReference) (bool, *models.ConfirmationResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	out, err := client.GetSignatureStatuses(reqCtx, true, signature)
	if err != nil {
		return false, nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
		status := out.Value[0]
		if status.Err != nil {
			return true, &models.ConfirmationResult{Err: fmt.Sprint(status.Err)}, nil
		}
		switch status.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			return true, &models.ConfirmationResult{}, nil
		}
	}

	if ref == nil {
		return false, nil, nil
	}
	height, err := client.GetBlockHeight(reqCtx, rpc.CommitmentConfirmed)
	if err != nil {
		return false, nil, fmt.Errorf("failed to get block height: %w", err)
	}
	if height > ref.LastValidBlockHeight {
		return true, &models.ConfirmationResult{Err: BlockHeightExceeded}, nil
	}
	return false, nil, nil
}

func (s *Solana) GetTokenHoldings(ctx context.Context, owner solana.PublicKey) ([]*models.TokenHolding, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	out, err := client.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: solana.TokenProgramID.ToPointer()},
		&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get token accounts: %w", err)
	}

	holdings := make([]*models.TokenHolding, 0, len(out.Value))
	for _, keyed := range out.Value {
		if keyed == nil || keyed.Account.Data == nil {
			continue
		}
		var account token.Account
		if err := bin.NewBinDecoder(keyed.Account.Data.GetBinary()).Decode(&account); err != nil {
			s.logger.Warnw("Skipping undecodable token account", "account", keyed.Pubkey.String(), "error", err)
			continue
		}
		holdings = append(holdings, &models.TokenHolding{
			Mint:         account.Mint,
			TokenAccount: keyed.Pubkey,
			Amount:       account.Amount,
			Frozen:       account.State == token.Frozen,
		})
	}
	return holdings, nil
}
