package blockchain_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/praemium/internal/blockchain"
	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
)

// rpcServer answers JSON-RPC calls from per-method handlers and counts calls.
type rpcServer struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(call int) interface{}
}

func newRPCServer(t *testing.T, handlers map[string]func(call int) interface{}) (*rpcServer, string) {
	s := &rpcServer{calls: map[string]int{}, handlers: handlers}
	if _, ok := handlers["getHealth"]; !ok {
		handlers["getHealth"] = func(int) interface{} { return "ok" }
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.calls[req.Method]++
		call := s.calls[req.Method]
		handler, ok := s.handlers[req.Method]
		s.mu.Unlock()

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if !ok {
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		} else {
			resp["result"] = handler(call)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func (s *rpcServer) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func withContext(value interface{}) map[string]interface{} {
	return map[string]interface{}{"context": map[string]interface{}{"slot": 1}, "value": value}
}

func connect(t *testing.T, url string) *blockchain.Solana {
	t.Helper()
	client := blockchain.NewSolana(url, 5*time.Second, logger.NewNop())
	client.SetPollInterval(10 * time.Millisecond)
	require.NoError(t, client.Run())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGetLatestBlockhash(t *testing.T) {
	hash := solana.Hash{7, 7, 7}
	_, url := newRPCServer(t, map[string]func(int) interface{}{
		"getLatestBlockhash": func(int) interface{} {
			return withContext(map[string]interface{}{
				"blockhash":            hash.String(),
				"lastValidBlockHeight": 200,
			})
		},
	})
	client := connect(t, url)

	ref, err := client.GetLatestBlockhash(context.Background())
	require.NoError(t, err)
	require.Equal(t, hash, ref.Blockhash)
	require.EqualValues(t, 200, ref.LastValidBlockHeight)
}

func TestAccountExistsNotFound(t *testing.T) {
	_, url := newRPCServer(t, map[string]func(int) interface{}{
		"getAccountInfo": func(int) interface{} { return withContext(nil) },
	})
	client := connect(t, url)

	exists, err := client.AccountExists(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	require.False(t, exists)
}

func encodeTokenAccount(t *testing.T, account token.Account) string {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, bin.NewBinEncoder(buf).Encode(account))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestGetTokenHoldingsReadsFreezeState(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	frozenMint, thawedMint := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	frozenAccount, thawedAccount := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	keyed := func(pubkey solana.PublicKey, data interface{}) map[string]interface{} {
		account := map[string]interface{}{
			"lamports":   2039280,
			"owner":      solana.TokenProgramID.String(),
			"executable": false,
			"rentEpoch":  0,
		}
		if data != nil {
			account["data"] = data
		}
		return map[string]interface{}{"pubkey": pubkey.String(), "account": account}
	}
	_, url := newRPCServer(t, map[string]func(int) interface{}{
		"getTokenAccountsByOwner": func(int) interface{} {
			return withContext([]interface{}{
				keyed(frozenAccount, []string{encodeTokenAccount(t, token.Account{
					Mint: frozenMint, Owner: owner, Amount: 1, State: token.Frozen,
				}), "base64"}),
				keyed(thawedAccount, []string{encodeTokenAccount(t, token.Account{
					Mint: thawedMint, Owner: owner, Amount: 1, State: token.Initialized,
				}), "base64"}),
				// No data, skipped
				keyed(solana.NewWallet().PublicKey(), nil),
			})
		},
	})
	client := connect(t, url)

	holdings, err := client.GetTokenHoldings(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	require.Equal(t, &models.TokenHolding{Mint: frozenMint, TokenAccount: frozenAccount, Amount: 1, Frozen: true}, holdings[0])
	require.Equal(t, &models.TokenHolding{Mint: thawedMint, TokenAccount: thawedAccount, Amount: 1, Frozen: false}, holdings[1])
}

func TestConfirmTransactionConfirmed(t *testing.T) {
	srv, url := newRPCServer(t, map[string]func(int) interface{}{
		"getSignatureStatuses": func(call int) interface{} {
			if call < 3 {
				return withContext([]interface{}{nil})
			}
			return withContext([]interface{}{map[string]interface{}{
				"slot":               5,
				"confirmations":      1,
				"err":                nil,
				"confirmationStatus": "confirmed",
			}})
		},
		"getBlockHeight": func(int) interface{} { return 150 },
	})
	client := connect(t, url)

	result, err := client.ConfirmTransaction(context.Background(), solana.Signature{1},
		&models.BlockReference{LastValidBlockHeight: 200})
	require.NoError(t, err)
	require.Empty(t, result.Err)
	require.Equal(t, 3, srv.count("getSignatureStatuses"))
}

func TestConfirmTransactionRejected(t *testing.T) {
	_, url := newRPCServer(t, map[string]func(int) interface{}{
		"getSignatureStatuses": func(int) interface{} {
			return withContext([]interface{}{map[string]interface{}{
				"slot":               5,
				"confirmations":      nil,
				"err":                map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 1}}},
				"confirmationStatus": "processed",
			}})
		},
	})
	client := connect(t, url)

	result, err := client.ConfirmTransaction(context.Background(), solana.Signature{1},
		&models.BlockReference{LastValidBlockHeight: 200})
	require.NoError(t, err)
	require.Contains(t, result.Err, "InstructionError")
}

func TestConfirmTransactionExpires(t *testing.T) {
	_, url := newRPCServer(t, map[string]func(int) interface{}{
		"getSignatureStatuses": func(int) interface{} { return withContext([]interface{}{nil}) },
		"getBlockHeight":       func(int) interface{} { return 201 },
	})
	client := connect(t, url)

	result, err := client.ConfirmTransaction(context.Background(), solana.Signature{1},
		&models.BlockReference{LastValidBlockHeight: 200})
	require.NoError(t, err)
	require.Equal(t, blockchain.BlockHeightExceeded, result.Err)
}

func TestCallsFailBeforeRun(t *testing.T) {
	client := blockchain.NewSolana("http://127.0.0.1:1", time.Second, logger.NewNop())
	_, err := client.GetLatestBlockhash(context.Background())
	require.Error(t, err)
}
