package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/praemium/internal/auth"
	"github.com/core-coin/praemium/internal/blockchain/blockchaintest"
	"github.com/core-coin/praemium/internal/client"
	"github.com/core-coin/praemium/internal/http_api"
	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/internal/pipeline"
	"github.com/core-coin/praemium/internal/praemium"
	"github.com/core-coin/praemium/internal/repository/repositorytest"
	"github.com/core-coin/praemium/internal/txbuilder"
	"github.com/core-coin/praemium/internal/wallet"
	"github.com/core-coin/praemium/pkg/logger"
)

const domain = "staking.example"

type metadataStub struct {
	mints []string
}

func (m *metadataStub) FetchOwnedAssets(context.Context, string) ([]*models.OnChainAsset, error) {
	assets := make([]*models.OnChainAsset, 0, len(m.mints))
	for _, mint := range m.mints {
		assets = append(assets, &models.OnChainAsset{Mint: mint, Name: "Asset"})
	}
	return assets, nil
}

type nopNotifier struct{}

func (nopNotifier) Loading(string, string) {}
func (nopNotifier) Success(string, string) {}
func (nopNotifier) Error(string, string) {}

type stack struct {
	now      time.Time
	network  *blockchaintest.Network
	owner    *wallet.Keypair
	mints    []string
	client   *client.Client
	pipeline *pipeline.Pipeline
}

func newStack(t *testing.T) *stack {
	t.Helper()
	authority, err := wallet.Generate()
	require.NoError(t, err)
	owner, err := wallet.Generate()
	require.NoError(t, err)

	s := &stack{
		now:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		network: blockchaintest.NewNetwork(),
		owner:   owner,
		mints:   []string{solana.NewWallet().PublicKey().String(), solana.NewWallet().PublicKey().String()},
	}
	sort.Strings(s.mints)

	builder := txbuilder.NewBuilder(s.network, authority, solana.NewWallet().PublicKey(), 6, logger.NewNop())
	app := praemium.NewPraemium(
		praemium.Config{},
		repositorytest.NewDB(t),
		s.network,
		&metadataStub{mints: s.mints},
		builder,
		nopNotifier{},
		decimal.RequireFromString("0.0001"),
		logger.NewNop(),
		praemium.WithClock(func() time.Time { return s.now }),
	)
	sessions, err := auth.NewSessionManager(auth.SessionConfig{
		Secret:    "test-secret",
		TTL:       time.Hour,
		Domain:    domain,
		Statement: "Sign in to stake.",
	}, logger.NewNop())
	require.NoError(t, err)

	srv := httptest.NewServer(http_api.NewHTTPServer(app, sessions, nil, http_api.Config{}, logger.NewNop()).Handler())
	t.Cleanup(srv.Close)

	s.client = client.NewClient(srv.URL, logger.NewNop())
	gate := auth.NewGate(s.client, owner, domain, "Sign in to stake.", logger.NewNop())
	s.pipeline = pipeline.NewPipeline(
		pipeline.Config{MaxRetries: 3, Cluster: "devnet"},
		s.client,
		s.network,
		owner,
		authority,
		gate,
		nopNotifier{},
		logger.NewNop(),
	)
	return s
}

func TestRequestsWithoutSessionAreUnauthorized(t *testing.T) {
	s := newStack(t)

	_, err := s.client.Balance(context.Background())
	require.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = s.client.BuildTransaction(context.Background(), models.ActionStake, s.mints)
	require.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestSignInThroughGate(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	gate := auth.NewGate(s.client, s.owner, domain, "Sign in to stake.", logger.NewNop())

	require.NoError(t, gate.Reauthenticate(ctx))
	require.Equal(t, s.owner.PublicKey().String(), s.client.Owner())

	portfolio, err := s.client.Login(ctx)
	require.NoError(t, err)
	require.Len(t, portfolio.Unstaked, 2)

	// Messages for another domain are refused
	other := auth.NewGate(s.client, s.owner, "phishing.example", "", logger.NewNop())
	require.ErrorIs(t, other.Reauthenticate(ctx), models.ErrUnauthorized)
}

func TestStakeUnstakeClaimEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	// The first build is rejected without a session; the gate signs in and the
	// pipeline rebuilds
	owner := s.owner.PublicKey().String()
	s.network.Hold(owner, true, s.mints...)
	receipt, err := s.pipeline.Run(ctx, pipeline.Request{Action: models.ActionStake, Mints: s.mints})
	require.NoError(t, err)
	require.Equal(t, 2, receipt.Attempts)
	require.EqualValues(t, 2, receipt.Result.Changed)

	portfolio, err := s.client.Assets(ctx)
	require.NoError(t, err)
	require.Len(t, portfolio.Staked, 2)

	s.now = s.now.Add(100 * time.Second)
	balance, err := s.client.Balance(ctx)
	require.NoError(t, err)
	require.True(t, balance.Balance.Equal(decimal.RequireFromString("0.02")), balance.Balance.String())
	require.EqualValues(t, 2, balance.StakedCount)

	s.network.Hold(owner, false, s.mints...)
	receipt, err = s.pipeline.Run(ctx, pipeline.Request{Action: models.ActionUnstake, Mints: s.mints})
	require.NoError(t, err)
	require.Equal(t, 1, receipt.Attempts)

	receipt, err = s.pipeline.Run(ctx, pipeline.Request{Action: models.ActionClaim})
	require.NoError(t, err)
	require.True(t, receipt.Amount.Equal(decimal.RequireFromString("0.02")))
	require.EqualValues(t, 1, receipt.Result.Changed)
	require.True(t, receipt.Result.Balance.IsZero())

	// Unstaking the same assets again is refused by the server before any network call
	sent := s.network.Count("SendTransaction")
	_, err = s.pipeline.Run(ctx, pipeline.Request{Action: models.ActionUnstake, Mints: s.mints})
	require.ErrorIs(t, err, models.ErrInvalidRequest)
	require.Equal(t, sent, s.network.Count("SendTransaction"))
}

func TestDecodeErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := client.NewClient(srv.URL, logger.NewNop())
	_, err := c.RequestNonce(context.Background())
	require.Error(t, err)
	require.Equal(t, models.KindInternal, models.KindOf(err))
}
