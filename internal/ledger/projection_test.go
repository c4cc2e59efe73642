package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/praemium/internal/ledger"
	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/internal/repository/repositorytest"
	"github.com/core-coin/praemium/pkg/logger"
)

func TestProjectionMatchesNextCheckpoint(t *testing.T) {
	repo := repositorytest.NewDB(t)
	clk := newClock()
	l := ledger.NewLedger(repo, rate, logger.NewNop(), ledger.WithClock(clk.Now))
	ctx := context.Background()

	_, err := l.Checkpoint(ctx, "owner-1")
	require.NoError(t, err)
	stake(t, repo, "owner-1", "mint-a", "mint-b", "mint-c")

	view, err := l.Balance(ctx, "owner-1")
	require.NoError(t, err)
	projection := ledger.NewProjection(view)
	require.True(t, projection.PerSecond().Equal(decimal.RequireFromString("0.0003")))

	clk.Advance(250 * time.Second)
	projected := projection.At(clk.Now())

	next, err := l.Balance(ctx, "owner-1")
	require.NoError(t, err)
	require.True(t, projected.Equal(next.Balance), "projected %s, checkpoint %s", projected, next.Balance)
}

func TestProjectionReconcile(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	projection := ledger.NewProjection(&models.BalanceView{
		Balance:     decimal.NewFromInt(1),
		StakedCount: 1,
		RatePerSec:  rate,
		AsOf:        asOf,
	})
	require.True(t, projection.At(asOf.Add(10*time.Second)).Equal(decimal.RequireFromString("1.001")))

	projection.Reconcile(&models.BalanceView{Balance: decimal.Zero, RatePerSec: rate, AsOf: asOf})
	require.True(t, projection.At(asOf.Add(time.Hour)).IsZero())
}
