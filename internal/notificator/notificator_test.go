package notificator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/core-coin/praemium/pkg/logger"
)

type senderStub struct {
	messages []string
	panics   bool
}

func (s *senderStub) SendNotification(message string) {
	if s.panics {
		panic("boom")
	}
	s.messages = append(s.messages, message)
}

func TestNotificatorLifecycle(t *testing.T) {
	sender := &senderStub{}
	n := NewNotificator(logger.NewNop(), sender)
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return clock }

	n.Loading("a", "Staking 2 assets")
	n.Loading("b", "Claiming rewards")
	require.Equal(t, 2, n.Pending())
	require.Empty(t, sender.messages, "loading is not forwarded")

	clock = clock.Add(3 * time.Second)
	require.Equal(t, 3*time.Second, n.finish("a"))
	require.Equal(t, 1, n.Pending())

	n.Success("b", "Claimed")
	n.Error("c", "Unstake failed")
	require.Zero(t, n.Pending())
	require.Equal(t, []string{"✅ Claimed", "❌ Unstake failed"}, sender.messages)
}

func TestNotificatorRecoversSenderPanic(t *testing.T) {
	good := &senderStub{}
	n := NewNotificator(logger.NewNop(), &senderStub{panics: true}, good)

	require.NotPanics(t, func() {
		n.Success("a", "Staked")
	})
	require.Equal(t, []string{"✅ Staked"}, good.messages)
}
