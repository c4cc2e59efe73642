package notificator

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
)

// Sender delivers a text message to an operator channel.
type Sender interface {
	SendNotification(message string)
}

// Notificator reports the life cycle of user actions. Every event is logged;
// outcomes are also forwarded to the senders.
type Notificator struct {
	logger  *logger.Logger
	senders []Sender

	mu      sync.Mutex
	pending map[string]time.Time
	now     func() time.Time
}

var _ models.NotificationService = (*Notificator)(nil)

func NewNotificator(logger *logger.Logger, senders ...Sender) *Notificator {
	return &Notificator{
		logger:  logger,
		senders: senders,
		pending: make(map[string]time.Time),
		now:     time.Now,
	}
}

// safeCall runs a function with panic recovery
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorw("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (n *Notificator) Loading(id, message string) {
	n.mu.Lock()
	n.pending[id] = n.now()
	n.mu.Unlock()
	n.logger.Infow(message, "id", id, "status", "loading")
}

func (n *Notificator) Success(id, message string) {
	n.logger.Infow(message, "id", id, "status", "success", "elapsed", n.finish(id))
	n.forward("✅ " + message)
}

func (n *Notificator) Error(id, message string) {
	n.logger.Errorw(message, "id", id, "status", "error", "elapsed", n.finish(id))
	n.forward("❌ " + message)
}

// finish returns the time since Loading for id, zero for ids that never loaded.
func (n *Notificator) finish(id string) time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	started, ok := n.pending[id]
	if !ok {
		return 0
	}
	delete(n.pending, id)
	return n.now().Sub(started)
}

// Pending returns the number of ids still loading.
func (n *Notificator) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

func (n *Notificator) forward(message string) {
	for _, sender := range n.senders {
		n.safeCall(func() { sender.SendNotification(message) }, "sendNotification")
	}
}
