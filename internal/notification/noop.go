package notification

import (
	"context"
	"sync"
)

// Noop records dispatches without sending anything. Tests use it to assert
// what would have been sent.
type Noop struct {
	mu   sync.Mutex
	sent []Request
}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) Dispatch(_ context.Context, req Request) Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, req)
	return Result{Success: true, Simulated: true, MessageID: "noop"}
}

// Sent returns a copy of everything dispatched so far.
func (n *Noop) Sent() []Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Request, len(n.sent))
	copy(out, n.sent)
	return out
}

var _ Dispatcher = (*Noop)(nil)
