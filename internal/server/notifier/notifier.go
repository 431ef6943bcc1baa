// Package notifier broadcasts change pings to SSE listeners.
package notifier

import (
	"sync"

	"github.com/leapstack-labs/sqlstream/internal/stream"
)

// Notifier pings every subscribed listener when the set of sessions
// changes. Listeners receive an empty struct and should re-read the
// journal. It implements stream.Observer.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan struct{}]struct{}
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan struct{}]struct{}),
	}
}

// Subscribe returns a channel that receives pings.
// The caller must call Unsubscribe when done.
func (n *Notifier) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// Broadcast pings all listeners. A listener that already has a pending
// ping is skipped.
func (n *Notifier) Broadcast() {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// SessionStarted implements stream.Observer.
func (n *Notifier) SessionStarted(stream.SessionInfo) { n.Broadcast() }

// TickCompleted implements stream.Observer. Only failed ticks ping, so
// listeners see error counts change without a ping per row.
func (n *Notifier) TickCompleted(_ stream.SessionInfo, _ stream.State, _ int, err error) {
	if err != nil {
		n.Broadcast()
	}
}

// TickSkipped implements stream.Observer.
func (n *Notifier) TickSkipped(stream.SessionInfo) {}

// SessionStopped implements stream.Observer.
func (n *Notifier) SessionStopped(stream.SessionInfo) { n.Broadcast() }

var _ stream.Observer = (*Notifier)(nil)
