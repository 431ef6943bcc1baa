package stream

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/sqlstream/pkg/core"
)

// Feed is the merged output of a set of sessions.
//
// Each session's updates arrive in that session's own order; there is no
// ordering between sessions. Errors from one session never stop another.
// The events channel is closed once every session has stopped.
type Feed struct {
	sessions []*Session
	events   chan core.Update
	parent   context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	cancelled atomic.Bool
}

// Merge starts every session and relays their updates onto one feed. The
// feed stops when ctx is cancelled or Cancel is called.
func Merge(parent context.Context, sessions ...*Session) *Feed {
	ctx, cancel := context.WithCancel(parent)
	f := &Feed{
		sessions: sessions,
		events:   make(chan core.Update, len(sessions)),
		parent:   parent,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	emit := func(u core.Update) {
		select {
		case f.events <- u:
		case <-ctx.Done():
		}
	}

	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error {
			s.Run(ctx, emit)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(f.events)
		close(f.done)
	}()
	return f
}

// Events returns the merged update channel.
func (f *Feed) Events() <-chan core.Update {
	return f.events
}

// Sessions returns the sessions feeding this feed.
func (f *Feed) Sessions() []*Session {
	return f.sessions
}

// Done is closed after every session has stopped.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Cancel stops every session and returns once all of them have exited.
// No backend call is started after Cancel returns. It is safe to call
// more than once.
func (f *Feed) Cancel() {
	f.cancelled.Store(true)
	f.cancel()
	<-f.done
}

// Err reports why the feed ended: nil while it is running or when it was
// stopped by Cancel, otherwise the error of the context passed to Merge.
func (f *Feed) Err() error {
	select {
	case <-f.done:
	default:
		return nil
	}
	if f.cancelled.Load() {
		return nil
	}
	return f.parent.Err()
}
