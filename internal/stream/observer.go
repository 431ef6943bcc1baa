package stream

import "time"

// SessionInfo identifies a session to observers.
type SessionInfo struct {
	ID       string
	RefID    string
	Query    string
	Interval time.Duration
	Capacity int
}

// Observer is notified of session lifecycle events. Implementations must
// be safe for concurrent use and must not block.
type Observer interface {
	SessionStarted(info SessionInfo)
	TickCompleted(info SessionInfo, state State, rows int, err error)
	TickSkipped(info SessionInfo)
	SessionStopped(info SessionInfo)
}

// Observers fans events out to several observers.
type Observers []Observer

// SessionStarted implements Observer.
func (o Observers) SessionStarted(info SessionInfo) {
	for _, obs := range o {
		obs.SessionStarted(info)
	}
}

// TickCompleted implements Observer.
func (o Observers) TickCompleted(info SessionInfo, state State, rows int, err error) {
	for _, obs := range o {
		obs.TickCompleted(info, state, rows, err)
	}
}

// TickSkipped implements Observer.
func (o Observers) TickSkipped(info SessionInfo) {
	for _, obs := range o {
		obs.TickSkipped(info)
	}
}

// SessionStopped implements Observer.
func (o Observers) SessionStopped(info SessionInfo) {
	for _, obs := range o {
		obs.SessionStopped(info)
	}
}

type nopObserver struct{}

func (nopObserver) SessionStarted(SessionInfo)                   {}
func (nopObserver) TickCompleted(SessionInfo, State, int, error) {}
func (nopObserver) TickSkipped(SessionInfo)                      {}
func (nopObserver) SessionStopped(SessionInfo)                   {}
