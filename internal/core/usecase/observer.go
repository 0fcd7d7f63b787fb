package usecase

import "time"

// Observer receives pipeline measurements. The metrics package implements it.
type Observer interface {
	ObserveDocument(outcome string, duration time.Duration)
	ObservePoll(attempts int, classified bool)
	ObserveGate(fired bool)
	ObserveNotification(err error)
}

type noopObserver struct{}

func (noopObserver) ObserveDocument(string, time.Duration) {}
func (noopObserver) ObservePoll(int, bool)                 {}
func (noopObserver) ObserveGate(bool)                      {}
func (noopObserver) ObserveNotification(error)             {}

func observerOrNoop(o Observer) Observer {
	if o == nil {
		return noopObserver{}
	}
	return o
}
