package metrics

import "time"

// ConnObserver receives connection-layer events: attempts, cold-start rides,
// token refreshes.
type ConnObserver interface {
	ObserveOpen(attempts int, elapsed time.Duration)
	RecordOpenFailure()
	RecordTokenRefresh()
}

// FeedObserver receives change-feed events from the audit poller and hub.
type FeedObserver interface {
	IncSubscribers()
	DecSubscribers()
	RecordRecords(n int)
	ObservePollLag(lag time.Duration)
}

// NopConnObserver is used where metrics are not wired (tests, provisioning).
type NopConnObserver struct{}

func (NopConnObserver) ObserveOpen(int, time.Duration) {}
func (NopConnObserver) RecordOpenFailure()             {}
func (NopConnObserver) RecordTokenRefresh()            {}

type NopFeedObserver struct{}

func (NopFeedObserver) IncSubscribers()             {}
func (NopFeedObserver) DecSubscribers()             {}
func (NopFeedObserver) RecordRecords(int)           {}
func (NopFeedObserver) ObservePollLag(time.Duration) {}
