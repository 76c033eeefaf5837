package filesystem

import "sync/atomic"

// Observer receives timing and retry events for filesystem calls. The
// metrics package implements it, which keeps filesystem free of a
// dependency on metrics.
type Observer interface {
	// ObserveOperation is called once per helper call. operation is one of
	// "stat", "read", "readdir", "write"; volume is the resolver label.
	ObserveOperation(volume, operation string, durationSeconds float64, err error)

	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveRetryDuration(retryOp, volume string, durationSeconds float64)
	ObserveStaleError(retryOp, volume string)
}

type observerHolder struct{ Observer }

var currentObserver atomic.Pointer[observerHolder]

// SetObserver installs the process-wide observer. Passing nil disables
// reporting.
func SetObserver(o Observer) {
	if o == nil {
		currentObserver.Store(nil)
		return
	}
	currentObserver.Store(&observerHolder{o})
}

// observe returns the installed observer or nil.
func observe() Observer {
	if h := currentObserver.Load(); h != nil {
		return h.Observer
	}
	return nil
}
