package opt

import "golang.org/x/time/rate"

// ProgressFunc observes pipeline stages. done/total count units within the
// stage; implementations must be cheap since constraint generation calls
// them in a tight loop.
type ProgressFunc func(stage string, done, total int)

// Throttled wraps fn so at most perSec events per second pass through.
// Stage-final events (done == total) always pass so consumers see every
// stage complete.
func Throttled(fn ProgressFunc, perSec rate.Limit) ProgressFunc {
	if fn == nil {
		return nil
	}
	lim := rate.NewLimiter(perSec, 1)
	return func(stage string, done, total int) {
		if done >= total || lim.Allow() {
			fn(stage, done, total)
		}
	}
}
