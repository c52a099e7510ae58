//go:build deadlock

package pool

import "github.com/sasha-s/go-deadlock"

// guard is the mutex protecting pool membership, instrumented to report
// lock-order inversions and locks held for too long.
type guard struct {
	deadlock.Mutex
}
