//go:build !deadlock

package pool

import "sync"

// guard is the mutex protecting pool membership. Build with -tags deadlock
// to swap in a lock-order checking implementation.
type guard struct {
	sync.Mutex
}
