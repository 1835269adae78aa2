// File: internal/agent/common_test.go
package agent

import (
	"sync"
	"time"
)

// waitTimeout reports whether wg finished before the timeout elapsed.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
