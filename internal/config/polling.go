package config

import (
	"sync"
	"time"
)

// Defaults for the status polling loops backing the SSE endpoints.
// Matching knobs exist for tests via SetPolling.
var (
	pollingMu       sync.RWMutex
	pollingInterval = 1 * time.Second
	pollingTimeout  = 300 * time.Second
)

// GetPollingInterval returns the delay between remote status polls
func GetPollingInterval() time.Duration {
	pollingMu.RLock()
	defer pollingMu.RUnlock()
	return pollingInterval
}

// GetPollingTimeout returns the wall-clock budget for a polling loop
func GetPollingTimeout() time.Duration {
	pollingMu.RLock()
	defer pollingMu.RUnlock()
	return pollingTimeout
}

// SetPolling temporarily changes the polling knobs and returns a restore function
// This is primarily used for testing
func SetPolling(interval, timeout time.Duration) func() {
	pollingMu.Lock()
	prevInterval, prevTimeout := pollingInterval, pollingTimeout
	pollingInterval, pollingTimeout = interval, timeout
	pollingMu.Unlock()

	return func() {
		pollingMu.Lock()
		pollingInterval, pollingTimeout = prevInterval, prevTimeout
		pollingMu.Unlock()
	}
}
