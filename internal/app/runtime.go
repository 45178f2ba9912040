package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// RENT_TEST_MODE is set by the testing package so that importing a binary's
// main package under `go test` does not open connections or bind ports.
const testModeEnv = "RENT_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(err == nil && on)
}

// InTestMode reports whether binaries should skip startup.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the flag after the environment changes.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}
