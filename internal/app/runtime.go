package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// TestModeEnv disables network side effects of the entrypoints and the
// request logger when set to a true value.
const TestModeEnv = "CRM_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func readTestMode() {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	testMode.Store(err == nil && on)
}

// InTestMode reports whether the process runs under tests.
func InTestMode() bool {
	testModeOnce.Do(readTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the flag after environment changes.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	readTestMode()
}
