// Package testing switches the application into test mode when imported by
// test binaries, so routers and entrypoints skip runtime side effects.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		if os.Getenv("CRM_TEST_MODE") == "" {
			_ = os.Setenv("CRM_TEST_MODE", "1")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain can be assigned by packages that want the guard without a blank import.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
