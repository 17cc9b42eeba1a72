// Package testing switches the process into test mode when imported for side
// effects, so command packages and config loading never reach real backends.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var defaults = map[string]string{
	"CONFORMAPRO_TEST_MODE": "1",
	"JWT_SECRET":            "test-secret-test-secret-test-secret",
	"LOG_FORMAT":            "json",
	"LOG_LEVEL":             "error",
}

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		for key, value := range defaults {
			if _, ok := os.LookupEnv(key); !ok {
				_ = os.Setenv(key, value)
			}
		}
		_ = os.Setenv("CONFORMAPRO_TEST_MODE", "1")
	})
}

func init() {
	ensureTestMode()
}

// TestMain can be delegated to by packages that need test mode before any
// other init code runs.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
