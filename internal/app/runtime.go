package app

import (
	"os"
	"strconv"
	"sync"
)

const testModeEnv = "CONFORMAPRO_TEST_MODE"

// InTestMode reports whether binaries should skip connecting to their
// backends. The flag is read once per process.
var InTestMode = sync.OnceValue(func() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && on
})
