package app

import (
	"os"
	"strconv"
)

// TestModeEnv names the variable that makes serve and worker exit before
// touching Postgres or Redis.
const TestModeEnv = "RFPDESK_TEST_MODE"

// InTestMode reports whether TestModeEnv holds a true value. It is read on
// every call so tests may toggle it with t.Setenv.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
