// Package testing flips the process into test mode for packages that
// import it for side effects.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("DEWATER_TEST_MODE", "1")
		if os.Getenv("GOTENBERG_URL") == "" {
			_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
		}
		// Keep unit tests off the real providers.
		_ = os.Unsetenv("SENDGRID_API_KEY")
		_ = os.Unsetenv("GCS_BUCKET")
	})
}

func init() {
	ensureTestMode()
}

// TestMain can be delegated to by packages that define their own.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
