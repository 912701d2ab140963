// Package guard flips the application into test mode as a side effect of
// being imported. Test binaries import it so main never starts servers.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TASSILI_TEST_MODE") == "" {
			_ = os.Setenv("TASSILI_TEST_MODE", "1")
		}
	})
}
