// Package guard forces test mode when imported, so packages under test never reach
// real Redis, Postgres or the alerts backend during init.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ALERTAS_TEST_MODE") == "" {
			_ = os.Setenv("ALERTAS_TEST_MODE", "1")
		}
	})
}
