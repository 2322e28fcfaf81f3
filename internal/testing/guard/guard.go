package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SOCIETYLEDGER_TEST_MODE") == "" {
			_ = os.Setenv("SOCIETYLEDGER_TEST_MODE", "1")
		}
	})
}
