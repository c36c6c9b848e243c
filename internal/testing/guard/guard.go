package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CHALKBOARD_TEST_MODE") == "" {
			_ = os.Setenv("CHALKBOARD_TEST_MODE", "1")
		}
	})
}
