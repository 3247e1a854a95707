package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CMBWORKS_TEST_MODE") == "" {
			_ = os.Setenv("CMBWORKS_TEST_MODE", "1")
		}
	})
}
