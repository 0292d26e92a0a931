package llm

import "time"

// SetAfterFuncForTest swaps the retry backoff timer and returns a restore func
func SetAfterFuncForTest(f func(time.Duration) <-chan time.Time) func() {
	orig := gatewayAfterFunc
	gatewayAfterFunc = f
	return func() { gatewayAfterFunc = orig }
}
