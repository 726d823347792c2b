//go:build !linux

package disruptor

// pinCurrentThread is a no-op where thread affinity is not supported.
func pinCurrentThread(int) error {
	return nil
}
