//go:build !linux && !darwin && !windows

package logger

// isTerminal disables colors on platforms without a terminal probe.
func isTerminal(uintptr) bool {
	return false
}
