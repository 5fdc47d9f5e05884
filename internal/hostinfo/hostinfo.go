package hostinfo

import "runtime"

// Prober reports the number of logical cores available on the host.
type Prober func() int

// DefaultFallback is used when a prober cannot determine the core count.
const DefaultFallback = 4

// Logical returns the logical core count reported by the prober, falling
// back to a static default when the probe yields a non-positive value. A nil
// prober queries the Go runtime.
func Logical(probe Prober) int {
	if probe == nil {
		probe = runtime.NumCPU
	}
	if n := probe(); n > 0 {
		return n
	}
	return DefaultFallback
}
