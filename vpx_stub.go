//go:build novpx || (!darwin && !linux)

package slidecast

// vpxAvailable reports VP8/VP9 availability; always false without the
// native binding.
func vpxAvailable() bool { return false }
