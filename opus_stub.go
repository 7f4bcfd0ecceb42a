//go:build noopus || (!darwin && !linux)

package slidecast

// opusAvailable reports Opus availability; always false without the
// native binding.
func opusAvailable() bool { return false }
