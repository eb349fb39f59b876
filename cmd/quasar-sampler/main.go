// Quasar Sampler - memory, swap and GPU sampling for the Gravito infrastructure monitor
//
// Samples physical memory and swap from the kernel (procfs on Linux, sysctl
// on the BSDs) and GPU load from nvidia-smi, and publishes heartbeats to
// Zenith over Redis.
//
// Usage:
//
//	QUASAR_SERVICE=render-farm quasar-sampler run
//
// Or a single reading:
//
//	quasar-sampler sample --format json
package main

import (
	"os"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
