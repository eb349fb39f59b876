//go:build openbsd

package probes

func newPlatformMemorySwapProbe(o *options) MemorySwapProbe {
	return newOpenBSDUvmProbe(unixSysctl{})
}
