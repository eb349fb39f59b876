//go:build linux

package probes

func newPlatformMemorySwapProbe(o *options) MemorySwapProbe {
	return newProcfsProbe(o.meminfoPath)
}
