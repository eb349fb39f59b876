//go:build netbsd

package probes

func newPlatformMemorySwapProbe(o *options) MemorySwapProbe {
	return newNetBSDUvmProbe(unixSysctl{}, netbsdSwapctl())
}
