//go:build freebsd

package probes

import "golang.org/x/sys/unix"

func newPlatformMemorySwapProbe(o *options) MemorySwapProbe {
	return newVMStatsProbe(unixSysctl{}, uint64(unix.Getpagesize()), o.logger)
}
