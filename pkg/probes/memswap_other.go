//go:build !linux && !freebsd && !netbsd && !openbsd

package probes

import (
	"github.com/gravito-framework/quasar-sampler/pkg/types"
	"github.com/shirou/gopsutil/v3/mem"
)

// gopsutilProbe covers every OS without a native variant.
type gopsutilProbe struct{}

func newPlatformMemorySwapProbe(o *options) MemorySwapProbe {
	return gopsutilProbe{}
}

func (gopsutilProbe) Sample() (types.MemorySwapSample, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return types.MemorySwapSample{}, sourceUnavailable("gopsutil mem.VirtualMemory", err)
	}

	memUsed := uint64(0)
	if v.Total > v.Available {
		memUsed = v.Total - v.Available
	}

	// Swap is optional: report none rather than fail the whole sample.
	var swapTotal, swapUsed uint64
	if s, err := mem.SwapMemory(); err == nil {
		swapTotal, swapUsed = s.Total>>10, s.Used>>10
	}

	return types.NewMemorySwapSample(v.Total>>10, memUsed>>10, swapTotal, swapUsed), nil
}
