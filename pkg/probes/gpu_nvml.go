//go:build linux && cgo

package probes

import (
	"errors"
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/gravito-framework/quasar-sampler/pkg/types"
)

// NVMLProbe samples one GPU through the NVIDIA Management Library, without
// starting a process per sample. The library is initialized on first use and
// retried on later calls until it loads.
type NVMLProbe struct {
	mu          sync.Mutex
	index       int
	initialized bool
}

// NewNVMLProbe creates a probe for the GPU at index.
func NewNVMLProbe(index int) *NVMLProbe {
	return &NVMLProbe{index: index}
}

// Name returns the backend name
func (p *NVMLProbe) Name() string { return "nvml" }

// Sample reads utilization and memory of the configured GPU.
func (p *NVMLProbe) Sample() (types.GPUSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		if ret := nvml.Init(); ret != nvml.SUCCESS {
			return types.GPUSample{}, toolUnavailable("nvml", errors.New(nvml.ErrorString(ret)))
		}
		p.initialized = true
	}

	dev, ret := nvml.DeviceGetHandleByIndex(p.index)
	if ret != nvml.SUCCESS {
		return types.GPUSample{}, counterReadFailed("nvml", fmt.Errorf("get handle index=%d: %s", p.index, nvml.ErrorString(ret)))
	}

	util, ret := dev.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return types.GPUSample{}, counterReadFailed("nvml", fmt.Errorf("utilization: %s", nvml.ErrorString(ret)))
	}

	mem, ret := dev.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return types.GPUSample{}, counterReadFailed("nvml", fmt.Errorf("memory info: %s", nvml.ErrorString(ret)))
	}

	return types.GPUSample{
		LoadPercent:    uint64(util.Gpu),
		MemLoadPercent: uint64(util.Memory),
		MemTotalMiB:    mem.Total >> 20,
		MemUsedMiB:     mem.Used >> 20,
	}, nil
}

// Close shuts the library down if it was initialized.
func (p *NVMLProbe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	p.initialized = false
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml shutdown: %s", nvml.ErrorString(ret))
	}
	return nil
}
