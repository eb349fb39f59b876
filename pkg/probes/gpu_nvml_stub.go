//go:build !linux || !cgo

package probes

import (
	"errors"

	"github.com/gravito-framework/quasar-sampler/pkg/types"
)

var errNVMLUnsupported = errors.New("NVML support requires linux and cgo")

// NVMLProbe is unavailable in this build; every sample reports ErrToolUnavailable.
type NVMLProbe struct {
	index int
}

// NewNVMLProbe creates a probe for the GPU at index.
func NewNVMLProbe(index int) *NVMLProbe {
	return &NVMLProbe{index: index}
}

// Name returns the backend name
func (p *NVMLProbe) Name() string { return "nvml" }

// Sample always fails with ErrToolUnavailable.
func (p *NVMLProbe) Sample() (types.GPUSample, error) {
	return types.GPUSample{}, toolUnavailable("nvml", errNVMLUnsupported)
}

// Close is a no-op.
func (p *NVMLProbe) Close() error { return nil }
