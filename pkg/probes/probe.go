// Package probes provides the memory/swap and GPU samplers.
//
// Each probe takes one synchronous reading per Sample call. Probes keep small
// per-instance state (read buffers, lazily opened kernel handles) and are meant
// to be driven from a single polling goroutine.
package probes

import (
	"sync"

	"github.com/gravito-framework/quasar-sampler/pkg/types"
	"go.uber.org/zap"
)

// MemorySwapProbe samples physical memory and swap usage.
type MemorySwapProbe interface {
	Sample() (types.MemorySwapSample, error)
}

// GPUProbe samples utilization and memory of one GPU.
type GPUProbe interface {
	Sample() (types.GPUSample, error)
	Name() string
	Close() error
}

type options struct {
	logger      *zap.Logger
	meminfoPath string
}

// Option configures a MemorySwapProbe
type Option func(*options)

// WithLogger sets the logger used for one-time warnings
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeminfoPath overrides the procfs memory statistics file (Linux only)
func WithMeminfoPath(path string) Option {
	return func(o *options) {
		o.meminfoPath = path
	}
}

// NewMemorySwapProbe returns the memory/swap probe compiled in for the target OS.
func NewMemorySwapProbe(opts ...Option) MemorySwapProbe {
	o := &options{
		logger:      zap.NewNop(),
		meminfoPath: defaultMeminfoPath,
	}
	for _, opt := range opts {
		opt(o)
	}
	return newPlatformMemorySwapProbe(o)
}

var (
	defaultMu       sync.Mutex
	defaultMemSwap  MemorySwapProbe
	defaultGPUProbe GPUProbe
)

// SampleMemorySwap takes a reading with a shared default probe.
// Calls are serialized, so it is safe from several goroutines.
func SampleMemorySwap() (types.MemorySwapSample, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultMemSwap == nil {
		defaultMemSwap = NewMemorySwapProbe()
	}
	return defaultMemSwap.Sample()
}

// SampleGPU takes a reading with a shared default nvidia-smi probe.
func SampleGPU() (types.GPUSample, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultGPUProbe == nil {
		defaultGPUProbe = NewNvidiaSMIProbe()
	}
	return defaultGPUProbe.Sample()
}
