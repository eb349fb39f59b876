package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gravito-framework/quasar-sampler/pkg/config"
	"github.com/gravito-framework/quasar-sampler/pkg/probes"
	"github.com/gravito-framework/quasar-sampler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeMemProbe struct {
	mu     sync.Mutex
	sample types.MemorySwapSample
	err    error
	calls  int
}

func (f *fakeMemProbe) Sample() (types.MemorySwapSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.sample, f.err
}

func (f *fakeMemProbe) set(sample types.MemorySwapSample, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sample, f.err = sample, err
}

func (f *fakeMemProbe) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGPUProbe struct {
	mu     sync.Mutex
	sample types.GPUSample
	err    error
	closed bool
}

func (f *fakeGPUProbe) Sample() (types.GPUSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sample, f.err
}

func (f *fakeGPUProbe) set(sample types.GPUSample, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sample, f.err = sample, err
}

func (f *fakeGPUProbe) Name() string { return "fake" }

func (f *fakeGPUProbe) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeHostProbe struct{}

func (fakeHostProbe) GetInfo() types.HostInfo {
	return types.HostInfo{Hostname: "worker-1", Platform: "linux", PID: 4242}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Service = "render-farm"
	cfg.Publish = false
	return cfg
}

var (
	goodMem = types.NewMemorySwapSample(16_000_000, 4_000_000, 2_000_000, 500_000)
	goodGPU = types.GPUSample{LoadPercent: 45, MemLoadPercent: 12, MemTotalMiB: 8192, MemUsedMiB: 2048}
)

func newTestAgent(t *testing.T, cfg *config.Config, opts ...Option) (*Agent, *fakeMemProbe, *fakeGPUProbe) {
	t.Helper()
	mem := &fakeMemProbe{sample: goodMem}
	gpu := &fakeGPUProbe{sample: goodGPU}
	opts = append([]Option{
		WithMemorySwapProbe(mem),
		WithGPUProbe(gpu),
		WithHostProbe(fakeHostProbe{}),
	}, opts...)

	a, err := New(cfg, opts...)
	require.NoError(t, err)
	return a, mem, gpu
}

func TestNew(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.Interval = 0
		_, err := New(cfg, WithHostProbe(fakeHostProbe{}))
		var cfgErr *config.ConfigError
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("node id from hostname", func(t *testing.T) {
		a, _, _ := newTestAgent(t, testConfig())
		assert.Equal(t, "worker-1-4242", a.NodeID())
	})

	t.Run("node id from configured name", func(t *testing.T) {
		cfg := testConfig()
		cfg.Name = "gpu-box"
		a, _, _ := newTestAgent(t, cfg)
		assert.Equal(t, "gpu-box-4242", a.NodeID())
	})

	t.Run("invalid redis url", func(t *testing.T) {
		cfg := testConfig()
		cfg.Publish = true
		cfg.RedisURL = "http://zenith"
		_, err := New(cfg, WithHostProbe(fakeHostProbe{}))
		assert.Error(t, err)
	})
}

func TestNewGPUProbe(t *testing.T) {
	assert.Nil(t, NewGPUProbe(config.GPUConfig{Backend: config.GPUBackendNone}))

	smi := NewGPUProbe(config.GPUConfig{Backend: config.GPUBackendSMI, Command: "nvidia-smi", Index: -1})
	require.NotNil(t, smi)
	assert.Equal(t, "nvidia-smi", smi.Name())

	nvml := NewGPUProbe(config.GPUConfig{Backend: config.GPUBackendNVML, Index: 0})
	require.NotNil(t, nvml)
	assert.Equal(t, "nvml", nvml.Name())
}

func TestPayload(t *testing.T) {
	t.Run("no sample yet", func(t *testing.T) {
		a, _, _ := newTestAgent(t, testConfig())
		p := a.Payload()
		assert.Equal(t, types.StatusError, p.Runtime.Status)
		assert.Nil(t, p.Memory)
		assert.Nil(t, p.GPU)
	})

	t.Run("healthy", func(t *testing.T) {
		a, _, _ := newTestAgent(t, testConfig(), WithVersion("1.2.3"))
		a.collectMemory()
		a.collectGPU()

		p := a.Payload()
		assert.Equal(t, "worker-1-4242", p.ID)
		assert.Equal(t, "render-farm", p.Service)
		assert.Equal(t, "1.2.3", p.Version)
		assert.Equal(t, "worker-1", p.Host.Hostname)
		assert.Equal(t, types.StatusOnline, p.Runtime.Status)
		assert.Empty(t, p.Runtime.Errors)
		require.NotNil(t, p.Memory)
		assert.Equal(t, goodMem, *p.Memory)
		require.NotNil(t, p.GPU)
		assert.Equal(t, goodGPU, *p.GPU)
		assert.NotZero(t, p.Timestamp)
	})
}

func TestCollectMemoryKeepsLastGood(t *testing.T) {
	a, mem, _ := newTestAgent(t, testConfig())
	a.collectMemory()

	mem.set(types.MemorySwapSample{}, errors.New("sysctl failed"))
	a.collectMemory()

	p := a.Payload()
	require.NotNil(t, p.Memory)
	assert.Equal(t, goodMem, *p.Memory)
	assert.Equal(t, types.StatusDegraded, p.Runtime.Status)
	assert.Equal(t, []string{probeMemorySwap}, p.Runtime.Errors)

	mem.set(goodMem, nil)
	a.collectMemory()
	p = a.Payload()
	assert.Equal(t, types.StatusOnline, p.Runtime.Status)
	assert.Empty(t, p.Runtime.Errors)
}

func TestCollectMemoryPartialSample(t *testing.T) {
	a, mem, _ := newTestAgent(t, testConfig())
	partial := types.NewMemorySwapSample(16_000_000, types.Unknown, 0, 0)
	mem.set(partial, nil)
	a.collectMemory()

	p := a.Payload()
	require.NotNil(t, p.Memory)
	assert.Equal(t, types.Unknown, p.Memory.MemUsedKiB)
	assert.Equal(t, types.StatusDegraded, p.Runtime.Status)
	assert.Equal(t, []string{probeMemorySwap}, p.Runtime.Errors)
}

func TestCollectGPU(t *testing.T) {
	t.Run("malformed output keeps last good", func(t *testing.T) {
		a, _, gpu := newTestAgent(t, testConfig())
		a.collectMemory()
		a.collectGPU()

		gpu.set(types.GPUSample{}, &probes.ProbeError{Kind: probes.ErrMalformedOutput, Source: "nvidia-smi", Raw: "No devices were found"})
		a.collectGPU()

		p := a.Payload()
		require.NotNil(t, p.GPU)
		assert.Equal(t, goodGPU, *p.GPU)
		assert.Equal(t, types.StatusDegraded, p.Runtime.Status)
		assert.Equal(t, []string{probeGPU}, p.Runtime.Errors)
	})

	t.Run("tool unavailable is warned once", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		a, _, gpu := newTestAgent(t, testConfig(), WithLogger(zap.New(core)))
		a.collectMemory()
		a.collectGPU()

		gpu.set(types.GPUSample{}, &probes.ProbeError{Kind: probes.ErrToolUnavailable, Source: "nvidia-smi"})
		for i := 0; i < 3; i++ {
			a.collectGPU()
		}

		p := a.Payload()
		assert.Nil(t, p.GPU)
		assert.Equal(t, types.StatusOnline, p.Runtime.Status)

		unavailable := logs.FilterMessage("GPU probe unavailable, GPU figures omitted")
		assert.Equal(t, 1, unavailable.Len())
		assert.Equal(t, zapcore.WarnLevel, unavailable.All()[0].Level)
		assert.Equal(t, 2, logs.FilterMessage("GPU probe unavailable").Len())

		gpu.set(goodGPU, nil)
		a.collectGPU()
		assert.Equal(t, 1, logs.FilterMessage("GPU probe available").Len())
		assert.NotNil(t, a.Payload().GPU)
	})
}

func TestHeartbeatKeyAndTTL(t *testing.T) {
	cfg := testConfig()
	a, _, _ := newTestAgent(t, cfg)
	assert.Equal(t, "gravito:quasar:sampler:render-farm:worker-1-4242", a.heartbeatKey())
	assert.Equal(t, 30*time.Second, a.heartbeatTTL())

	cfg.Interval = 20 * time.Second
	assert.Equal(t, time.Minute, a.heartbeatTTL())
}

func TestSampleNowWithoutPublishing(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	a, mem, _ := newTestAgent(t, testConfig(), WithLogger(zap.New(core)))

	require.NoError(t, a.SampleNow(context.Background()))
	assert.Equal(t, 1, mem.count())

	samples := logs.FilterMessage("Sample").All()
	require.Len(t, samples, 1)
	fields := samples[0].ContextMap()
	assert.Equal(t, types.StatusOnline, fields["status"])
	assert.Equal(t, uint64(25), fields["memUsedPercent"])
	assert.Equal(t, uint64(45), fields["gpuLoadPercent"])
}

func TestStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	cfg.GPUInterval = 10 * time.Millisecond
	a, mem, gpu := newTestAgent(t, cfg)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	assert.Error(t, a.Start(ctx))

	assert.Eventually(t, func() bool { return mem.count() >= 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Stop(ctx))
	require.NoError(t, a.Stop(ctx))

	gpu.mu.Lock()
	assert.True(t, gpu.closed)
	gpu.mu.Unlock()
}

func TestStartWithoutGPU(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	a, err := New(cfg,
		WithMemorySwapProbe(&fakeMemProbe{sample: goodMem}),
		WithGPUProbe(nil),
		WithHostProbe(fakeHostProbe{}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	assert.Nil(t, a.Payload().GPU)
	require.NoError(t, a.Stop(ctx))
}

func TestEnableRemoteControlRequiresPublishing(t *testing.T) {
	a, _, _ := newTestAgent(t, testConfig())
	assert.Error(t, a.EnableRemoteControl(context.Background()))
}

func TestEnableRemoteControlUnreachableRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Publish = true
	cfg.RedisURL = "redis://127.0.0.1:1"
	a, _, _ := newTestAgent(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := a.EnableRemoteControl(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect command subscriber")
	assert.Nil(t, a.commandListener)
}
