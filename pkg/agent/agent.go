// Package agent provides the sampler agent: it polls the probes on their own
// cadences and publishes heartbeats to Zenith.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gravito-framework/quasar-sampler/internal/redis"
	"github.com/gravito-framework/quasar-sampler/pkg/config"
	"github.com/gravito-framework/quasar-sampler/pkg/probes"
	"github.com/gravito-framework/quasar-sampler/pkg/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	keyPrefix = "gravito:quasar:sampler:"
	minKeyTTL = 30 * time.Second
)

// Probe names reported in RuntimeInfo.Errors
const (
	probeMemorySwap = "memory_swap"
	probeGPU        = "gpu"
	probeTransport  = "transport_redis_offline"
)

// HostInfoProvider supplies host metadata for the heartbeat
type HostInfoProvider interface {
	GetInfo() types.HostInfo
}

// Agent is the sampler agent
type Agent struct {
	config  *config.Config
	logger  *zap.Logger
	version string

	// Transport Redis (nil when publishing is disabled)
	transport *redis.Client

	// Probes. Each is driven by one goroutine at a time.
	memProbe  probes.MemorySwapProbe
	gpuProbe  probes.GPUProbe
	gpuSet    bool
	hostProbe HostInfoProvider
	memMu     sync.Mutex
	gpuMu     sync.Mutex

	commandListener *CommandListener

	// Last known good samples and the probes that failed on their latest attempt
	nodeID    string
	lastMem   *types.MemorySwapSample
	lastGPU   *types.GPUSample
	failing   map[string]string
	gpuWarned bool

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
}

// Option is a functional option for configuring the Agent
type Option func(*Agent)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithVersion sets the version reported in heartbeats
func WithVersion(version string) Option {
	return func(a *Agent) {
		a.version = version
	}
}

// WithMemorySwapProbe sets a custom memory/swap probe
func WithMemorySwapProbe(probe probes.MemorySwapProbe) Option {
	return func(a *Agent) {
		a.memProbe = probe
	}
}

// WithGPUProbe sets a custom GPU probe. A nil probe disables GPU sampling.
func WithGPUProbe(probe probes.GPUProbe) Option {
	return func(a *Agent) {
		a.gpuProbe = probe
		a.gpuSet = true
	}
}

// WithHostProbe sets a custom host info provider
func WithHostProbe(probe HostInfoProvider) Option {
	return func(a *Agent) {
		a.hostProbe = probe
	}
}

// New creates a new sampler agent
func New(cfg *config.Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		config:   cfg,
		logger:   zap.NewNop(),
		version:  "dev",
		failing:  make(map[string]string),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	if cfg.Publish {
		client, err := redis.NewClientLazy(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid transport redis URL: %w", err)
		}
		a.transport = client
	}

	if a.memProbe == nil {
		a.memProbe = probes.NewMemorySwapProbe(probes.WithLogger(a.logger))
	}
	if !a.gpuSet {
		a.gpuProbe = NewGPUProbe(cfg.GPU)
	}
	if a.hostProbe == nil {
		probe, err := probes.NewHostProbe()
		if err != nil {
			return nil, fmt.Errorf("failed to create host probe: %w", err)
		}
		a.hostProbe = probe
	}

	host := a.hostProbe.GetInfo()
	name := cfg.Name
	if name == "" {
		name = host.Hostname
	}
	a.nodeID = fmt.Sprintf("%s-%d", name, host.PID)

	return a, nil
}

// NewGPUProbe builds the GPU probe for the configured backend. It returns nil
// when GPU sampling is disabled.
func NewGPUProbe(cfg config.GPUConfig) probes.GPUProbe {
	switch cfg.Backend {
	case config.GPUBackendNVML:
		return probes.NewNVMLProbe(max(cfg.Index, 0))
	case config.GPUBackendSMI:
		opts := []probes.GPUOption{probes.WithCommand(cfg.Command)}
		if cfg.Index >= 0 {
			opts = append(opts, probes.WithGPUIndex(cfg.Index))
		}
		return probes.NewNvidiaSMIProbe(opts...)
	default:
		return nil
	}
}

// Start takes a first sample and begins the sampling loops
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("agent already running")
	}
	a.running = true
	a.mu.Unlock()

	// Test transport connection (non-fatal)
	if a.transport != nil {
		if err := a.transport.Ping(ctx).Err(); err != nil {
			a.logger.Warn("⚠️ Failed to connect to transport Redis, will retry on every heartbeat", zap.Error(err))
		}
	}

	gpuBackend := "none"
	if a.gpuProbe != nil {
		gpuBackend = a.gpuProbe.Name()
	}
	a.logger.Info("Quasar sampler started",
		zap.String("service", a.config.Service),
		zap.String("nodeId", a.nodeID),
		zap.Duration("interval", a.config.Interval),
		zap.Duration("gpuInterval", a.config.GPUInterval),
		zap.String("gpu", gpuBackend),
		zap.Bool("publish", a.config.Publish),
	)

	if err := a.SampleNow(ctx); err != nil {
		a.logger.Error("Initial heartbeat failed", zap.Error(err))
	}

	a.wg.Add(1)
	go a.heartbeatLoop(ctx)

	if a.gpuProbe != nil {
		a.wg.Add(1)
		go a.gpuLoop(ctx)
	}

	return nil
}

// Stop gracefully stops the agent
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	close(a.stopChan)

	if a.commandListener != nil {
		if err := a.commandListener.Stop(ctx); err != nil {
			a.logger.Error("Failed to stop command listener", zap.Error(err))
		}
	}

	a.wg.Wait()

	if a.gpuProbe != nil {
		if err := a.gpuProbe.Close(); err != nil {
			a.logger.Error("Failed to close GPU probe", zap.Error(err))
		}
	}

	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			a.logger.Error("Failed to close transport Redis", zap.Error(err))
		}
	}

	a.logger.Info("Quasar sampler stopped")
	return nil
}

// NodeID returns the node identifier
func (a *Agent) NodeID() string {
	return a.nodeID
}

// EnableRemoteControl subscribes to the node's command channel
func (a *Agent) EnableRemoteControl(ctx context.Context) error {
	if a.transport == nil {
		return fmt.Errorf("remote control requires publishing to be enabled")
	}

	// Pub/Sub needs its own connection, and it must be live to subscribe
	subscriber, err := redis.NewClient(ctx, a.config.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect command subscriber: %w", err)
	}

	listener := NewCommandListener(subscriber, a.config.Service, a.nodeID, a.logger, a)
	if err := listener.Start(ctx); err != nil {
		_ = subscriber.Close()
		return fmt.Errorf("failed to start command listener: %w", err)
	}
	a.commandListener = listener

	a.logger.Info("🎮 Remote control enabled", zap.String("nodeId", a.nodeID))
	return nil
}

// SampleNow samples every probe and publishes a heartbeat immediately
func (a *Agent) SampleNow(ctx context.Context) error {
	a.collectMemory()
	if a.gpuProbe != nil {
		a.collectGPU()
	}
	return a.heartbeat(ctx)
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.collectMemory()
			if err := a.heartbeat(ctx); err != nil {
				a.logger.Error("Heartbeat failed", zap.Error(err))
			}
		}
	}
}

// gpuLoop samples the GPU on its own, slower cadence. Spawning nvidia-smi
// must not delay memory sampling.
func (a *Agent) gpuLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.GPUInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.collectGPU()
		}
	}
}

// collectMemory samples memory/swap. On failure the previous sample is kept.
func (a *Agent) collectMemory() {
	a.memMu.Lock()
	sample, err := a.memProbe.Sample()
	a.memMu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		a.failing[probeMemorySwap] = err.Error()
		a.logger.Warn("Memory/swap sample failed, keeping last good sample", zap.Error(err))
		return
	}

	delete(a.failing, probeMemorySwap)
	if sample.HasUnknown() {
		a.failing[probeMemorySwap] = "partial sample"
	}
	a.lastMem = &sample
}

// collectGPU samples the GPU. A missing tool is expected on machines without
// an NVIDIA GPU: it is logged once and clears any previous sample.
func (a *Agent) collectGPU() {
	a.gpuMu.Lock()
	sample, err := a.gpuProbe.Sample()
	a.gpuMu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case err == nil:
		if a.gpuWarned {
			a.logger.Info("GPU probe available", zap.String("backend", a.gpuProbe.Name()))
			a.gpuWarned = false
		}
		delete(a.failing, probeGPU)
		a.lastGPU = &sample

	case errors.Is(err, probes.ErrToolUnavailable):
		if !a.gpuWarned {
			a.logger.Warn("GPU probe unavailable, GPU figures omitted", zap.String("backend", a.gpuProbe.Name()), zap.Error(err))
			a.gpuWarned = true
		} else {
			a.logger.Debug("GPU probe unavailable", zap.Error(err))
		}
		delete(a.failing, probeGPU)
		a.lastGPU = nil

	default:
		fields := []zap.Field{zap.Error(err)}
		if raw, ok := probes.RawOutput(err); ok {
			fields = append(fields, zap.String("output", raw))
		}
		a.logger.Warn("GPU sample failed, keeping last good sample", fields...)
		a.failing[probeGPU] = err.Error()
	}
}

// Payload builds a heartbeat from the latest samples
func (a *Agent) Payload() types.HeartbeatPayload {
	host := a.hostProbe.GetInfo()

	a.mu.RLock()
	defer a.mu.RUnlock()

	runtime := types.RuntimeInfo{Status: types.StatusOnline}
	runtime.Errors = lo.Filter([]string{probeMemorySwap, probeGPU}, func(name string, _ int) bool {
		_, failed := a.failing[name]
		return failed
	})
	if len(runtime.Errors) > 0 {
		runtime.Status = types.StatusDegraded
	}
	if a.lastMem == nil {
		runtime.Status = types.StatusError
	}

	payload := types.HeartbeatPayload{
		ID:        a.nodeID,
		Service:   a.config.Service,
		Version:   a.version,
		Host:      host,
		Runtime:   runtime,
		Timestamp: time.Now().UnixMilli(),
	}
	if a.lastMem != nil {
		mem := *a.lastMem
		payload.Memory = &mem
	}
	if a.lastGPU != nil {
		gpu := *a.lastGPU
		payload.GPU = &gpu
	}
	return payload
}

// heartbeatKey is where Zenith looks for this node
func (a *Agent) heartbeatKey() string {
	return keyPrefix + a.config.Service + ":" + a.nodeID
}

// heartbeatTTL lets a key outlive a few missed heartbeats
func (a *Agent) heartbeatTTL() time.Duration {
	return max(3*a.config.Interval, minKeyTTL)
}

func (a *Agent) heartbeat(ctx context.Context) error {
	payload := a.Payload()

	if a.transport == nil {
		fields := []zap.Field{zap.String("status", payload.Runtime.Status)}
		if payload.Memory != nil {
			fields = append(fields,
				zap.Uint64("memUsedPercent", payload.Memory.MemUsedPercent),
				zap.Uint64("swapUsedPercent", payload.Memory.SwapUsedPercent),
			)
		}
		if payload.GPU != nil {
			fields = append(fields,
				zap.Uint64("gpuLoadPercent", payload.GPU.LoadPercent),
				zap.Uint64("gpuMemUsedMiB", payload.GPU.MemUsedMiB),
			)
		}
		a.logger.Info("Sample", fields...)
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	key := a.heartbeatKey()
	if err := a.transport.SetJSON(ctx, key, data, a.heartbeatTTL()); err != nil {
		return fmt.Errorf("failed to send heartbeat (%s): %w", probeTransport, err)
	}

	a.logger.Debug("Heartbeat sent", zap.String("key", key), zap.String("status", payload.Runtime.Status))
	return nil
}
