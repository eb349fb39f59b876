package probes

import (
	"os"
	"runtime"
	"time"

	"github.com/gravito-framework/quasar-sampler/pkg/types"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
)

// HostProbe collects host metadata and the agent's own footprint for the
// heartbeat. It is not part of memory/swap sampling.
type HostProbe struct {
	startTime time.Time
	proc      *process.Process
	platform  string
}

// NewHostProbe creates a host probe for the current process
func NewHostProbe() (*HostProbe, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	platform := runtime.GOOS
	if name, _, version, err := host.PlatformInformation(); err == nil && name != "" {
		platform = runtime.GOOS + "/" + name + " " + version
	}

	return &HostProbe{
		startTime: time.Now(),
		proc:      p,
		platform:  platform,
	}, nil
}

// GetInfo returns current host info. Fields that cannot be read stay zero.
func (p *HostProbe) GetInfo() types.HostInfo {
	hostname, _ := os.Hostname()

	info := types.HostInfo{
		Hostname: hostname,
		Platform: p.platform,
		PID:      os.Getpid(),
		AgentUp:  round(time.Since(p.startTime).Seconds(), 2),
	}

	if uptime, err := host.Uptime(); err == nil {
		info.Uptime = uptime
	}

	if memInfo, err := p.proc.MemoryInfo(); err == nil {
		info.RSS = memInfo.RSS
	} else {
		// Fallback to Go runtime memory stats
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		info.RSS = m.Sys
	}

	return info
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	shift := float64(1)
	for i := 0; i < decimals; i++ {
		shift *= 10
	}
	return float64(int(val*shift+0.5)) / shift
}
