// Package types defines shared types for the Quasar sampler.
// These types are serialized into the heartbeat payload read by Zenith.
package types

import (
	"math"
	"time"

	"github.com/samber/lo"
)

// Unknown marks a counter that could not be read from the kernel.
// It is distinct from a genuine zero reading and must be treated as "no data".
const Unknown uint64 = math.MaxUint64

// MemorySwapSample is one reading of physical memory and swap, in KiB.
type MemorySwapSample struct {
	MemTotalKiB     uint64 `json:"memTotalKiB" yaml:"mem_total_kib"`
	MemUsedKiB      uint64 `json:"memUsedKiB" yaml:"mem_used_kib"`
	MemUsedPercent  uint64 `json:"memUsedPercent" yaml:"mem_used_percent"` // 0-100
	SwapTotalKiB    uint64 `json:"swapTotalKiB" yaml:"swap_total_kib"`
	SwapUsedKiB     uint64 `json:"swapUsedKiB" yaml:"swap_used_kib"`
	SwapUsedPercent uint64 `json:"swapUsedPercent" yaml:"swap_used_percent"` // 0-100, 0 without swap
}

// NewMemorySwapSample builds a sample from raw totals, clamping used figures
// to their totals and deriving both percentages. Unknown inputs are carried
// through unchanged and yield a 0 percentage.
func NewMemorySwapSample(memTotal, memUsed, swapTotal, swapUsed uint64) MemorySwapSample {
	memUsed = clamp(memUsed, memTotal)
	swapUsed = clamp(swapUsed, swapTotal)

	return MemorySwapSample{
		MemTotalKiB:     memTotal,
		MemUsedKiB:      memUsed,
		MemUsedPercent:  Percent(memUsed, memTotal),
		SwapTotalKiB:    swapTotal,
		SwapUsedKiB:     swapUsed,
		SwapUsedPercent: Percent(swapUsed, swapTotal),
	}
}

// HasUnknown reports whether any figure in the sample is the Unknown sentinel.
func (s MemorySwapSample) HasUnknown() bool {
	return s.MemTotalKiB == Unknown || s.MemUsedKiB == Unknown ||
		s.SwapTotalKiB == Unknown || s.SwapUsedKiB == Unknown
}

// Percent returns used*100/total in the range 0-100.
// A zero or Unknown total, or an Unknown used value, yields 0.
func Percent(used, total uint64) uint64 {
	if total == 0 || total == Unknown || used == Unknown {
		return 0
	}
	used = clamp(used, total)
	if used > math.MaxUint64/100 {
		return used / (total / 100)
	}
	return used * 100 / total
}

func clamp(used, total uint64) uint64 {
	if used == Unknown || total == Unknown {
		return used
	}
	if used > total {
		return total
	}
	return used
}

// GPUSample is one reading of the first NVIDIA GPU.
type GPUSample struct {
	LoadPercent    uint64 `json:"loadPercent" yaml:"gpu_load_percent"`        // utilization.gpu
	MemLoadPercent uint64 `json:"memLoadPercent" yaml:"gpu_mem_load_percent"` // utilization.memory (controller, not occupancy)
	MemTotalMiB    uint64 `json:"memTotalMiB" yaml:"gpu_mem_total_mib"`
	MemUsedMiB     uint64 `json:"memUsedMiB" yaml:"gpu_mem_used_mib"`
}

// HostInfo contains host and agent-process metadata
type HostInfo struct {
	Hostname string  `json:"hostname"`
	Platform string  `json:"platform"`
	Uptime   uint64  `json:"uptime"` // Host uptime in seconds
	PID      int     `json:"pid"`
	RSS      uint64  `json:"rss"`         // Agent process resident set size, bytes
	AgentUp  float64 `json:"agentUptime"` // Seconds since the agent started
}

// RuntimeInfo contains runtime metadata
type RuntimeInfo struct {
	Status string   `json:"status"`           // "online", "degraded", "error"
	Errors []string `json:"errors,omitempty"` // Probe failures on the last tick
}

// Status values for RuntimeInfo.Status
const (
	StatusOnline   = "online"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// HeartbeatPayload is the complete payload sent to Zenith
type HeartbeatPayload struct {
	ID        string            `json:"id"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Host      HostInfo          `json:"host"`
	Memory    *MemorySwapSample `json:"memory,omitempty"`
	GPU       *GPUSample        `json:"gpu,omitempty"`
	Runtime   RuntimeInfo       `json:"runtime"`
	Timestamp int64             `json:"timestamp"`
}

// ============================================
// Remote Control Types
// ============================================

// CommandType represents allowed command types
type CommandType string

const (
	CmdSampleNow CommandType = "SAMPLE_NOW"
	CmdPing      CommandType = "PING"
)

// AllowedCommands is the security allowlist
var AllowedCommands = []CommandType{CmdSampleNow, CmdPing}

// IsAllowed checks if a command type is in the allowlist
func (c CommandType) IsAllowed() bool {
	return lo.Contains(AllowedCommands, c)
}

// SamplerCommand represents a command from Zenith
type SamplerCommand struct {
	ID           string      `json:"id"`
	Type         CommandType `json:"type"`
	TargetNodeID string      `json:"targetNodeId"`
	Timestamp    int64       `json:"timestamp"`
	Issuer       string      `json:"issuer"`
}

// CommandStatus represents execution result status
type CommandStatus string

const (
	CommandSuccess    CommandStatus = "success"
	CommandFailed     CommandStatus = "failed"
	CommandNotAllowed CommandStatus = "not_allowed"
)

// CommandResult represents the result of command execution
type CommandResult struct {
	CommandID string        `json:"commandId"`
	Status    CommandStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// NewSuccessResult creates a success result
func NewSuccessResult(commandID, message string) CommandResult {
	return newResult(commandID, CommandSuccess, message)
}

// NewFailedResult creates a failed result
func NewFailedResult(commandID, message string) CommandResult {
	return newResult(commandID, CommandFailed, message)
}

// NewNotAllowedResult creates a result for a command outside the allowlist
func NewNotAllowedResult(commandID string, cmdType CommandType) CommandResult {
	return newResult(commandID, CommandNotAllowed, "command not allowed: "+string(cmdType))
}

func newResult(commandID string, status CommandStatus, message string) CommandResult {
	return CommandResult{
		CommandID: commandID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}
