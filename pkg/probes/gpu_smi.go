package probes

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gravito-framework/quasar-sampler/pkg/types"
)

// DefaultSMICommand is the NVIDIA System Management Interface binary.
const DefaultSMICommand = "nvidia-smi"

// smiQueryArgs is the fixed query sent to nvidia-smi. The output is one line
// per GPU: "<utilization.gpu>, <utilization.memory>, <memory.total>, <memory.used>".
var smiQueryArgs = []string{
	"--query-gpu=utilization.gpu,utilization.memory,memory.total,memory.used",
	"--format=csv,noheader,nounits",
}

// CommandRunner spawns a command, waits for it to exit and returns its
// standard output. An *exec.ExitError means the command ran but failed; any
// other error means it could not be started.
type CommandRunner interface {
	Run(name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// NvidiaSMIProbe samples the first GPU reported by nvidia-smi. Every Sample
// call starts a fresh nvidia-smi process, which takes tens to hundreds of
// milliseconds.
type NvidiaSMIProbe struct {
	command string
	args    []string
	runner  CommandRunner
}

// GPUOption configures an NvidiaSMIProbe
type GPUOption func(*NvidiaSMIProbe)

// WithCommand sets the nvidia-smi binary name or path
func WithCommand(command string) GPUOption {
	return func(p *NvidiaSMIProbe) {
		if strings.TrimSpace(command) != "" {
			p.command = command
		}
	}
}

// WithRunner sets the command runner
func WithRunner(runner CommandRunner) GPUOption {
	return func(p *NvidiaSMIProbe) {
		p.runner = runner
	}
}

// WithGPUIndex restricts the query to one GPU by index
func WithGPUIndex(index int) GPUOption {
	return func(p *NvidiaSMIProbe) {
		p.args = append(p.args[:len(smiQueryArgs):len(smiQueryArgs)], "--id="+strconv.Itoa(index))
	}
}

// NewNvidiaSMIProbe creates a probe that shells out to nvidia-smi.
func NewNvidiaSMIProbe(opts ...GPUOption) *NvidiaSMIProbe {
	p := &NvidiaSMIProbe{
		command: DefaultSMICommand,
		args:    append([]string(nil), smiQueryArgs...),
		runner:  ExecRunner{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the backend name
func (p *NvidiaSMIProbe) Name() string { return "nvidia-smi" }

// Close is a no-op; nothing outlives a Sample call.
func (p *NvidiaSMIProbe) Close() error { return nil }

// Sample runs nvidia-smi once and parses its first line.
func (p *NvidiaSMIProbe) Sample() (types.GPUSample, error) {
	out, err := p.runner.Run(p.command, p.args...)
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return types.GPUSample{}, toolUnavailable(p.command, err)
		}
		// It ran. Whatever it printed decides between a sample and malformed output.
	}

	sample, perr := parseNvidiaSMI(out)
	if perr != nil {
		if err != nil {
			perr = errors.Join(perr, err)
		}
		return types.GPUSample{}, malformedOutput(p.command, out, perr)
	}
	return sample, nil
}

// ParseNvidiaSMI parses nvidia-smi output for the fixed query. Only the first
// line is read; it must hold exactly four unsigned integers separated by
// commas and optional spaces.
func ParseNvidiaSMI(out []byte) (types.GPUSample, error) {
	sample, err := parseNvidiaSMI(out)
	if err != nil {
		return types.GPUSample{}, malformedOutput(DefaultSMICommand, out, err)
	}
	return sample, nil
}

func parseNvidiaSMI(out []byte) (types.GPUSample, error) {
	line, _, _ := bytes.Cut(out, []byte("\n"))
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return types.GPUSample{}, errors.New("empty output")
	}

	fields := strings.Split(string(line), ",")
	if len(fields) != 4 {
		return types.GPUSample{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}

	var values [4]uint64
	for i, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return types.GPUSample{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		values[i] = v
	}

	return types.GPUSample{
		LoadPercent:    values[0],
		MemLoadPercent: values[1],
		MemTotalMiB:    values[2],
		MemUsedMiB:     values[3],
	}, nil
}
