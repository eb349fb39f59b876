package commands

import (
	"context"
	"fmt"

	"github.com/gravito-framework/quasar-sampler/pkg/types"
)

// Sampler takes an out-of-cycle sample and publishes it
type Sampler interface {
	SampleNow(ctx context.Context) error
}

// Ensure SampleNowExecutor implements Executor
var _ Executor = (*SampleNowExecutor)(nil)

// SampleNowExecutor handles SAMPLE_NOW commands
type SampleNowExecutor struct {
	BaseExecutor
	sampler Sampler
}

// NewSampleNowExecutor creates a new SAMPLE_NOW executor
func NewSampleNowExecutor(sampler Sampler) *SampleNowExecutor {
	return &SampleNowExecutor{sampler: sampler}
}

// SupportedType returns SAMPLE_NOW
func (e *SampleNowExecutor) SupportedType() types.CommandType {
	return types.CmdSampleNow
}

// Execute samples every probe and publishes a heartbeat
func (e *SampleNowExecutor) Execute(ctx context.Context, cmd *types.SamplerCommand) types.CommandResult {
	if err := e.sampler.SampleNow(ctx); err != nil {
		return e.Failed(cmd.ID, fmt.Sprintf("Sample failed: %v", err))
	}
	return e.Success(cmd.ID, "Heartbeat published")
}
