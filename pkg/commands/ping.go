package commands

import (
	"context"

	"github.com/gravito-framework/quasar-sampler/pkg/types"
)

// PingExecutor handles PING commands
type PingExecutor struct {
	BaseExecutor
	nodeID string
}

// NewPingExecutor creates a new PING executor
func NewPingExecutor(nodeID string) *PingExecutor {
	return &PingExecutor{nodeID: nodeID}
}

// SupportedType returns PING
func (e *PingExecutor) SupportedType() types.CommandType {
	return types.CmdPing
}

// Execute answers with the node id
func (e *PingExecutor) Execute(_ context.Context, cmd *types.SamplerCommand) types.CommandResult {
	return e.Success(cmd.ID, "pong from "+e.nodeID)
}
