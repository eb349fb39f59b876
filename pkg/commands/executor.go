// Package commands provides the executors for remote commands sent by Zenith.
package commands

import (
	"context"

	"github.com/gravito-framework/quasar-sampler/pkg/types"
)

// Executor handles execution of a specific command type
type Executor interface {
	// SupportedType returns the command type this executor handles
	SupportedType() types.CommandType

	// Execute runs the command and returns a result
	Execute(ctx context.Context, cmd *types.SamplerCommand) types.CommandResult
}

// BaseExecutor provides common helper methods
type BaseExecutor struct{}

// Success creates a success result
func (e *BaseExecutor) Success(commandID, message string) types.CommandResult {
	return types.NewSuccessResult(commandID, message)
}

// Failed creates a failed result
func (e *BaseExecutor) Failed(commandID, message string) types.CommandResult {
	return types.NewFailedResult(commandID, message)
}

// Registry routes commands to their executors
type Registry map[types.CommandType]Executor

// NewRegistry creates a registry holding executors
func NewRegistry(executors ...Executor) Registry {
	r := make(Registry, len(executors))
	for _, e := range executors {
		r.Register(e)
	}
	return r
}

// Register adds or replaces the executor for its command type
func (r Registry) Register(e Executor) {
	r[e.SupportedType()] = e
}

// Dispatch runs cmd. Types outside the allowlist, or without an executor,
// are answered with a not-allowed result and never executed.
func (r Registry) Dispatch(ctx context.Context, cmd *types.SamplerCommand) types.CommandResult {
	e, ok := r[cmd.Type]
	if !ok || !cmd.Type.IsAllowed() {
		return types.NewNotAllowedResult(cmd.ID, cmd.Type)
	}
	return e.Execute(ctx, cmd)
}
