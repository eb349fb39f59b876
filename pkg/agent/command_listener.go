package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	qredis "github.com/gravito-framework/quasar-sampler/internal/redis"
	"github.com/gravito-framework/quasar-sampler/pkg/commands"
	"github.com/gravito-framework/quasar-sampler/pkg/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CommandListener subscribes to Redis Pub/Sub for incoming commands from Zenith
// and publishes one result per command it accepts.
type CommandListener struct {
	subscriber *qredis.Client
	service    string
	nodeID     string
	logger     *zap.Logger
	executors  commands.Registry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCommandListener creates a new command listener
func NewCommandListener(
	subscriber *qredis.Client,
	service string,
	nodeID string,
	logger *zap.Logger,
	sampler commands.Sampler,
) *CommandListener {
	return &CommandListener{
		subscriber: subscriber,
		service:    service,
		nodeID:     nodeID,
		logger:     logger,
		executors: commands.NewRegistry(
			commands.NewSampleNowExecutor(sampler),
			commands.NewPingExecutor(nodeID),
		),
	}
}

func (cl *CommandListener) channel() string {
	return fmt.Sprintf("gravito:quasar:cmd:%s:%s", cl.service, cl.nodeID)
}

func (cl *CommandListener) resultChannel() string {
	return fmt.Sprintf("gravito:quasar:cmd:result:%s:%s", cl.service, cl.nodeID)
}

// Start subscribes and handles commands until Stop or until ctx ends
func (cl *CommandListener) Start(ctx context.Context) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.cancel != nil {
		return fmt.Errorf("command listener already running")
	}

	channel := cl.channel()
	pubsub := cl.subscriber.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	cl.cancel = cancel
	cl.done = make(chan struct{})
	go cl.listen(listenCtx, pubsub, cl.done)

	cl.logger.Info("📡 Listening for commands", zap.String("channel", channel))
	return nil
}

// Stop ends the subscription and waits for the handler, at most until ctx ends
func (cl *CommandListener) Stop(ctx context.Context) error {
	cl.mu.Lock()
	cancel, done := cl.cancel, cl.done
	cl.cancel, cl.done = nil, nil
	cl.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		cl.logger.Warn("Command handler still busy at shutdown", zap.Error(ctx.Err()))
	}

	if err := cl.subscriber.Close(); err != nil {
		return fmt.Errorf("failed to close subscriber: %w", err)
	}
	cl.logger.Info("CommandListener stopped")
	return nil
}

func (cl *CommandListener) listen(ctx context.Context, pubsub *redis.PubSub, done chan<- struct{}) {
	defer close(done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if result, handled := cl.processMessage(ctx, msg.Payload); handled {
				cl.publishResult(ctx, result)
			}
		}
	}
}

// processMessage decodes and runs one command. Commands addressed to another
// node or that cannot be decoded are dropped without a result.
func (cl *CommandListener) processMessage(ctx context.Context, payload string) (types.CommandResult, bool) {
	var cmd types.SamplerCommand
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		cl.logger.Error("Failed to parse command", zap.Error(err))
		return types.CommandResult{}, false
	}

	cl.logger.Info("📥 Received command", zap.String("type", string(cmd.Type)), zap.String("id", cmd.ID))

	// Security check: Is this command for us?
	if cmd.TargetNodeID != cl.nodeID && cmd.TargetNodeID != "*" {
		cl.logger.Warn("⚠️ Command not for this node", zap.String("target", cmd.TargetNodeID))
		return types.CommandResult{}, false
	}

	result := cl.executors.Dispatch(ctx, &cmd)

	switch result.Status {
	case types.CommandSuccess:
		cl.logger.Info("✅ Command executed", zap.String("type", string(cmd.Type)), zap.String("message", result.Message))
	case types.CommandNotAllowed:
		cl.logger.Warn("⚠️ Command type not allowed", zap.String("type", string(cmd.Type)))
	default:
		cl.logger.Error("❌ Command failed", zap.String("type", string(cmd.Type)), zap.String("message", result.Message))
	}
	return result, true
}

func (cl *CommandListener) publishResult(ctx context.Context, result types.CommandResult) {
	data, err := json.Marshal(result)
	if err != nil {
		cl.logger.Error("Failed to marshal command result", zap.Error(err))
		return
	}
	if err := cl.subscriber.Publish(ctx, cl.resultChannel(), data).Err(); err != nil {
		cl.logger.Error("Failed to publish command result", zap.Error(err))
	}
}
