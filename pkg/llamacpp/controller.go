package llamacpp

import (
	"context"

	"github.com/maiserv/llamagate/pkg/logging"
	"github.com/maiserv/llamagate/pkg/process"
)

// State is the managed-process state specialised for llama-server.
type State = process.State[RunConfig]

// Controller is the typed handle through which the rest of the gateway drives
// the llama-server lifecycle.
type Controller struct {
	manager *process.Manager[RunConfig]
}

// NewController creates a controller owning the given backend. The manager's
// event loop runs until ctx is cancelled; cancellation kills any live child.
func NewController(ctx context.Context, log logging.Logger, backend *Backend) *Controller {
	return &Controller{
		manager: process.NewManager(ctx, log, backend, RunConfig.Equal),
	}
}

// State snapshots the current process state.
func (c *Controller) State(ctx context.Context) (State, error) {
	return c.manager.ReadState(ctx)
}

// Start requests that llama-server converge toward running config. Starting
// with a different configuration while another is running causes an orderly
// swap.
func (c *Controller) Start(ctx context.Context, config RunConfig) error {
	return c.manager.Start(ctx, config)
}

// Stop requests that llama-server converge toward stopped.
func (c *Controller) Stop(ctx context.Context) error {
	return c.manager.Stop(ctx)
}
