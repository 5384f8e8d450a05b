package gateway

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/maiserv/llamagate/pkg/catalog"
	"github.com/maiserv/llamagate/pkg/llamacpp"
	"github.com/maiserv/llamagate/pkg/logging"
	"github.com/maiserv/llamagate/pkg/metrics"
	"github.com/maiserv/llamagate/pkg/process"
)

// convergeTick is the pause between convergence observations.
const convergeTick = 500 * time.Millisecond

// ErrTimeout indicates that the backend did not reach the desired state
// within the caller's deadline.
var ErrTimeout = errors.New("timed out waiting for backend convergence")

// ProcessController is the slice of the llama.cpp controller the selector
// drives.
type ProcessController interface {
	State(ctx context.Context) (llamacpp.State, error)
	Start(ctx context.Context, config llamacpp.RunConfig) error
	Stop(ctx context.Context) error
}

// Selector converges the managed backend onto a requested model. It is safe
// for concurrent use: starts are idempotent and coalesced by the process
// manager, so concurrent callers requesting different models cannot
// oscillate — the last distinct request wins and earlier callers time out.
type Selector struct {
	log        logging.Logger
	catalog    *catalog.Catalog
	controller ProcessController
	settings   *Settings
	metrics    *metrics.Metrics
}

// NewSelector creates a selector.
func NewSelector(log logging.Logger, cat *catalog.Catalog, controller ProcessController, settings *Settings, m *metrics.Metrics) *Selector {
	return &Selector{
		log:        log,
		catalog:    cat,
		controller: controller,
		settings:   settings,
		metrics:    m,
	}
}

// desiredConfig builds the configuration the selector would launch for a
// resolution under the current runtime settings.
func (s *Selector) desiredConfig(resolution catalog.Resolution) llamacpp.RunConfig {
	args := resolution.Args.Clone()
	args.APIKey = s.settings.APIKey()
	return llamacpp.RunConfig{
		Env:      s.settings.Env(),
		Args:     args,
		Parallel: s.settings.Parallel(),
		Threads:  s.settings.Threads(),
	}
}

// EnsureModel drives the backend until it is running the requested alias with
// exactly the configuration the current settings call for. It returns
// ErrUnknownModel immediately on a catalog miss and ErrTimeout once the
// deadline passes; otherwise it observes, commands and sleeps one tick.
func (s *Selector) EnsureModel(ctx context.Context, alias string, timeout time.Duration) error {
	start := time.Now()
	swapCounted := false

	for {
		if time.Since(start) >= timeout {
			return errors.Wrapf(ErrTimeout, "starting model %q", alias)
		}

		state, err := s.controller.State(ctx)
		if err != nil {
			return err
		}

		if state.Phase == process.Running && state.Config.Args != nil && state.Config.Args.Alias == alias {
			// Rebuild what this selector would launch for the running model
			// under the current settings; a difference (a parallelism or env
			// change, say) forces an orderly swap.
			wouldBe := state.Config.Clone()
			wouldBe.Env = s.settings.Env()
			wouldBe.Parallel = s.settings.Parallel()
			wouldBe.Threads = s.settings.Threads()
			if state.Config.Equal(wouldBe) {
				return nil
			}
			s.log.Infof("running configuration for %q differs from desired settings; swapping", alias)
		}

		resolution, err := s.catalog.Resolve(alias)
		if err != nil {
			return err
		}
		desired := s.desiredConfig(resolution)

		if state.Phase == process.Running && !swapCounted {
			swapCounted = true
			if s.metrics != nil {
				s.metrics.Swaps.Inc()
			}
		}

		if err := s.controller.Start(ctx, desired); err != nil {
			return err
		}
		s.log.Infof("waiting for backend to serve %q (%.0fs)", alias, time.Since(start).Seconds())

		select {
		case <-time.After(convergeTick):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// EnsureAny succeeds as soon as any model is running; when nothing is, it
// drives the default model the same way EnsureModel does.
func (s *Selector) EnsureAny(ctx context.Context, timeout time.Duration) error {
	start := time.Now()

	for {
		if time.Since(start) >= timeout {
			return errors.Wrapf(ErrTimeout, "starting default model %q", s.settings.DefaultModel())
		}

		state, err := s.controller.State(ctx)
		if err != nil {
			return err
		}
		if state.Phase == process.Running {
			return nil
		}

		resolution, err := s.catalog.Resolve(s.settings.DefaultModel())
		if err != nil {
			return err
		}
		if err := s.controller.Start(ctx, s.desiredConfig(resolution)); err != nil {
			return err
		}

		select {
		case <-time.After(convergeTick):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunningAlias reports the alias currently served, or "" when none is.
func (s *Selector) RunningAlias(ctx context.Context) (string, error) {
	state, err := s.controller.State(ctx)
	if err != nil {
		return "", err
	}
	if state.Phase == process.Running && state.Config.Args != nil {
		return state.Config.Args.Alias, nil
	}
	return "", nil
}
