package process

import (
	"context"

	"github.com/maiserv/llamagate/pkg/logging"
)

// Runner is the capability a backend provides to the manager: spawning and
// supervising one external process for a given configuration. RunProcess must
// not block and must not send on events from the calling goroutine; it spawns
// whatever goroutines it needs and returns. The spawned process is observed
// through events:
//
//   - Started() once the process has signalled readiness;
//   - Finished(exitCode) exactly once when the process has terminated, whether
//     it exited on its own or was killed after cancel was closed.
//
// Closing cancel requests termination; the runner must then kill the process
// and still emit Finished exactly once.
type Runner[C any] interface {
	RunProcess(config C, cancel <-chan struct{}, events chan<- Event[C])
}

// Manager serializes all lifecycle operations for one subprocess through a
// single event loop. Start, Stop and ReadState may be called concurrently from
// any goroutine; the state is mutated only by the loop.
type Manager[C any] struct {
	// log is the associated logger.
	log logging.Logger
	// runner spawns and supervises the external process.
	runner Runner[C]
	// equal compares two configurations by value.
	equal func(a, b C) bool
	// events carries commands and process notifications. Capacity 1 is
	// sufficient: commands are idempotent and coalesced by the pending slot.
	events chan Event[C]
	// state is owned by the event loop.
	state State[C]
	// cancel is the termination signal armed for the currently spawned
	// process. It is non-nil iff state is Starting or Running.
	cancel chan struct{}
}

// NewManager creates a manager for the given runner and starts its event loop.
// The loop runs until ctx is cancelled; a live child at that point is killed
// through its cancel channel.
func NewManager[C any](ctx context.Context, log logging.Logger, runner Runner[C], equal func(a, b C) bool) *Manager[C] {
	m := &Manager[C]{
		log:    log,
		runner: runner,
		equal:  equal,
		events: make(chan Event[C], 1),
		state:  State[C]{Phase: Stopped},
	}
	go m.run(ctx)
	return m
}

// Start requests convergence toward Running(config). It returns once the
// request has been accepted by the event loop; failures surface in subsequent
// state observations, not here.
func (m *Manager[C]) Start(ctx context.Context, config C) error {
	return m.send(ctx, Event[C]{kind: eventStartRequested, config: config})
}

// Stop requests convergence toward Stopped.
func (m *Manager[C]) Stop(ctx context.Context) error {
	return m.send(ctx, Event[C]{kind: eventStopRequested})
}

// ReadState snapshots the current state.
func (m *Manager[C]) ReadState(ctx context.Context) (State[C], error) {
	reply := make(chan State[C], 1)
	if err := m.send(ctx, Event[C]{kind: eventReadState, reply: reply}); err != nil {
		return State[C]{}, err
	}
	select {
	case state := <-reply:
		return state, nil
	case <-ctx.Done():
		return State[C]{}, ctx.Err()
	}
}

func (m *Manager[C]) send(ctx context.Context, event Event[C]) error {
	select {
	case m.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the manager's event loop. All state transitions happen here.
func (m *Manager[C]) run(ctx context.Context) {
	for {
		select {
		case event := <-m.events:
			m.handle(event)
		case <-ctx.Done():
			if m.cancel != nil {
				close(m.cancel)
				m.cancel = nil
			}
			return
		}
	}
}

func (m *Manager[C]) handle(event Event[C]) {
	switch event.kind {
	case eventStartRequested:
		m.onStartRequested(event.config)
	case eventStopRequested:
		m.onStopRequested()
	case eventReadState:
		event.reply <- m.state.snapshot()
	case eventChildStarted:
		m.onChildStarted()
	case eventChildFinished:
		m.onChildFinished(event.exitCode)
	}
}

func (m *Manager[C]) onStartRequested(config C) {
	switch m.state.Phase {
	case Stopped:
		m.spawn(config)
	case Starting, Running:
		if m.equal(m.state.Config, config) {
			return
		}
		// Swap: terminate the current process and remember what to spawn
		// next. The pending slot is last-writer-wins by design.
		m.state = State[C]{Phase: Stopping, Config: m.state.Config, Pending: &config}
		m.sendCancel()
	case Stopping:
		m.state.Pending = &config
	}
}

func (m *Manager[C]) onStopRequested() {
	switch m.state.Phase {
	case Stopped:
	case Starting, Running:
		m.state = State[C]{Phase: Stopping, Config: m.state.Config}
		m.sendCancel()
	case Stopping:
		m.state.Pending = nil
	}
}

func (m *Manager[C]) onChildStarted() {
	switch m.state.Phase {
	case Starting:
		m.state = State[C]{Phase: Running, Config: m.state.Config}
	case Stopping:
		// The child signalled readiness while its termination is already in
		// flight; the upcoming ChildFinished settles the state.
	default:
		m.log.Errorf("received child-started notification in state %q", m.state.Phase)
		m.forceStopped()
	}
}

func (m *Manager[C]) onChildFinished(exitCode *int) {
	switch m.state.Phase {
	case Stopping:
		if pending := m.state.Pending; pending != nil {
			m.spawn(*pending)
			return
		}
		m.state = State[C]{Phase: Stopped}
	case Starting, Running:
		if exitCode != nil {
			m.log.Errorf("managed process exited unexpectedly with code %d", *exitCode)
		} else {
			m.log.Errorf("managed process exited unexpectedly")
		}
		m.forceStopped()
	default:
		m.log.Errorf("received child-finished notification in state %q", m.state.Phase)
		m.forceStopped()
	}
}

func (m *Manager[C]) spawn(config C) {
	m.cancel = make(chan struct{})
	m.runner.RunProcess(config, m.cancel, m.events)
	m.state = State[C]{Phase: Starting, Config: config}
}

func (m *Manager[C]) sendCancel() {
	if m.cancel == nil {
		m.log.Errorf("expected an armed cancel channel but found none")
		return
	}
	close(m.cancel)
	m.cancel = nil
}

func (m *Manager[C]) forceStopped() {
	if m.cancel != nil {
		close(m.cancel)
		m.cancel = nil
	}
	m.state = State[C]{Phase: Stopped}
}
