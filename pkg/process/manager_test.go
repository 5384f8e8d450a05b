package process

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/maiserv/llamagate/pkg/logging"
)

// fakeRunner records every spawn and hands the test control over the process
// notifications the manager would normally receive from a real child.
type fakeRunner struct {
	mu      sync.Mutex
	spawns  []string
	cancels []<-chan struct{}
	events  chan<- Event[string]
}

func (r *fakeRunner) RunProcess(config string, cancel <-chan struct{}, events chan<- Event[string]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawns = append(r.spawns, config)
	r.cancels = append(r.cancels, cancel)
	r.events = events
}

func (r *fakeRunner) spawnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spawns)
}

func (r *fakeRunner) lastSpawn() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawns[len(r.spawns)-1]
}

func (r *fakeRunner) lastCancel() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancels[len(r.cancels)-1]
}

func (r *fakeRunner) emitStarted(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	events := r.events
	r.mu.Unlock()
	select {
	case events <- Started[string]():
	case <-time.After(time.Second):
		t.Fatal("manager did not accept child-started notification")
	}
}

func (r *fakeRunner) emitFinished(t *testing.T, exitCode *int) {
	t.Helper()
	r.mu.Lock()
	events := r.events
	r.mu.Unlock()
	select {
	case events <- Finished[string](exitCode):
	case <-time.After(time.Second):
		t.Fatal("manager did not accept child-finished notification")
	}
}

func testManager(t *testing.T) (*Manager[string], *fakeRunner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	runner := &fakeRunner{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	equal := func(a, b string) bool { return a == b }
	return NewManager(ctx, logging.NewLogrusAdapter(logger), runner, equal), runner
}

func readState(t *testing.T, m *Manager[string]) State[string] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	state, err := m.ReadState(ctx)
	require.NoError(t, err)
	return state
}

func cancelled(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}

func TestStartFromStopped(t *testing.T) {
	m, runner := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "alpha"))
	state := readState(t, m)
	require.Equal(t, Starting, state.Phase)
	require.Equal(t, "alpha", state.Config)
	require.Equal(t, 1, runner.spawnCount())
	require.False(t, cancelled(runner.lastCancel()))

	runner.emitStarted(t)
	state = readState(t, m)
	require.Equal(t, Running, state.Phase)
	require.Equal(t, "alpha", state.Config)
}

func TestStartIsIdempotent(t *testing.T) {
	m, runner := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "alpha"))
	readState(t, m)
	// A burst of identical requests while Starting must not spawn again.
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Start(ctx, "alpha"))
	}
	readState(t, m)
	require.Equal(t, 1, runner.spawnCount())

	runner.emitStarted(t)
	// Same while Running.
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Start(ctx, "alpha"))
	}
	state := readState(t, m)
	require.Equal(t, Running, state.Phase)
	require.Equal(t, 1, runner.spawnCount())
}

func TestSwapWhileRunning(t *testing.T) {
	m, runner := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "alpha"))
	readState(t, m)
	runner.emitStarted(t)

	require.NoError(t, m.Start(ctx, "beta"))
	state := readState(t, m)
	require.Equal(t, Stopping, state.Phase)
	require.Equal(t, "alpha", state.Config)
	require.NotNil(t, state.Pending)
	require.Equal(t, "beta", *state.Pending)
	require.True(t, cancelled(runner.lastCancel()))
	require.Equal(t, 1, runner.spawnCount())

	runner.emitFinished(t, nil)
	state = readState(t, m)
	require.Equal(t, Starting, state.Phase)
	require.Equal(t, "beta", state.Config)
	require.Equal(t, 2, runner.spawnCount())
	require.Equal(t, "beta", runner.lastSpawn())

	runner.emitStarted(t)
	state = readState(t, m)
	require.Equal(t, Running, state.Phase)
	require.Equal(t, "beta", state.Config)
}

func TestPendingSlotIsLastWriterWins(t *testing.T) {
	m, runner := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "alpha"))
	readState(t, m)
	runner.emitStarted(t)
	require.NoError(t, m.Start(ctx, "beta"))

	// While Stopping, every further request replaces the pending slot.
	for _, config := range []string{"gamma", "delta", "epsilon"} {
		require.NoError(t, m.Start(ctx, config))
	}
	state := readState(t, m)
	require.Equal(t, Stopping, state.Phase)
	require.Equal(t, "epsilon", *state.Pending)
	require.Equal(t, 1, runner.spawnCount())

	runner.emitFinished(t, nil)
	state = readState(t, m)
	require.Equal(t, Starting, state.Phase)
	require.Equal(t, "epsilon", state.Config)
	require.Equal(t, 2, runner.spawnCount())
}

func TestStopWinsOverSwap(t *testing.T) {
	m, runner := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "alpha"))
	readState(t, m)
	runner.emitStarted(t)
	require.NoError(t, m.Start(ctx, "beta"))
	require.NoError(t, m.Stop(ctx))

	state := readState(t, m)
	require.Equal(t, Stopping, state.Phase)
	require.Nil(t, state.Pending)

	runner.emitFinished(t, nil)
	state = readState(t, m)
	require.Equal(t, Stopped, state.Phase)
	require.Equal(t, 1, runner.spawnCount())
}

func TestStopWhileStarting(t *testing.T) {
	m, runner := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "alpha"))
	readState(t, m)
	require.NoError(t, m.Stop(ctx))

	state := readState(t, m)
	require.Equal(t, Stopping, state.Phase)
	require.True(t, cancelled(runner.lastCancel()))

	runner.emitFinished(t, nil)
	require.Equal(t, Stopped, readState(t, m).Phase)
}

func TestStopWhenStoppedIsNoop(t *testing.T) {
	m, runner := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Stop(ctx))
	require.Equal(t, Stopped, readState(t, m).Phase)
	require.Equal(t, 0, runner.spawnCount())
}

func TestUnexpectedExitBecomesStopped(t *testing.T) {
	m, runner := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "alpha"))
	readState(t, m)
	runner.emitStarted(t)

	exitCode := 137
	runner.emitFinished(t, &exitCode)
	require.Equal(t, Stopped, readState(t, m).Phase)

	// The manager recovers: a fresh start spawns again.
	require.NoError(t, m.Start(ctx, "alpha"))
	state := readState(t, m)
	require.Equal(t, Starting, state.Phase)
	require.Equal(t, 2, runner.spawnCount())
}

func TestExitDuringStartupBecomesStopped(t *testing.T) {
	m, runner := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "alpha"))
	readState(t, m)
	exitCode := 1
	runner.emitFinished(t, &exitCode)
	require.Equal(t, Stopped, readState(t, m).Phase)
}

func TestReadStateSnapshotsPending(t *testing.T) {
	m, runner := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "alpha"))
	readState(t, m)
	runner.emitStarted(t)
	require.NoError(t, m.Start(ctx, "beta"))

	state := readState(t, m)
	require.NotNil(t, state.Pending)
	*state.Pending = "mutated"

	again := readState(t, m)
	require.Equal(t, "beta", *again.Pending)
}

func TestAtMostOneChild(t *testing.T) {
	m, runner := testManager(t)
	ctx := context.Background()

	// Drive an arbitrary command sequence and check that the number of spawns
	// never exceeds finishes by more than one.
	require.NoError(t, m.Start(ctx, "alpha"))
	readState(t, m)
	runner.emitStarted(t)
	require.NoError(t, m.Start(ctx, "beta"))
	require.NoError(t, m.Start(ctx, "gamma"))
	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Start(ctx, "delta"))
	readState(t, m)
	require.Equal(t, 1, runner.spawnCount())

	runner.emitFinished(t, nil)
	state := readState(t, m)
	require.Equal(t, Starting, state.Phase)
	require.Equal(t, "delta", state.Config)
	require.Equal(t, 2, runner.spawnCount())
}
