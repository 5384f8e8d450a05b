package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maiserv/llamagate/pkg/catalog"
	"github.com/maiserv/llamagate/pkg/llamacpp"
	"github.com/maiserv/llamagate/pkg/logging"
	"github.com/maiserv/llamagate/pkg/process"
)

// fakeController emulates the process controller. When autoStart is set, a
// Start immediately lands the fake in Running with the requested
// configuration, mimicking a fast backend.
type fakeController struct {
	mu        sync.Mutex
	state     llamacpp.State
	starts    []llamacpp.RunConfig
	stops     int
	autoStart bool
}

func (c *fakeController) State(context.Context) (llamacpp.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, nil
}

func (c *fakeController) Start(_ context.Context, config llamacpp.RunConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts = append(c.starts, config)
	if c.autoStart {
		c.state = llamacpp.State{Phase: process.Running, Config: config}
	}
	return nil
}

func (c *fakeController) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.state = llamacpp.State{Phase: process.Stopped}
	return nil
}

func (c *fakeController) setState(state llamacpp.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *fakeController) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.starts)
}

func quietLogger() logging.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logging.NewLogrusAdapter(logger)
}

func testSelector(controller ProcessController, settings *Settings) *Selector {
	cat := catalog.New([]catalog.ModelDefinition{
		{
			Alias:      "smollm",
			ModelPath:  "/models/smollm.gguf",
			MaxCtxSize: llamacpp.Ctx32K,
			Jinja:      true,
		},
	})
	return NewSelector(quietLogger(), cat, controller, settings, nil)
}

func TestEnsureModelColdStart(t *testing.T) {
	controller := &fakeController{autoStart: true}
	env := map[string]string{"GGML_CUDA_ENABLE_UNIFIED_MEMORY": "1"}
	settings := NewSettings("secret", "smollm-small", env, 1, llamacpp.ThreadsDefault)
	selector := testSelector(controller, settings)

	err := selector.EnsureModel(context.Background(), "smollm-small", 5*time.Second)
	require.NoError(t, err)

	require.Equal(t, 1, controller.startCount())
	launched := controller.starts[0]
	assert.Equal(t, "smollm-small", launched.Args.Alias)
	require.NotNil(t, launched.Args.CtxSize)
	assert.Equal(t, llamacpp.Ctx32K, *launched.Args.CtxSize)
	assert.Equal(t, "secret", launched.Args.APIKey)
	assert.Equal(t, env, launched.Env, "runtime env injected into the launch config")
	assert.Equal(t, 1, launched.Parallel)
}

func TestEnsureModelAlreadyRunning(t *testing.T) {
	controller := &fakeController{}
	settings := NewSettings("secret", "smollm-small", nil, 1, llamacpp.ThreadsDefault)
	selector := testSelector(controller, settings)

	resolution, err := selector.catalog.Resolve("smollm-small")
	require.NoError(t, err)
	controller.setState(llamacpp.State{Phase: process.Running, Config: selector.desiredConfig(resolution)})

	start := time.Now()
	require.NoError(t, selector.EnsureModel(context.Background(), "smollm-small", 5*time.Second))
	assert.Less(t, time.Since(start), convergeTick, "no convergence wait expected")
	assert.Equal(t, 0, controller.startCount())
}

func TestEnsureModelUnknownAliasReturnsImmediately(t *testing.T) {
	controller := &fakeController{}
	settings := NewSettings("secret", "smollm-small", nil, 1, llamacpp.ThreadsDefault)
	selector := testSelector(controller, settings)

	err := selector.EnsureModel(context.Background(), "does-not-exist", 5*time.Second)
	assert.ErrorIs(t, err, catalog.ErrUnknownModel)
	assert.Equal(t, 0, controller.startCount(), "no spawn on catalog miss")
}

func TestEnsureModelTimeoutBound(t *testing.T) {
	// The fake never reaches Running, so convergence must give up within the
	// deadline plus at most one tick.
	controller := &fakeController{}
	settings := NewSettings("secret", "smollm-small", nil, 1, llamacpp.ThreadsDefault)
	selector := testSelector(controller, settings)

	timeout := 600 * time.Millisecond
	start := time.Now()
	err := selector.EnsureModel(context.Background(), "smollm-small", timeout)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, elapsed, timeout+time.Second)
}

func TestEnsureModelParallelismChangeForcesSwap(t *testing.T) {
	controller := &fakeController{autoStart: true}
	settings := NewSettings("secret", "smollm-small", nil, 1, llamacpp.ThreadsDefault)
	selector := testSelector(controller, settings)

	require.NoError(t, selector.EnsureModel(context.Background(), "smollm-small", 5*time.Second))
	require.Equal(t, 1, controller.startCount())

	// Raising the parallelism makes the would-be configuration differ from
	// the running one; the next convergence must command a swap.
	settings.SetParallel(4)
	require.NoError(t, selector.EnsureModel(context.Background(), "smollm-small", 5*time.Second))

	require.Equal(t, 2, controller.startCount())
	assert.Equal(t, 4, controller.starts[1].Parallel)
	assert.Equal(t, "smollm-small", controller.starts[1].Args.Alias)
}

func TestEnsureAnySucceedsWhenAnythingRuns(t *testing.T) {
	controller := &fakeController{}
	settings := NewSettings("secret", "smollm-small", nil, 1, llamacpp.ThreadsDefault)
	selector := testSelector(controller, settings)

	controller.setState(llamacpp.State{Phase: process.Running, Config: llamacpp.RunConfig{
		Args: &llamacpp.RunArgs{Alias: "whatever", ModelPath: "/w.gguf"},
	}})

	require.NoError(t, selector.EnsureAny(context.Background(), 5*time.Second))
	assert.Equal(t, 0, controller.startCount())
}

func TestEnsureAnyStartsDefaultModel(t *testing.T) {
	controller := &fakeController{autoStart: true}
	settings := NewSettings("secret", "smollm-small", nil, 1, llamacpp.ThreadsDefault)
	selector := testSelector(controller, settings)

	require.NoError(t, selector.EnsureAny(context.Background(), 5*time.Second))
	require.Equal(t, 1, controller.startCount())
	assert.Equal(t, "smollm-small", controller.starts[0].Args.Alias)
}

func TestRunningAlias(t *testing.T) {
	controller := &fakeController{}
	settings := NewSettings("secret", "smollm-small", nil, 1, llamacpp.ThreadsDefault)
	selector := testSelector(controller, settings)

	alias, err := selector.RunningAlias(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", alias)

	controller.setState(llamacpp.State{Phase: process.Running, Config: llamacpp.RunConfig{
		Args: &llamacpp.RunArgs{Alias: "smollm-small"},
	}})
	alias, err = selector.RunningAlias(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "smollm-small", alias)
}
