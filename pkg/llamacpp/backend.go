package llamacpp

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/maiserv/llamagate/pkg/logging"
	"github.com/maiserv/llamagate/pkg/metrics"
	"github.com/maiserv/llamagate/pkg/process"
)

const (
	// Name is the backend name.
	Name = "llama.cpp"

	// readySentinel is the stderr line fragment llama-server prints once it
	// accepts connections.
	readySentinel = "server is listening on http"
)

// Backend spawns and supervises one llama-server process per run
// configuration. It implements process.Runner[RunConfig].
type Backend struct {
	// log is the associated logger.
	log logging.Logger
	// serverLog receives the llama-server process's stderr output.
	serverLog logging.Logger
	// command is the llama-server program path.
	command string
	// execDir is the working directory for the spawned process.
	execDir string
	// host and port are where the spawned server is told to listen.
	host string
	port int
	// metrics tracks spawn counts. May be nil.
	metrics *metrics.Metrics
}

// NewBackend creates a llama.cpp backend.
func NewBackend(log, serverLog logging.Logger, command, execDir, host string, port int, m *metrics.Metrics) *Backend {
	return &Backend{
		log:       log,
		serverLog: serverLog,
		command:   command,
		execDir:   execDir,
		host:      host,
		port:      port,
		metrics:   m,
	}
}

// Addr returns the address the spawned server listens on.
func (b *Backend) Addr() string {
	return fmt.Sprintf("%s:%d", b.host, b.port)
}

// RunProcess implements process.Runner.RunProcess. It spawns llama-server
// with the given configuration, watches stderr for the readiness sentinel and
// supervises the child until it exits or cancel is closed.
func (b *Backend) RunProcess(config RunConfig, cancel <-chan struct{}, events chan<- process.Event[RunConfig]) {
	cmd := exec.Command(b.command)
	cmd.Dir = b.execDir
	cmd.Args = append(cmd.Args, "--host", b.host, "--port", strconv.Itoa(b.port))
	cmd.Args = append(cmd.Args, config.CommandArgs()...)

	cmd.Env = os.Environ()
	for key, value := range config.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	// Stdout is discarded; readiness and diagnostics come over stderr.
	cmd.Stdout = nil
	stderr, err := cmd.StderrPipe()
	if err != nil {
		b.log.Errorf("unable to capture llama-server stderr: %v", err)
		go func() { events <- process.Finished[RunConfig](nil) }()
		return
	}

	if err := cmd.Start(); err != nil {
		b.log.Errorf("unable to spawn llama-server: %v", err)
		go func() { events <- process.Finished[RunConfig](nil) }()
		return
	}
	b.log.Infof("spawned llama-server (pid %d) serving %q", cmd.Process.Pid, config.Args.Alias)
	if b.metrics != nil {
		b.metrics.Spawns.Inc()
	}

	// Watch stderr line by line; the first sentinel match marks readiness.
	go func() {
		scanner := bufio.NewScanner(stderr)
		notified := false
		for scanner.Scan() {
			line := scanner.Text()
			b.serverLog.Infoln(line)
			if !notified && strings.Contains(line, readySentinel) {
				notified = true
				events <- process.Started[RunConfig]()
			}
		}
	}()

	// Supervise: race the child's exit against the cancel signal, killing the
	// child on cancel, and emit the finish notification exactly once.
	go func() {
		waitResult := make(chan error, 1)
		go func() { waitResult <- cmd.Wait() }()

		select {
		case err := <-waitResult:
			events <- process.Finished[RunConfig](exitCodeOf(b.log, err))
		case <-cancel:
			b.log.Infof("killing llama-server (pid %d)", cmd.Process.Pid)
			if err := cmd.Process.Kill(); err != nil {
				b.log.Warnf("unable to kill llama-server: %v", err)
			}
			<-waitResult
			events <- process.Finished[RunConfig](nil)
		}
	}()
}

func exitCodeOf(log logging.Logger, err error) *int {
	if err == nil {
		log.Infof("llama-server exited cleanly")
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		log.Warnf("llama-server exited with code %d", code)
		return &code
	}
	log.Warnf("llama-server terminated: %v", err)
	return nil
}
