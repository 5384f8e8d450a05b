package process

// Phase enumerates the lifecycle phases of a managed subprocess.
type Phase uint8

const (
	// Stopped indicates that no subprocess is running or starting.
	Stopped Phase = iota
	// Starting indicates that a subprocess has been spawned but has not yet
	// signalled readiness.
	Starting
	// Running indicates that the subprocess has signalled readiness and is
	// serving its configuration.
	Running
	// Stopping indicates that a termination is in flight. If a pending
	// configuration is set, the manager will spawn it once the child exits.
	Stopping
)

// String implements Stringer.String for Phase.
func (p Phase) String() string {
	switch p {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// State is a snapshot of the managed subprocess lifecycle. Config is only
// meaningful when Phase is Starting, Running, or Stopping (where it names the
// configuration of the process being terminated). Pending is only non-nil in
// Stopping and holds the configuration to spawn once the child exits.
type State[C any] struct {
	Phase   Phase
	Config  C
	Pending *C
}

// stateSnapshot deep-copies the pending slot so that readers never share it
// with the event loop.
func (s State[C]) snapshot() State[C] {
	if s.Pending != nil {
		pending := *s.Pending
		s.Pending = &pending
	}
	return s
}
