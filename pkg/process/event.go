package process

type eventKind uint8

const (
	eventStartRequested eventKind = iota
	eventStopRequested
	eventReadState
	eventChildStarted
	eventChildFinished
)

// Event is a message on the manager's queue. Commands are created internally
// by Start/Stop/ReadState; runners emit process notifications through the
// Started and Finished constructors.
type Event[C any] struct {
	kind     eventKind
	config   C
	exitCode *int
	reply    chan State[C]
}

// Started builds the notification a runner emits once its process has
// signalled readiness.
func Started[C any]() Event[C] {
	return Event[C]{kind: eventChildStarted}
}

// Finished builds the notification a runner emits when its process has
// terminated. exitCode is nil when the process was killed on cancel or its
// exit status is unknown.
func Finished[C any](exitCode *int) Event[C] {
	return Event[C]{kind: eventChildFinished, exitCode: exitCode}
}
