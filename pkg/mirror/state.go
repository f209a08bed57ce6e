package mirror

import "errors"

// State guard errors.
var (
	// ErrNotStopped is returned by Start unless the orchestrator is stopped.
	ErrNotStopped = errors.New("mirror already active")

	// ErrNotRunning is returned by Stop and input calls unless running.
	ErrNotRunning = errors.New("mirror not running")

	// ErrNoSession is returned by Start without a live session.
	ErrNoSession = errors.New("no live session")

	// ErrUnsupportedTransport is returned when the session transport
	// cannot push files or run commands.
	ErrUnsupportedTransport = errors.New("session cannot deploy the mirror server")

	// ErrSessionEnded is the cause when the session disconnects during
	// deployment.
	ErrSessionEnded = errors.New("session ended")
)

// State is the orchestrator state.
type State uint8

const (
	// StateStopped means no mirror is active.
	StateStopped State = iota

	// StateDeploying means a deployment stage is in progress.
	StateDeploying

	// StateRunning means video and input are flowing.
	StateRunning
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateDeploying:
		return "DEPLOYING"
	case StateRunning:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// Stage is a deployment stage.
type Stage uint8

const (
	// StageNone is the stage outside of deployment.
	StageNone Stage = iota

	// StageDownloading fetches the server artifact.
	StageDownloading

	// StagePushing writes the artifact to the device.
	StagePushing

	// StageStarting launches the server on the device.
	StageStarting
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageNone:
		return "NONE"
	case StageDownloading:
		return "DOWNLOADING"
	case StagePushing:
		return "PUSHING"
	case StageStarting:
		return "STARTING"
	default:
		return "UNKNOWN"
	}
}

// Status is the state plus the stage while deploying.
type Status struct {
	State State
	Stage Stage
}

func (s Status) String() string {
	if s.State == StateDeploying {
		return s.State.String() + "(" + s.Stage.String() + ")"
	}
	return s.State.String()
}

// Progress reports one deployment stage step.
type Progress struct {
	Stage Stage

	// Done counts bytes transferred so far. For StageStarting it is 0
	// before the server starts and 1 after.
	Done int64

	// Total is the stage size, or -1 while unknown.
	Total int64

	// BytesPerSecond is the smoothed throughput.
	BytesPerSecond float64
}

// Complete reports whether the stage finished.
func (p Progress) Complete() bool {
	return p.Total >= 0 && p.Done == p.Total
}
