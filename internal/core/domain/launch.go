package domain

// LaunchState is the lifecycle of the single server process.
type LaunchState int

const (
	StateNotStarted LaunchState = iota
	StateRunning
	StateTerminated
)

func (s LaunchState) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateRunning:
		return "RUNNING"
	case StateTerminated:
		return "TERMINATED"
	}
	return "UNKNOWN"
}

// BuildResult is what a successful image build produces.
type BuildResult struct {
	Image   string `json:"image"`
	ImageID string `json:"image_id"`
	Size    int64  `json:"size"`
}
