package enum

type FeedState uint8

const (
	FeedStateIdle FeedState = iota
	FeedStateRunning
	FeedStateCompleted
	FeedStateErrored
)

func (s FeedState) IsAvailable() bool {
	return s <= FeedStateErrored
}

func (s FeedState) IsTerminal() bool {
	return s == FeedStateCompleted || s == FeedStateErrored
}

func (s FeedState) String() string {
	switch s {
	case FeedStateIdle:
		return "idle"
	case FeedStateRunning:
		return "running"
	case FeedStateCompleted:
		return "completed"
	case FeedStateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ParseFeedState maps a state name such as "running" to its enum value.
func ParseFeedState(name string) (FeedState, bool) {
	for s := FeedStateIdle; s.IsAvailable(); s++ {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}
