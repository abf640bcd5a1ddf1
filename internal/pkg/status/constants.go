package status

// Status represents live call status
type Status int

const (
	// Unknown - no signal received yet
	Unknown Status = iota
	// InProgress - some call activity was seen
	InProgress
	// Ended - end-of-call report processed, terminal
	Ended
)

var (
	statusName = map[Status]string{Unknown: "unknown", InProgress: "in-progress", Ended: "ended"}
	nameStatus = map[string]Status{"unknown": Unknown, "in-progress": InProgress, "ended": Ended}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}

// Merge implements the monotonic state machine:
// any activity moves unknown to in-progress, ended always wins and is terminal.
func Merge(current, incoming Status) Status {
	if current == Ended || incoming == Ended {
		return Ended
	}
	if incoming == InProgress {
		return InProgress
	}
	return current
}
