package broadcast

// Progress steps of a processing run
const (
	StepDetect     = "detect"
	StepDownload   = "download"
	StepTranscribe = "transcribe"
	StepAnalyze    = "analyze"
	StepSave       = "save"
	StepDone       = "done"
)

// Progress statuses
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// ProgressEvent reports a pipeline step for the live dashboard
type ProgressEvent struct {
	Step    string `json:"step"`
	Status  string `json:"status"`
	Message string `json:"message"`
	FileID  string `json:"file_id,omitempty"`
}

// CallEndedEvent notifies listeners that a live call finished
type CallEndedEvent struct {
	Type     string  `json:"type"`
	CallID   string  `json:"call_id"`
	Reason   string  `json:"reason,omitempty"`
	Duration float64 `json:"duration"`
}

// NewCallEnded creates a call ended event
func NewCallEnded(callID, reason string, duration float64) CallEndedEvent {
	return CallEndedEvent{Type: "call_ended", CallID: callID, Reason: reason, Duration: duration}
}
