package api

// Utterance is one diarized segment returned by the speech-to-text provider
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
}

// Result is a finished transcription
type Result struct {
	Text       string
	Duration   float64
	Language   string
	Utterances []Utterance
}

// Job statuses of the provider
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)
