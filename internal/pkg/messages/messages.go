package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "VOXY/"
	// Process queue name - audio processing pipeline jobs
	Process = st + "Process"
	// Inform queue name - email notification jobs
	Inform = st + "Inform"
)

// ProcessMessage describes one audio processing pipeline job.
// Exactly one of StoredName or RecordingURL provides the audio source:
// StoredName points into the filer, RecordingURL is fetched over HTTP.
type ProcessMessage struct {
	amessages.QueueMessage
	Filename     string `json:"filename"`
	StoredName   string `json:"storedName,omitempty"`
	RecordingURL string `json:"recordingURL,omitempty"`
	FileID       string `json:"fileID,omitempty"`
	Language     string `json:"language,omitempty"`
	Speakers     int    `json:"speakers,omitempty"`
}
