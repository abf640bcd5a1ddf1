package callevent

import (
	"encoding/json"
	"fmt"
)

// Event types sent by the telephony provider
const (
	TypeTranscript         = "transcript"
	TypeStatusUpdate       = "status-update"
	TypeEndOfCallReport    = "end-of-call-report"
	TypeConversationUpdate = "conversation-update"
	TypeSpeechUpdate       = "speech-update"
)

// Event is a parsed telephony webhook event
type Event struct {
	Type   string
	CallID string
	// transcript
	Role           string
	TranscriptType string
	Transcript     string
	// status update
	Status string
	// end of call report
	EndedReason  string
	Summary      string
	RecordingURL string
	Duration     float64
	Cost         float64
}

// FinalTranscript indicates an actionable transcript chunk
func (e *Event) FinalTranscript() bool {
	return e.Type == TypeTranscript && e.TranscriptType == "final" && e.Transcript != ""
}

type callObj struct {
	ID       string  `json:"id"`
	Duration float64 `json:"duration"`
	Cost     float64 `json:"cost"`
}

type artifact struct {
	RecordingURL            string `json:"recordingUrl"`
	RecordingURLSnake       string `json:"recording_url"`
	StereoRecordingURL      string `json:"stereoRecordingUrl"`
	StereoRecordingURLSnake string `json:"stereo_recording_url"`
}

type message struct {
	Type                    string    `json:"type"`
	Call                    *callObj  `json:"call"`
	CallIDSnake             string    `json:"call_id"`
	CallIDCamel             string    `json:"callId"`
	TranscriptType          string    `json:"transcriptType"`
	Role                    string    `json:"role"`
	Transcript              string    `json:"transcript"`
	Status                  string    `json:"status"`
	EndedReason             string    `json:"endedReason"`
	Summary                 string    `json:"summary"`
	RecordingURL            string    `json:"recordingUrl"`
	RecordingURLSnake       string    `json:"recording_url"`
	StereoRecordingURL      string    `json:"stereoRecordingUrl"`
	StereoRecordingURLSnake string    `json:"stereo_recording_url"`
	Artifact                *artifact `json:"artifact"`
}

type payload struct {
	Call    *callObj `json:"call"`
	CallID  string   `json:"call_id"`
	Message message  `json:"message"`
}

// Parse extracts an event from a raw webhook body.
// Providers are inconsistent about where the call ID and recording URL
// live, so several known locations are probed in a fixed order.
func Parse(body []byte) (*Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("can't unmarshal event: %w", err)
	}
	call := p.Call
	if call == nil {
		call = p.Message.Call
	}
	res := &Event{Type: p.Message.Type,
		Role: p.Message.Role, TranscriptType: p.Message.TranscriptType, Transcript: p.Message.Transcript,
		Status:      p.Message.Status,
		EndedReason: p.Message.EndedReason, Summary: p.Message.Summary,
		RecordingURL: recordingURL(&p.Message),
	}
	if call != nil {
		res.CallID = call.ID
		res.Duration = call.Duration
		res.Cost = call.Cost
	}
	if res.CallID == "" {
		res.CallID = firstOf(p.Message.CallIDSnake, p.Message.CallIDCamel, p.CallID)
	}
	return res, nil
}

func recordingURL(m *message) string {
	res := firstOf(m.RecordingURL, m.RecordingURLSnake)
	if res == "" && m.Artifact != nil {
		res = firstOf(m.Artifact.RecordingURL, m.Artifact.RecordingURLSnake)
	}
	if res == "" {
		res = firstOf(m.StereoRecordingURL, m.StereoRecordingURLSnake)
	}
	if res == "" && m.Artifact != nil {
		res = firstOf(m.Artifact.StereoRecordingURL, m.Artifact.StereoRecordingURLSnake)
	}
	return res
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
