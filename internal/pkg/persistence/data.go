package persistence

import "time"

type (

	// Summary is the structured call summary produced by analysis
	Summary struct {
		Overview     string            `json:"overview"`
		KeyPoints    []string          `json:"key_points"`
		CallerIntent string            `json:"caller_intent"`
		IssueDetails string            `json:"issue_details"`
		Resolution   string            `json:"resolution"`
		ActionItems  []string          `json:"action_items"`
		Tone         string            `json:"tone"`
		MeetingDate  string            `json:"meeting_date,omitempty"`
		MeetingTime  string            `json:"meeting_time,omitempty"`
		Speakers     map[string]string `json:"detected_speakers,omitempty"`
	}

	// Segment is one diarized utterance of a call
	Segment struct {
		Speaker     string `json:"speaker"`
		Text        string `json:"text"`
		Start       int64  `json:"start"`
		End         int64  `json:"end"`
		DisplayName string `json:"display_name,omitempty"`
	}

	// Call table - one row per processed recording, keyed by filename
	Call struct {
		ID           int64     `json:"id"`
		Filename     string    `json:"filename"`
		Transcript   string    `json:"transcript"`
		Sentiment    string    `json:"sentiment"`
		Tags         []string  `json:"tags"`
		Summary      Summary   `json:"summary"`
		Duration     int       `json:"duration"`
		AudioURL     string    `json:"audio_url"`
		Diarization  []Segment `json:"diarization"`
		SpeakerCount int       `json:"speaker_count"`
		EmailSent    bool      `json:"email_sent"`
		Created      time.Time `json:"created_at"`
		Updated      time.Time `json:"updated_at"`
	}

	// Turn table - one row per contiguous same-role transcript run
	Turn struct {
		ID      int64     `json:"id"`
		CallID  string    `json:"call_id"`
		Role    string    `json:"role"`
		Text    string    `json:"text"`
		Updated time.Time `json:"updated_at"`
	}

	// CallStatus table - live telephony call state
	CallStatus struct {
		CallID  string    `json:"call_id"`
		Status  string    `json:"status"`
		Updated time.Time `json:"updated_at"`
	}

	// Stats is aggregate dashboard numbers
	Stats struct {
		Total    int `json:"total"`
		Positive int `json:"positive"`
		Negative int `json:"negative"`
		Neutral  int `json:"neutral"`
	}

	// Report table - end-of-call report from the telephony provider
	Report struct {
		CallID       string    `json:"call_id"`
		EndedReason  string    `json:"ended_reason"`
		Summary      string    `json:"summary"`
		RecordingURL string    `json:"recording_url"`
		Duration     float64   `json:"duration"`
		Cost         float64   `json:"cost"`
		Created      time.Time `json:"created_at"`
	}
)
