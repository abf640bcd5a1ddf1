package callevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Transcript(t *testing.T) {
	ev, err := Parse([]byte(`{"message":{"type":"transcript","transcriptType":"final",
		"role":"user","transcript":"hello there","call":{"id":"c1"}}}`))
	require.Nil(t, err)
	assert.Equal(t, TypeTranscript, ev.Type)
	assert.Equal(t, "c1", ev.CallID)
	assert.Equal(t, "user", ev.Role)
	assert.Equal(t, "hello there", ev.Transcript)
	assert.True(t, ev.FinalTranscript())
}

func TestParse_PartialTranscript(t *testing.T) {
	ev, err := Parse([]byte(`{"message":{"type":"transcript","transcriptType":"partial",
		"role":"user","transcript":"hel","call":{"id":"c1"}}}`))
	require.Nil(t, err)
	assert.False(t, ev.FinalTranscript())
}

func TestParse_CallIDPrecedence(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "top level call", body: `{"call":{"id":"top"},"message":{"type":"status-update","call":{"id":"inner"}}}`, want: "top"},
		{name: "message call", body: `{"message":{"type":"status-update","call":{"id":"inner"}}}`, want: "inner"},
		{name: "message call_id", body: `{"message":{"type":"status-update","call_id":"snake","callId":"camel"}}`, want: "snake"},
		{name: "message callId", body: `{"message":{"type":"status-update","callId":"camel"}}`, want: "camel"},
		{name: "top call_id", body: `{"call_id":"root","message":{"type":"status-update"}}`, want: "root"},
		{name: "none", body: `{"message":{"type":"status-update"}}`, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Parse([]byte(tc.body))
			require.Nil(t, err)
			assert.Equal(t, tc.want, ev.CallID)
		})
	}
}

func TestParse_EndOfCall(t *testing.T) {
	ev, err := Parse([]byte(`{"call":{"id":"c1","duration":12.5,"cost":0.4},
		"message":{"type":"end-of-call-report","endedReason":"customer-ended-call",
		"summary":"short talk","recordingUrl":"http://r/1.wav"}}`))
	require.Nil(t, err)
	assert.Equal(t, TypeEndOfCallReport, ev.Type)
	assert.Equal(t, "customer-ended-call", ev.EndedReason)
	assert.Equal(t, "http://r/1.wav", ev.RecordingURL)
	assert.InDelta(t, 12.5, ev.Duration, 0.0001)
	assert.InDelta(t, 0.4, ev.Cost, 0.0001)
}

func TestParse_RecordingURLFallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "camel", body: `{"message":{"recordingUrl":"a","recording_url":"b"}}`, want: "a"},
		{name: "snake", body: `{"message":{"recording_url":"b"}}`, want: "b"},
		{name: "artifact", body: `{"message":{"artifact":{"recordingUrl":"c"}}}`, want: "c"},
		{name: "stereo", body: `{"message":{"stereoRecordingUrl":"d"}}`, want: "d"},
		{name: "artifact stereo", body: `{"message":{"artifact":{"stereoRecordingUrl":"e"}}}`, want: "e"},
		{name: "none", body: `{"message":{}}`, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Parse([]byte(tc.body))
			require.Nil(t, err)
			assert.Equal(t, tc.want, ev.RecordingURL)
		})
	}
}

func TestParse_Fails(t *testing.T) {
	_, err := Parse([]byte(`olia`))
	assert.NotNil(t, err)
}
