package analyze

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxanalyze/voxy/internal/pkg/persistence"
)

type testCompleter struct {
	resp string
	err  error
}

func (c *testCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	return c.resp, c.err
}

func TestAnalyze(t *testing.T) {
	cl := &testCompleter{resp: "```json\n" + `{"sentiment":"Positive","tags":["Support"],
		"speakers":{"Speaker 1":"Diana"},
		"summary":{"overview":"A long enough overview of the call that passes checks.",
		"caller_intent":"The caller wanted to check the account balance and recent fees.",
		"issue_details":"An unexpected fee appeared on the monthly statement of the caller.",
		"resolution":"The agent explained the fee and the caller accepted the explanation.",
		"tone":"friendly"}}` + "\n```"}
	s := NewService(cl)
	res, err := s.Analyze(context.Background(), "some text", nil)
	require.Nil(t, err)
	assert.Equal(t, "Positive", res.Sentiment)
	assert.Equal(t, []string{"Support"}, res.Tags)
	assert.Equal(t, "Diana", res.Speakers["Speaker 1"])
	assert.Equal(t, "Diana", res.Summary.Speakers["Speaker 1"])
	assert.Equal(t, "friendly", res.Summary.Tone)
}

func TestAnalyze_FallbackOnError(t *testing.T) {
	s := NewService(&testCompleter{err: fmt.Errorf("olia")})
	res, err := s.Analyze(context.Background(), "I want to cancel my payment", nil)
	require.Nil(t, err)
	assert.Equal(t, []string{"Billing", "Churn Risk"}, res.Tags)
}

func TestAnalyze_NoText(t *testing.T) {
	s := NewService(nil)
	_, err := s.Analyze(context.Background(), "", nil)
	assert.NotNil(t, err)
}

func TestAnalyze_CoerceSentiment(t *testing.T) {
	cl := &testCompleter{resp: `{"sentiment":"Angry","tags":[],"summary":{}}`}
	s := NewService(cl)
	res, err := s.Analyze(context.Background(), "some text", nil)
	require.Nil(t, err)
	assert.Equal(t, "Neutral", res.Sentiment)
}

func TestRepairJSON(t *testing.T) {
	type out struct {
		A string `json:"a"`
	}
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: `{"a":"x"}`, want: "x"},
		{name: "fenced", in: "```json\n{\"a\":\"x\"}\n```", want: "x"},
		{name: "fence no lang", in: "```\n{\"a\":\"x\"}\n```", want: "x"},
		{name: "prefixed", in: `Here is the result: {"a":"x"} done`, want: "x"},
		{name: "broken", in: `no json here`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var v out
			err := repairJSON(tc.in, &v)
			if tc.wantErr {
				assert.NotNil(t, err)
			} else {
				require.Nil(t, err)
				assert.Equal(t, tc.want, v.A)
			}
		})
	}
}

func TestBackfillSummary(t *testing.T) {
	s := persistence.Summary{CallerIntent: "short"}
	backfillSummary(&s)
	assert.True(t, len(s.CallerIntent) >= 20)
	assert.True(t, len(s.IssueDetails) >= 20)
	assert.True(t, len(s.Resolution) >= 20)
	assert.Equal(t, "Professional and courteous", s.Tone)

	keep := "The caller wanted to verify the account balance and ask about fees."
	s = persistence.Summary{CallerIntent: keep, Tone: "tense"}
	backfillSummary(&s)
	assert.Equal(t, keep, s.CallerIntent)
	assert.Equal(t, "tense", s.Tone)
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		wantSentiment string
		wantTags      []string
	}{
		{name: "neutral", text: "hello there", wantSentiment: "Neutral", wantTags: []string{}},
		{name: "positive", text: "thanks, this was great and helpful", wantSentiment: "Positive", wantTags: []string{}},
		{name: "negative", text: "there is a problem and an error", wantSentiment: "Negative", wantTags: []string{}},
		{name: "billing", text: "question about my invoice", wantSentiment: "Neutral", wantTags: []string{"Billing"}},
		{name: "billing issue stays neutral", text: "Agent: Hello. Customer: I have a billing issue.",
			wantSentiment: "Neutral", wantTags: []string{"Billing"}},
		{name: "support", text: "my device is broken", wantSentiment: "Neutral", wantTags: []string{"Support"}},
		{name: "churn", text: "I want a refund and will quit", wantSentiment: "Neutral", wantTags: []string{"Churn Risk"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Fallback(tc.text)
			assert.Equal(t, tc.wantSentiment, res.Sentiment)
			assert.Equal(t, tc.wantTags, res.Tags)
		})
	}
}

func TestFallback_Summary(t *testing.T) {
	res := Fallback("First sentence. Second sentence. Third sentence.")
	assert.Equal(t, "First sentence.  Second sentence.", res.Summary.Overview)
	res = Fallback("")
	assert.Equal(t, "No text to summarize", res.Summary.Overview)
	assert.Equal(t, "Neutral", res.Sentiment)
}
