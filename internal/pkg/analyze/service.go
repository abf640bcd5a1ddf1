package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/voxanalyze/voxy/internal/pkg/persistence"
)

// Completer abstracts the chat completion API
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Result is a full call analysis
type Result struct {
	Sentiment string
	Tags      []string
	Speakers  map[string]string
	Summary   persistence.Summary
}

// Service analyzes call transcripts.
// With no completer configured it degrades to the keyword heuristic.
type Service struct {
	llm Completer
}

// NewService creates an analysis service, llm may be nil
func NewService(llm Completer) *Service {
	return &Service{llm: llm}
}

const systemPrompt = "You are a professional call analysis expert who provides detailed, specific, " +
	"and contextual analysis. NEVER use generic one-word answers. Always write detailed responses " +
	"(minimum 2 sentences) based on the actual transcript content. Extract ONLY speaker names if " +
	"available. Be thorough and specific in your analysis."

const promptTemplate = `Analyze the following call transcript and provide a comprehensive, detailed analysis in simple, easy-to-understand words.

1. Sentiment: Classify as exactly one of: "Positive", "Negative", or "Neutral"
2. Tags: List relevant tags from these options: "Billing", "Support", "Churn Risk", "Sales", "Feedback", "Complaint", "Technical Issue"
3. Speakers: Identify the identity or role of each speaker label present in the transcript (e.g., "Speaker 1", "Speaker 2").
   - Extract ONLY the speaker's name if mentioned (e.g., "Diana").
   - NEVER combine name with role.
   - If the name is unknown, provide a short, single-word role (e.g., "Agent", "Customer").
4. Summary with fields: overview (4-6 sentences telling the complete story of the call),
   key_points (3-5 specific points, each a complete sentence),
   caller_intent (2-3 sentences on what the caller wanted to achieve),
   issue_details (2-3 sentences on the specific problem or topic discussed),
   resolution (2-3 sentences on what was done, decided or agreed),
   action_items (specific next steps, WHO does WHAT, empty array if none),
   tone (descriptive, e.g. "friendly and cooperative"),
   meeting_date and meeting_time (only if mentioned, else null).

NEVER use generic one-word or two-word answers. Each of caller_intent, issue_details, resolution must be at least 2 complete sentences. If the call is very short, describe exactly what was said.

Transcript:
%s

Respond ONLY in this exact JSON format:
{
    "sentiment": "Positive" or "Negative" or "Neutral",
    "tags": ["tag1", "tag2"],
    "speakers": {"Speaker 1": "Name", "Speaker 2": "Name"},
    "summary": {
        "overview": "...",
        "key_points": ["...", "..."],
        "caller_intent": "...",
        "issue_details": "...",
        "resolution": "...",
        "action_items": ["...", "..."],
        "tone": "...",
        "meeting_date": "Date or null",
        "meeting_time": "Time or null"
    }
}`

const maxPromptChars = 6000

// Analyze runs LLM analysis over the transcript. When diarized segments are
// available they are formatted into a speaker-labeled transcript first.
// Falls back to the keyword heuristic on any LLM failure.
func (s *Service) Analyze(ctx context.Context, text string, segments []persistence.Segment) (*Result, error) {
	if text == "" && len(segments) == 0 {
		return nil, fmt.Errorf("no text")
	}
	analysisText := text
	if len(segments) > 0 {
		analysisText = FormatTranscript(segments)
	}
	if s.llm == nil {
		return Fallback(text), nil
	}
	res, err := s.analyzeLLM(ctx, analysisText)
	if err != nil {
		goapp.Log.Warn().Err(err).Msg("llm analysis failed, using fallback")
		return Fallback(text), nil
	}
	return res, nil
}

func (s *Service) analyzeLLM(ctx context.Context, text string) (*Result, error) {
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}
	out, err := s.llm.Complete(ctx, systemPrompt, fmt.Sprintf(promptTemplate, text))
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Sentiment string              `json:"sentiment"`
		Tags      []string            `json:"tags"`
		Speakers  map[string]string   `json:"speakers"`
		Summary   persistence.Summary `json:"summary"`
	}
	if err := repairJSON(out, &parsed); err != nil {
		return nil, fmt.Errorf("can't parse llm response: %w", err)
	}
	res := &Result{Sentiment: coerceSentiment(parsed.Sentiment), Tags: parsed.Tags,
		Speakers: parsed.Speakers, Summary: parsed.Summary}
	backfillSummary(&res.Summary)
	res.Summary.Speakers = parsed.Speakers
	goapp.Log.Info().Str("sentiment", res.Sentiment).Int("speakers", len(res.Speakers)).Msg("analyzed")
	return res, nil
}

// repairJSON tolerates markdown fenced output: first the fence is stripped,
// then if strict parsing still fails the outermost brace span is retried.
func repairJSON(s string, v interface{}) error {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.Split(s, "```")
		if len(parts) > 1 {
			s = parts[1]
		}
		s = strings.TrimPrefix(strings.TrimSpace(s), "json")
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		from, to := strings.Index(s, "{"), strings.LastIndex(s, "}")
		if from < 0 || to <= from {
			return err
		}
		return json.Unmarshal([]byte(s[from:to+1]), v)
	}
	return nil
}

func coerceSentiment(s string) string {
	switch s {
	case "Positive", "Negative", "Neutral":
		return s
	}
	return "Neutral"
}

// backfillSummary replaces missing or too short required fields with defaults
func backfillSummary(s *persistence.Summary) {
	if len(s.CallerIntent) < 20 {
		s.CallerIntent = "The caller initiated contact to engage with the service or representative. " +
			"The specific purpose was not clearly stated in this brief interaction."
	}
	if len(s.IssueDetails) < 20 {
		s.IssueDetails = "This was a brief interaction or initial greeting. " +
			"No specific issue or detailed topic was discussed during this short call."
	}
	if len(s.Resolution) < 20 {
		s.Resolution = "The call was completed as a brief interaction. " +
			"No specific resolution or action was required as this appeared to be an initial contact or test call."
	}
	if s.Tone == "" {
		s.Tone = "Professional and courteous"
	}
}
