package analyze

import (
	"strings"
)

var positiveWords = []string{"good", "great", "excellent", "thanks", "helpful",
	"wonderful", "appreciate", "happy", "perfect"}
// "issue" names a topic, not a mood, so it is not listed here
var negativeWords = []string{"bad", "error", "wrong", "fail", "problem",
	"angry", "slow", "terrible", "awful", "disappointed"}

var tagWords = []struct {
	tag   string
	words []string
}{
	{"Billing", []string{"billing", "price", "cost", "charge", "payment", "invoice"}},
	{"Support", []string{"support", "help", "technical", "broken", "fix", "assist"}},
	{"Churn Risk", []string{"cancel", "cancellation", "refund", "leaving", "quit"}},
}

// Fallback is a pure keyword heuristic used when no LLM is available
// or the LLM call fails. Deterministic, makes no network calls.
func Fallback(text string) *Result {
	res := &Result{Sentiment: "Neutral", Tags: []string{}}
	if text == "" {
		res.Summary.Overview = "No text to summarize"
		backfillSummary(&res.Summary)
		return res
	}
	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	if pos > neg {
		res.Sentiment = "Positive"
	} else if neg > pos {
		res.Sentiment = "Negative"
	}
	for _, tw := range tagWords {
		for _, w := range tw.words {
			if strings.Contains(lower, w) {
				res.Tags = append(res.Tags, tw.tag)
				break
			}
		}
	}
	res.Summary.Overview = firstSentences(text, 2)
	backfillSummary(&res.Summary)
	return res
}

func firstSentences(text string, n int) string {
	sentences := strings.Split(text, ".")
	if len(sentences) > n {
		sentences = sentences[:n]
	}
	res := strings.TrimSpace(strings.Join(sentences, ". "))
	if res == "" {
		return text
	}
	return res + "."
}
