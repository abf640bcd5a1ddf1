package analyze

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxanalyze/voxy/internal/pkg/persistence"
)

var languageNames = map[string]string{"en": "English", "ml": "Malayalam",
	"hi": "Hindi", "ar": "Arabic"}

// LanguageName maps a language code to its display name, default Spanish
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return "Spanish"
}

// Translate translates a plain transcript to the target language
func (s *Service) Translate(ctx context.Context, text, language string) (string, error) {
	if s.llm == nil {
		return "", fmt.Errorf("no llm configured")
	}
	name := LanguageName(language)
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}
	out, err := s.llm.Complete(ctx, fmt.Sprintf("Translate to %s. Respond ONLY with the translation.", name),
		fmt.Sprintf("Translate to %s:\n%s", name, text))
	if err != nil {
		return "", fmt.Errorf("can't translate: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// TranslateSegments translates diarized segment texts preserving order and
// count. The original text of each segment is kept in place on mismatch.
func (s *Service) TranslateSegments(ctx context.Context, segments []persistence.Segment, language string) ([]persistence.Segment, error) {
	if s.llm == nil {
		return nil, fmt.Errorf("no llm configured")
	}
	name := LanguageName(language)
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		texts = append(texts, seg.Text)
	}
	combined := strings.Join(texts, "\n---\n")
	if len(combined) > maxPromptChars {
		combined = combined[:maxPromptChars]
	}
	out, err := s.llm.Complete(ctx, "Translate accurately. Preserve format.",
		fmt.Sprintf("Translate segments to %s. Separated by ---. Preserve order/count. Only text.\nSegments:\n%s", name, combined))
	if err != nil {
		return nil, fmt.Errorf("can't translate: %w", err)
	}
	parts := strings.Split(strings.TrimSpace(out), "---")
	res := make([]persistence.Segment, len(segments))
	copy(res, segments)
	for i := range res {
		if i < len(parts) {
			if txt := strings.TrimSpace(parts[i]); txt != "" {
				res[i].Text = txt
			}
		}
	}
	return res, nil
}
