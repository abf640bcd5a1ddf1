package analyze

import (
	"fmt"
	"sort"
	"strings"

	"github.com/voxanalyze/voxy/internal/pkg/persistence"
)

// LabelSpeakers orders segments by start time and maps each raw speaker ID
// to a sequential "Speaker N" label in first-occurrence order.
// Returns the sorted copy and the raw-to-label map.
func LabelSpeakers(segments []persistence.Segment) ([]persistence.Segment, map[string]string) {
	res := make([]persistence.Segment, len(segments))
	copy(res, segments)
	sort.SliceStable(res, func(i, j int) bool { return res[i].Start < res[j].Start })
	labels := map[string]string{}
	for _, s := range res {
		if _, ok := labels[s.Speaker]; !ok {
			labels[s.Speaker] = fmt.Sprintf("Speaker %d", len(labels)+1)
		}
	}
	return res, labels
}

// FormatTranscript renders diarized segments as labeled lines for the analysis prompt
func FormatTranscript(segments []persistence.Segment) string {
	sorted, labels := LabelSpeakers(segments)
	sb := strings.Builder{}
	for _, s := range sorted {
		sb.WriteString(labels[s.Speaker])
		sb.WriteString(": ")
		sb.WriteString(s.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ResolveSpeakers stamps display names onto sorted segments using the
// detected speakers map (label to "name, role" value, the part before a
// comma is the name). Returns the segments and the distinct speaker count.
func ResolveSpeakers(segments []persistence.Segment, speakers map[string]string) ([]persistence.Segment, int) {
	sorted, labels := LabelSpeakers(segments)
	for i := range sorted {
		label := labels[sorted[i].Speaker]
		name := speakers[label]
		if at := strings.Index(name, ","); at >= 0 {
			name = name[:at]
		}
		name = strings.TrimSpace(name)
		if name == "" || strings.EqualFold(name, "unknown") {
			name = label
		}
		sorted[i].DisplayName = name
	}
	return sorted, len(labels)
}
