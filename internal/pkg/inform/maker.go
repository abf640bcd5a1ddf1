package inform

import (
	"fmt"
	"strings"

	"github.com/jordan-wright/email"

	"github.com/voxanalyze/voxy/internal/pkg/persistence"
)

// CallEmailMaker builds notification emails for processed calls
type CallEmailMaker struct {
	from string
	to   string
}

// NewCallEmailMaker creates the email maker
func NewCallEmailMaker(from, to string) (*CallEmailMaker, error) {
	if from == "" {
		return nil, fmt.Errorf("no from address")
	}
	if to == "" {
		return nil, fmt.Errorf("no to address")
	}
	return &CallEmailMaker{from: from, to: to}, nil
}

// Make prepares the plain and HTML notification for one call
func (m *CallEmailMaker) Make(call *persistence.Call) (*email.Email, error) {
	if call == nil {
		return nil, fmt.Errorf("no call data")
	}
	res := email.NewEmail()
	res.From = m.from
	res.To = []string{m.to}
	res.Subject = fmt.Sprintf("New Call Analyzed: %s", call.Filename)
	res.Text = []byte(makeText(call))
	res.HTML = []byte(makeHTML(call))
	return res, nil
}

func tagsStr(tags []string) string {
	if len(tags) == 0 {
		return "None"
	}
	return strings.Join(tags, ", ")
}

func makeText(call *persistence.Call) string {
	sb := strings.Builder{}
	line := strings.Repeat("=", 60)
	sb.WriteString(line + "\nNEW CALL ANALYSIS COMPLETE\n" + line + "\n\n")
	sb.WriteString(fmt.Sprintf("File: %s\nSentiment: %s\nTags: %s\n\n", call.Filename,
		call.Sentiment, tagsStr(call.Tags)))
	sb.WriteString("SUMMARY:\n" + strings.Repeat("-", 60) + "\n")
	sb.WriteString(call.Summary.Overview + "\n\n")
	sb.WriteString(line + "\nVoxAnalyze - AI-Powered Call Analysis Dashboard\n" + line + "\n")
	return sb.String()
}

func makeHTML(call *persistence.Call) string {
	sb := strings.Builder{}
	sb.WriteString(`<!DOCTYPE html><html><body style="font-family: 'Segoe UI', Tahoma, sans-serif; background: #f8fafc; padding: 20px;">`)
	sb.WriteString(`<div style="max-width: 650px; margin: 0 auto; background: white; border-radius: 16px; overflow: hidden;">`)
	sb.WriteString(`<div style="background: linear-gradient(135deg, #6366f1 0%, #4f46e5 100%); color: white; padding: 32px 24px; text-align: center;">`)
	sb.WriteString(`<h1 style="margin: 0;">New Call Analyzed</h1><p style="margin: 8px 0 0 0;">Call analysis summary</p></div>`)
	sb.WriteString(`<div style="padding: 32px 24px;">`)
	sb.WriteString(fmt.Sprintf(`<p><b>File Name:</b> %s</p>`, call.Filename))
	sb.WriteString(fmt.Sprintf(`<p><b>Sentiment:</b> %s</p>`, call.Sentiment))
	if len(call.Tags) > 0 {
		sb.WriteString(fmt.Sprintf(`<p><b>Tags:</b> %s</p>`, tagsStr(call.Tags)))
	}
	sb.WriteString(`<div style="background: #f8fafc; padding: 20px; border-radius: 12px; border-left: 4px solid #6366f1;">`)
	sb.WriteString(fmt.Sprintf(`<b>Summary</b><p>%s</p></div></div>`, call.Summary.Overview))
	sb.WriteString(`<div style="text-align: center; padding: 24px; color: #94a3b8;"><b>VoxAnalyze</b> - AI-Powered Call Analysis Dashboard</div>`)
	sb.WriteString(`</div></body></html>`)
	return sb.String()
}
