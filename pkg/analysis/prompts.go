package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/otherjamesbrown/minute-cli/pkg/meeting"
)

const systemRole = "system"
const userRole = "user"

const extractionInstructions = `You extract structured facts from meeting transcripts.
Respond with a single JSON object and nothing else:
{"summary": string, "action_items": [{"title": string, "assignee": string, "priority": "High"|"Medium"|"Low", "status": string, "due_date": string|null, "source_quote": string, "confidence": number, "tags": [string]}], "decisions": [{"statement": string, "rationale": string, "source_quote": string, "confidence": number}], "open_questions": [{"question": string, "owner": string, "source_quote": string, "confidence": number}]}`

func mapMessages(chunk string) []Message {
	return []Message{
		{Role: systemRole, Content: extractionInstructions},
		{Role: userRole, Content: "Extract the facts from this transcript segment:\n\n" + chunk},
	}
}

func reduceMessages(group []meeting.ChunkSummary) []Message {
	raw, _ := json.Marshal(group)
	return []Message{
		{Role: systemRole, Content: `You merge partial meeting analyses. Combine the given chunk summaries into one section.
Deduplicate action items that share a title and assignee; when duplicates conflict, keep the one with a due date.
Respond with a single JSON object and nothing else:
{"summary": string, "action_items": [...], "decisions": [...], "open_questions": [...]}
using the same record shapes as the input.`},
		{Role: userRole, Content: string(raw)},
	}
}

func refineMessages(title string, sections []meeting.SectionSummary) []Message {
	raw, _ := json.Marshal(sections)
	return []Message{
		{Role: systemRole, Content: `You produce the final analysis of a meeting from its section summaries.
Respond with a single JSON object and nothing else:
{"summaries": {"executive": string (at most 120 words), "detailed": string (at most 400 words), "bullets": [string] (at most 12)}, "action_items": [...], "decisions": [...], "open_questions": [...]}
using the same record shapes as the input.`},
		{Role: userRole, Content: fmt.Sprintf("Meeting: %s\n\nSections:\n%s", title, raw)},
	}
}

func emailMessages(m *meeting.Meeting, artifacts *meeting.Artifacts) []Message {
	raw, _ := json.Marshal(artifacts)
	return []Message{
		{Role: systemRole, Content: `You draft a follow-up email for a meeting from its analysis.
Respond with a single JSON object and nothing else:
{"subject": string, "body_markdown": string, "recipients_suggested": [string], "cc_suggested": [string]}`},
		{Role: userRole, Content: fmt.Sprintf("Meeting: %s\nDate: %s\nAttendees: %s\n\nAnalysis:\n%s",
			m.Title, m.Date.Format("2006-01-02"), strings.Join(m.Attendees, ", "), raw)},
	}
}
