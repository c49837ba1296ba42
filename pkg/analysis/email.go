package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/otherjamesbrown/minute-cli/pkg/logging"
	"github.com/otherjamesbrown/minute-cli/pkg/meeting"
)

// EmailDraftGenerator turns final artifacts into a follow-up email draft.
// Generation never fails: any service or parse error yields a deterministic
// fallback draft.
type EmailDraftGenerator struct {
	client *CompletionClient
	logger logging.Logger
}

func NewEmailDraftGenerator(client *CompletionClient, logger logging.Logger) *EmailDraftGenerator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EmailDraftGenerator{client: client, logger: logger}
}

// Generate returns a draft for the meeting. The returned draft is never nil.
func (g *EmailDraftGenerator) Generate(ctx context.Context, m *meeting.Meeting, artifacts *meeting.Artifacts) *meeting.EmailDraft {
	fallback := g.fallbackDraft(m)

	raw, err := g.client.Complete(ctx, emailMessages(m, artifacts))
	if err != nil {
		g.logger.Warn("email draft generation failed, using fallback",
			logging.F("meeting_id", m.ID), logging.Err(err))
		return fallback
	}

	draft := DecodeOrFallback(g.logger, "email", raw, *fallback)
	if strings.TrimSpace(draft.Subject) == "" || strings.TrimSpace(draft.BodyMarkdown) == "" {
		return fallback
	}
	return &draft
}

func (g *EmailDraftGenerator) fallbackDraft(m *meeting.Meeting) *meeting.EmailDraft {
	var body strings.Builder
	fmt.Fprintf(&body, "# Meeting notes: %s\n\n", m.Title)
	fmt.Fprintf(&body, "Date: %s\n\n", m.Date.Format("2006-01-02"))
	if len(m.Attendees) > 0 {
		fmt.Fprintf(&body, "Attendees: %s\n\n", strings.Join(m.Attendees, ", "))
	}
	body.WriteString("Automatic email generation failed for this meeting. ")
	body.WriteString("The full analysis is available in the meeting record.\n")

	return &meeting.EmailDraft{
		Subject:             fmt.Sprintf("Meeting notes: %s (%s)", m.Title, m.Date.Format("2006-01-02")),
		BodyMarkdown:        body.String(),
		RecipientsSuggested: append([]string(nil), m.Attendees...),
	}
}
