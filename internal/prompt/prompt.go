// Package prompt renders the interviewer instructions sent to the completion
// provider. Everything here is a pure function of its inputs.
package prompt

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/interviewer/internal/conversation"
)

// Metadata is the slice of an interview record that prompts embed.
type Metadata struct {
	Company     string
	Position    string
	Description string
}

const defaultDescription = "The role requires relevant professional knowledge and skills."

var interviewerRules = []string{
	"Ask questions the way a real interviewer would: professional and in depth.",
	"Follow up on the candidate's answers and do not ask too many questions at once.",
	"Assess the candidate's skills and experience against the requirements of the role.",
	"Start with fundamentals and progress to advanced topics step by step.",
	"Give a brief evaluation when the interview ends.",
}

const systemTemplate = `You are a professional interviewer conducting round %d of the interview for the %s position at %s.
Conduct the interview based on the following job description:
%s

Interview rules:
%s

Begin the interview: briefly introduce yourself, then ask the first question.`

// SystemPrompt renders the instruction that opens every session of a round.
func SystemPrompt(meta Metadata, round int) string {
	desc := strings.TrimSpace(meta.Description)
	if desc == "" {
		desc = defaultDescription
	}
	return fmt.Sprintf(systemTemplate, round, meta.Position, meta.Company, desc, numbered(interviewerRules))
}

// SummarySystemPrompt frames the one-shot evaluation request.
const SummarySystemPrompt = "You are a professional HR assistant who analyses interview results and writes concise summary reports."

const summaryTemplate = `Based on the interview conversation below, write a short summary of round %d of the interview for the %s position at %s.
Structure the evaluation with these sections:
1. Candidate performance
2. Skills assessment
3. Recommendations

Conversation:
%s`

// SummaryPrompt inlines the transcript with speaker labels. System messages
// are left out.
func SummaryPrompt(meta Metadata, round int, history []conversation.Message) string {
	var transcript strings.Builder
	for _, msg := range history {
		label := speakerLabel(msg.Role)
		if label == "" {
			continue
		}
		transcript.WriteString(label)
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteString("\n")
	}
	return fmt.Sprintf(summaryTemplate, round, meta.Position, meta.Company, transcript.String())
}

func speakerLabel(r conversation.Role) string {
	switch r {
	case conversation.RoleUser:
		return "Candidate"
	case conversation.RoleAssistant:
		return "Interviewer"
	default:
		return ""
	}
}

func numbered(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = fmt.Sprintf("%d. %s", i+1, item)
	}
	return strings.Join(lines, "\n")
}
