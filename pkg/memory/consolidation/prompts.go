package consolidation

import (
	"fmt"
	"strings"

	"github.com/entrhq/mnemo/pkg/types"
)

// episodicSystemPrompt instructs the oracle to maintain the rolling summary.
const episodicSystemPrompt = "You maintain the episodic memory of an AI assistant: a rolling summary of its recent conversations. " +
	"Merge the new session transcripts into the existing summary. Never duplicate an entry that is already present; update it instead. " +
	"Drop anything dated before the cutoff date given below. " +
	"Group entries by topic under short markdown headings and keep dates where they matter. " +
	"Preserve concrete artifacts (file paths, names, commands, decisions, open questions). " +
	"Return only the new summary text, with no preamble."

// semanticSystemPrompt instructs the oracle to graduate durable facts.
const semanticSystemPrompt = "You maintain the long-term semantic memory of an AI assistant. " +
	"You receive the current list of durable facts and the recent episodic summary. " +
	"Graduate only knowledge that recurred across multiple days or was stated as a lasting preference or decision. " +
	"Merge with the existing facts rather than duplicating them and remove facts the summary clearly supersedes. " +
	"Be fact-dense: short markdown bullet points, no narrative. " +
	"Return only the updated list of facts. Do not include any separator line, heading about immutability, or text from outside the facts."

// SystemPromptFor returns the system instructions sent for a tier.
func SystemPromptFor(tier types.Tier) string {
	switch tier {
	case types.TierEpisodic:
		return episodicSystemPrompt
	case types.TierSemantic:
		return semanticSystemPrompt
	}
	return ""
}

func buildEpisodicPrompt(existing, working, today, cutoff string, targetWords int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Today is %s. Drop material dated before %s.\n", today, cutoff)
	fmt.Fprintf(&sb, "Keep the summary between %d and %d words.\n\n", targetWords/2, targetWords+targetWords/2)

	sb.WriteString("## Existing episodic summary\n\n")
	if strings.TrimSpace(existing) == "" {
		sb.WriteString("(none yet)\n")
	} else {
		sb.WriteString(strings.TrimSpace(existing))
		sb.WriteString("\n")
	}

	sb.WriteString("\n## Recent session transcripts\n\n")
	sb.WriteString(working)
	sb.WriteString("\n")
	return sb.String()
}

func buildSemanticPrompt(mutable, episodic string) string {
	var sb strings.Builder
	sb.WriteString("## Current durable facts\n\n")
	if strings.TrimSpace(mutable) == "" {
		sb.WriteString("(none yet)\n")
	} else {
		sb.WriteString(strings.TrimSpace(mutable))
		sb.WriteString("\n")
	}
	sb.WriteString("\n## Recent episodic summary\n\n")
	sb.WriteString(strings.TrimSpace(episodic))
	sb.WriteString("\n")
	return sb.String()
}
