package answer

import (
	"fmt"
	"strings"
	"time"
)

// ContinueQuery is the reserved follow-up message that asks the model to
// resume the prior answer rather than address a new question.
const ContinueQuery = "Continue"

// StopSequences closes the prompt's answer envelope.
var StopSequences = []string{"</answer>"}

// BuildPrompt assembles the canonical prompt: a system line, the numbered
// source block, the prior-turn history, the query and a numbered rule list,
// all inside tagged sections ending with an open <answer> tag that the stop
// sequence closes.
func BuildPrompt(query string, g GroundingContext, prevAnswer, lang string, maxTokens int, now time.Time) string {
	langInstruction := ""
	if lang != "" && lang != "all" && lang != "auto" {
		langInstruction = fmt.Sprintf(" Respond in %s.", lang)
	}
	system := fmt.Sprintf("You are a search synthesis engine. Direct, grounded, citation-accurate. Today is %s.%s",
		now.Format("2006-01-02"), langInstruction)

	targetWords := maxTokens / 5
	rules := []string{
		taskRule(query, prevAnswer),
		"DENSITY 4/5: Expert-briefing level. No filler, no transitions. Every sentence = new information.",
		fmt.Sprintf("BREVITY: %d words max. Complete, not verbose.", targetWords),
		"CITATIONS: Cite [n] only for specific facts from sources. Max 3 total. Sentence-end only. Never cite common knowledge.",
		"NO HEDGE: State answers confidently. Note uncertainty only if critical.",
	}
	if g.Empty() {
		rules = append(rules, "GROUNDING: No sources available. Use knowledge and note 'based on general knowledge'.")
	} else {
		rules = append(rules, "GROUNDING: Trust sources for current events. Use knowledge for fundamentals.")
	}
	if prevAnswer != "" {
		rules = append(rules, "HISTORY: Refer to prior exchange for context. Do not repeat.")
	}

	var numbered strings.Builder
	for i, r := range rules {
		fmt.Fprintf(&numbered, "%d. %s\n", i+1, r)
	}

	sources := g.Render()
	if sources == "" {
		sources = "None."
	}
	history := prevAnswer
	if history == "" {
		history = "None."
	}

	return fmt.Sprintf(`<system>%s</system>

<sources>
%s
</sources>

<history>
%s
</history>

<query>%s</query>

<instructions>
%s</instructions>

<answer>`, system, sources, history, query, numbered.String())
}

func taskRule(query, prevAnswer string) string {
	switch {
	case query == ContinueQuery:
		return "CONTINUE: Pick up exactly where previous answer stopped. No repetition. Seamless flow."
	case prevAnswer != "":
		return "FOLLOW-UP: Address the new question using prior context. Prioritize the new query."
	default:
		return "ANSWER FIRST: Lead with the direct answer. No preamble, no context-setting."
	}
}
