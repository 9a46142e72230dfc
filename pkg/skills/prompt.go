package skills

import (
	"fmt"
	"strings"
)

// NoSkillsSentinel replaces the skills section when none apply.
const NoSkillsSentinel = "No active skills are configured. Do not invent or reference skills."

var hardRules = []string{
	"Never perform side effects yourself. Describe every side effect as a requirement and let the platform execute it.",
	"Always answer with exactly one JSON object matching the output format. Do not wrap it in prose.",
	"Every requirement that sends, schedules or publishes customer-facing communication must set \"approvalRequired\": true.",
	"Only use tools listed in the output format. Never invent record ids or URLs.",
}

var toolLoopRules = []string{
	"Use the provided tools for every external action. Never claim an action happened unless a tool result confirms it.",
	"Tools that send customer-facing communication are held for human approval. Report them as awaiting approval.",
	"Never invent record ids or URLs. Only repeat values returned by tools.",
	"When the work is done, answer in plain text with a short summary for the requester.",
}

// BuildSystemPrompt assembles the system prompt in a fixed section order:
// base instructions, active skills, track directive, output format, hard rules.
// tools names the requirement tools the model may emit.
func BuildSystemPrompt(base string, skills []Skill, track Track, brandVoice string, tools ...string) string {
	return buildPrompt(base, skills, track, brandVoice, func(b *strings.Builder, track Track) {
		b.WriteString("# Output format\n\n")
		writeOutputFormat(b, track, tools)
	}, hardRules)
}

// BuildToolLoopPrompt is BuildSystemPrompt for native tool calling: the
// output format section is replaced by tool-use guidance.
func BuildToolLoopPrompt(base string, skills []Skill, track Track, brandVoice string) string {
	return buildPrompt(base, skills, track, brandVoice, func(b *strings.Builder, _ Track) {
		b.WriteString("# Tool use\n\n")
		b.WriteString("Call tools one step at a time and wait for each result before deciding the next step.\n\n")
	}, toolLoopRules)
}

func buildPrompt(base string, skills []Skill, track Track, brandVoice string, format func(*strings.Builder, Track), rules []string) string {
	if !track.Valid() {
		track = DefaultTrack
	}

	var b strings.Builder

	if base = strings.TrimSpace(base); base != "" {
		b.WriteString(base)
		b.WriteString("\n\n")
	}

	b.WriteString("# Active skills\n\n")
	if len(skills) == 0 {
		b.WriteString(NoSkillsSentinel)
		b.WriteString("\n\n")
	} else {
		for _, s := range skills {
			writeSkill(&b, s)
		}
	}

	b.WriteString("# Track\n\n")
	fmt.Fprintf(&b, "Track: %s\n%s\n\n", track, trackDirectives[track])
	if voice := strings.TrimSpace(brandVoice); voice != "" {
		b.WriteString("## Brand voice\n\n")
		b.WriteString(voice)
		b.WriteString("\n\n")
	}

	format(&b, track)

	b.WriteString("# Hard rules\n\n")
	for i, rule := range rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}

	return b.String()
}

func writeSkill(b *strings.Builder, s Skill) {
	fmt.Fprintf(b, "## %s", s.Name)
	if s.Type != "" {
		fmt.Fprintf(b, " (%s)", s.Type)
	}
	b.WriteString("\n")
	if s.Trigger != "" {
		fmt.Fprintf(b, "Trigger: %s\n", s.Trigger)
	}
	if len(s.RequiredInputs) > 0 {
		fmt.Fprintf(b, "Required inputs: %s\n", strings.Join(s.RequiredInputs, ", "))
	}
	if len(s.RequiredTools) > 0 {
		fmt.Fprintf(b, "Required tools: %s\n", strings.Join(s.RequiredTools, ", "))
	}
	fmt.Fprintf(b, "Instructions:\n%s\n", strings.TrimSpace(s.Instructions))
	if c := strings.TrimSpace(s.OutputConstraints); c != "" {
		fmt.Fprintf(b, "Output constraints:\n%s\n", c)
	}
	b.WriteString("\n")
}

func writeOutputFormat(b *strings.Builder, track Track, tools []string) {
	b.WriteString("Respond with one JSON object and nothing else:\n\n")
	b.WriteString("{\n")
	b.WriteString("  \"response\": \"short message for the requester\",\n")
	fmt.Fprintf(b, "  \"output\": {\"title\": \"...\", \"body\": \"...\", \"type\": \"%s\"},\n", track)
	b.WriteString("  \"skills_used\": [\"skill name\"],\n")
	b.WriteString("  \"requirements\": [\n")
	b.WriteString("    {\"tool\": \"tool name\", \"input\": {}, \"approvalRequired\": true}\n")
	b.WriteString("  ]\n")
	b.WriteString("}\n\n")

	if len(tools) == 0 {
		b.WriteString("No tools are available. \"requirements\" must be an empty list.\n\n")
		return
	}
	fmt.Fprintf(b, "Allowed requirement tools: %s.\n\n", strings.Join(tools, ", "))
}
