package agent

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Plan is the structured answer of the plan lane.
type Plan struct {
	Response     string
	Output       *Output
	SkillsUsed   []string
	Requirements []Requirement
}

// Output is the artifact the model drafted.
type Output struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Type  string `json:"type"`
}

// ParsePlan extracts a plan from model text. It never fails: text without a
// valid JSON object yields a plan with no output and no requirements whose
// response is the raw text.
func ParsePlan(text string) Plan {
	raw, prose, ok := jsonSpan(text)
	if !ok {
		return Plan{Response: strings.TrimSpace(text)}
	}

	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return Plan{Response: strings.TrimSpace(text)}
	}

	plan := Plan{Response: strings.TrimSpace(doc.Get("response").String())}

	if out := doc.Get("output"); out.IsObject() {
		o := Output{
			Title: strings.TrimSpace(out.Get("title").String()),
			Body:  out.Get("body").String(),
			Type:  strings.TrimSpace(out.Get("type").String()),
		}
		if o.Title != "" || strings.TrimSpace(o.Body) != "" {
			plan.Output = &o
		}
	}

	doc.Get("skills_used").ForEach(func(_, v gjson.Result) bool {
		if name := strings.TrimSpace(v.String()); name != "" {
			plan.SkillsUsed = append(plan.SkillsUsed, name)
		}
		return true
	})

	doc.Get("requirements").ForEach(func(_, r gjson.Result) bool {
		if !r.IsObject() {
			return true
		}
		plan.Requirements = append(plan.Requirements, Requirement{
			Tool:             strings.TrimSpace(r.Get("tool").String()),
			Input:            objectInput(r.Get("input")),
			ApprovalRequired: approvalRequired(r.Get("approvalRequired")),
		})
		return true
	})

	if plan.Response == "" {
		plan.Response = prose
	}
	if plan.Response == "" && plan.Output != nil {
		plan.Response = plan.Output.Title
	}
	return plan
}

// approvalRequired is default-deny: only the JSON literal false opts out.
func approvalRequired(v gjson.Result) bool {
	return v.Type != gjson.False
}

func objectInput(v gjson.Result) map[string]interface{} {
	input := map[string]interface{}{}
	if !v.IsObject() {
		return input
	}
	if err := json.Unmarshal([]byte(v.Raw), &input); err != nil {
		return map[string]interface{}{}
	}
	return input
}

// jsonSpan returns the text between the first '{' and the last '}' when it
// is valid JSON, plus the prose preceding it.
func jsonSpan(text string) (raw, prose string, ok bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", "", false
	}
	raw = text[start : end+1]
	if !gjson.Valid(raw) {
		return "", "", false
	}
	prose = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text[:start]), "```json"))
	prose = strings.TrimSpace(strings.TrimSuffix(prose, "```"))
	return raw, prose, true
}
