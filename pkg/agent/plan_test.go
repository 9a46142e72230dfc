package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	t.Run("should parse a full plan", func(t *testing.T) {
		plan := ParsePlan(gatedPlan)

		assert.Equal(t, "Drafted and queued for approval.", plan.Response)
		require.NotNil(t, plan.Output)
		assert.Equal(t, "Spring launch", plan.Output.Title)
		require.Len(t, plan.Requirements, 1)
		assert.Equal(t, "schedule_send", plan.Requirements[0].Tool)
		assert.True(t, plan.Requirements[0].ApprovalRequired)
		assert.Equal(t, "Spring launch", plan.Requirements[0].Input["subject"])
	})

	t.Run("should extract JSON wrapped in prose and fences", func(t *testing.T) {
		plan := ParsePlan("Here you go:\n```json\n{\"output\":{\"title\":\"T\",\"body\":\"B\"},\"skills_used\":[\"digest\"]}\n```")

		require.NotNil(t, plan.Output)
		assert.Equal(t, "Here you go:", plan.Response)
		assert.Equal(t, []string{"digest"}, plan.SkillsUsed)
	})

	t.Run("should fall back to the raw text", func(t *testing.T) {
		for _, text := range []string{"no json here", "{broken: json}", "} reversed {", ""} {
			plan := ParsePlan(text)
			assert.Nil(t, plan.Output, text)
			assert.Empty(t, plan.Requirements, text)
		}
		assert.Equal(t, "no json here", ParsePlan("no json here").Response)
	})

	t.Run("should only treat literal false as no approval", func(t *testing.T) {
		plan := ParsePlan(`{"requirements":[
			{"tool":"a","approvalRequired":false},
			{"tool":"b"},
			{"tool":"c","approvalRequired":true},
			{"tool":"d","approvalRequired":null},
			{"tool":"e","approvalRequired":"false"},
			{"tool":"f","approvalRequired":0}
		]}`)

		require.Len(t, plan.Requirements, 6)
		assert.False(t, plan.Requirements[0].ApprovalRequired)
		for _, r := range plan.Requirements[1:] {
			assert.True(t, r.ApprovalRequired, r.Tool)
		}
	})

	t.Run("should keep requirement order and default missing input", func(t *testing.T) {
		plan := ParsePlan(`{"requirements":[{"tool":"x","input":"oops"},"skip me",{"tool":"y","input":{"k":1}}]}`)

		require.Len(t, plan.Requirements, 2)
		assert.Equal(t, "x", plan.Requirements[0].Tool)
		assert.Empty(t, plan.Requirements[0].Input)
		assert.Equal(t, "y", plan.Requirements[1].Tool)
		assert.Equal(t, float64(1), plan.Requirements[1].Input["k"])
	})

	t.Run("should use the output title when no response is given", func(t *testing.T) {
		plan := ParsePlan(`{"output":{"title":"Weekly digest","body":"..."}}`)
		assert.Equal(t, "Weekly digest", plan.Response)
	})
}
