package agent

import (
	"strings"
	"testing"

	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/go-go-golems/atomclaw/pkg/memory"
	"github.com/stretchr/testify/require"
)

func TestBuildSystemPrompt(t *testing.T) {
	require.Equal(t, BuildSystemPrompt("persona", ""), BuildSystemPrompt("persona", "   "))
	require.Equal(t, "persona", BuildSystemPrompt("persona\n", ""))

	p := BuildSystemPrompt("persona", "The user likes tea.")
	require.True(t, strings.HasPrefix(p, "persona\n\n"+summaryHeader))
	require.True(t, strings.HasSuffix(p, "The user likes tea."))
}

func TestHistoryMessagesStartsWithUser(t *testing.T) {
	msgs := historyMessages([]memory.Turn{
		{Role: memory.RoleAssistant, Text: "orphan"},
		{Role: memory.RoleUser, Text: "q"},
		{Role: memory.RoleAssistant, Text: "a"},
	})
	require.Len(t, msgs, 2)
	require.Equal(t, engine.RoleUser, msgs[0].Role)
	require.Equal(t, engine.RoleAssistant, msgs[1].Role)
	require.Empty(t, historyMessages(nil))
}

func TestFitBudget(t *testing.T) {
	c := newTokenCounter()
	require.NotNil(t, c)

	long := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	msgs := []engine.Message{
		engine.UserText(long),
		engine.AssistantText(long),
		engine.UserText("short question"),
		engine.AssistantText("short answer"),
		engine.UserText("new question"),
	}

	kept, dropped := c.fitBudget("system", msgs, 50)
	require.Equal(t, 2, dropped)
	require.Len(t, kept, 3)
	require.Equal(t, "short question", kept[0].Text())

	kept, dropped = c.fitBudget("system", msgs, 1)
	require.Equal(t, 4, dropped)
	require.Equal(t, []engine.Message{engine.UserText("new question")}, kept)

	kept, dropped = c.fitBudget("system", msgs, 100000)
	require.Zero(t, dropped)
	require.Len(t, kept, 5)
}
