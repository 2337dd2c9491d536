package ai

import "strings"

const assistantPromptTemplate = `
You are the website chat assistant "{{bot}}".

The visitor was greeted with:
{{welcome}}

Answer the visitor's message briefly and politely, in the language they wrote in.
If you do not know the answer, say so and suggest leaving contact details for a human follow-up.
Never invent prices, dates or commitments.
`

// AssistantPrompt builds the system prompt for a bot.
func AssistantPrompt(botName, welcomeMessage string) string {
	if strings.TrimSpace(botName) == "" {
		botName = "Assistant"
	}
	r := strings.NewReplacer("{{bot}}", botName, "{{welcome}}", welcomeMessage)
	return strings.TrimSpace(r.Replace(assistantPromptTemplate))
}
