package chat

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	namePromptMarker = "your name"
	maxNameLength    = 50
)

var nameSkipKeywords = []string{
	"no", "skip", "anonymous", "none", "n/a", "not sure", "rather not say", "prefer not to say",
}

var nameDisallowedChars = regexp.MustCompile(`[^\w\s-]`)

// NameGenerator produces display names for visitors who decline to give one.
type NameGenerator interface {
	Generate() string
}

// awaitingName reports whether the latest user message answers the name
// prompt: either the explicit pending prompt is set, or the message right
// before it is a bot message asking for the name.
func awaitingName(c *Conversation) bool {
	if c.UserInfo.Name != "" {
		return false
	}
	if c.PendingPrompt == PromptName {
		return true
	}
	n := len(c.Messages)
	if n < 2 {
		return false
	}
	prev := c.Messages[n-2]
	return prev.Sender == SenderBot && strings.Contains(prev.Content, namePromptMarker)
}

// NormalizeName turns a free-text answer into a display name, or a generated
// one when the visitor skipped or the answer is unusable.
func NormalizeName(input string, gen NameGenerator) string {
	lowered := strings.ToLower(strings.TrimSpace(input))
	if lowered == "" {
		return gen.Generate()
	}
	for _, kw := range nameSkipKeywords {
		if strings.Contains(lowered, kw) {
			return gen.Generate()
		}
	}

	cleaned := strings.TrimSpace(nameDisallowedChars.ReplaceAllString(lowered, ""))
	if n := utf8.RuneCountInString(cleaned); n < 1 || n > maxNameLength {
		return gen.Generate()
	}

	tokens := strings.Fields(cleaned)
	for i, tok := range tokens {
		tokens[i] = titleToken(tok)
	}
	return strings.Join(tokens, " ")
}

func titleToken(tok string) string {
	r, size := utf8.DecodeRuneInString(tok)
	return string(unicode.ToUpper(r)) + tok[size:]
}

var (
	nameAdjectives = []string{
		"Friendly", "Curious", "Happy", "Bright", "Calm", "Clever", "Gentle", "Lucky", "Swift", "Sunny",
	}
	nameNouns = []string{
		"Visitor", "Guest", "Otter", "Falcon", "Panda", "Fox", "Dolphin", "Owl", "Koala", "Heron",
	}
)

type randomNames struct{}

// RandomNames returns the default generator: an adjective and a noun.
func RandomNames() NameGenerator {
	return randomNames{}
}

func (randomNames) Generate() string {
	return nameAdjectives[rand.IntN(len(nameAdjectives))] + " " + nameNouns[rand.IntN(len(nameNouns))]
}
