package chat

import (
	"bytes"
	"encoding/json"
)

// replyMatcher extracts reply text from one known response shape.
type replyMatcher func(v any) (string, bool)

// Tried in order; the first match wins.
var replyMatchers = []replyMatcher{
	fieldText("output"),
	firstItemContentText,
	contentText,
	fieldText("message"),
	fieldText("response"),
	fieldText("reply"),
	fieldText("text"),
	bareString,
}

// ParseWebhookReply reads the reply text out of a 2xx webhook body. A body
// that is not JSON at all is used verbatim.
func ParseWebhookReply(raw []byte) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", false
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(trimmed), true
	}
	for _, match := range replyMatchers {
		if text, ok := match(v); ok {
			return text, true
		}
	}
	return "", false
}

func fieldText(key string) replyMatcher {
	return func(v any) (string, bool) {
		obj, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		return nonEmptyString(obj[key])
	}
}

func contentText(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	content, ok := obj["content"].(map[string]any)
	if !ok {
		return "", false
	}
	return nonEmptyString(content["text"])
}

func firstItemContentText(v any) (string, bool) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return "", false
	}
	return contentText(items[0])
}

func bareString(v any) (string, bool) {
	return nonEmptyString(v)
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
