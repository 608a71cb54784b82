package coral

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Mention is one inbound mention event from the Coral server. ThreadID
// and SenderID are captured for correlation: replies must go back on
// the same thread, addressed to the sender.
type Mention struct {
	ID       string
	ThreadID string
	SenderID string
	Content  string
}

// ParseMention extracts the first mention from a wait_for_mentions tool
// result. The server's payload shape has drifted across releases — a
// single JSON object, a JSON array, or an envelope with a "messages"
// list — so parsing is deliberately lenient. Non-JSON payloads fall
// back to a content-only mention; callers still need a thread to reply
// on, so an empty result (no usable text at all) returns nil.
func ParseMention(raw string) *Mention {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if gjson.Valid(raw) {
		root := gjson.Parse(raw)

		if msgs := root.Get("messages"); msgs.IsArray() {
			if arr := msgs.Array(); len(arr) > 0 {
				return mentionFromJSON(arr[0])
			}
			return nil
		}
		if root.IsArray() {
			if arr := root.Array(); len(arr) > 0 {
				return mentionFromJSON(arr[0])
			}
			return nil
		}
		if root.IsObject() {
			return mentionFromJSON(root)
		}
	}

	// Raw text: no structured identifiers available.
	return &Mention{Content: raw}
}

// mentionFromJSON pulls the identifier and content fields out of one
// mention object, tolerating both camelCase and snake_case keys.
func mentionFromJSON(v gjson.Result) *Mention {
	m := &Mention{
		ID:       firstString(v, "id", "messageId", "message_id"),
		ThreadID: firstString(v, "threadId", "thread_id", "thread.id"),
		SenderID: firstString(v, "senderId", "sender_id", "sender.id"),
		Content:  firstString(v, "content", "message", "text"),
	}
	if m.ThreadID == "" && m.SenderID == "" && m.Content == "" {
		return nil
	}
	return m
}

func firstString(v gjson.Result, paths ...string) string {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() && r.String() != "" {
			return r.String()
		}
	}
	return ""
}
