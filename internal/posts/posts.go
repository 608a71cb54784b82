// Package posts defines the generated post set: parsing a model
// response into posts, validating the exactly-five contract, and
// formatting the reply sent back over the thread.
package posts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RequiredCount is the number of posts a well-formed set contains.
// Nothing downstream enforces this — the set is sent as chat text — so
// the contract lives here and the runner self-corrects against it.
const RequiredCount = 5

// Post is one publication-ready post candidate. Ephemeral: a set lives
// only within one mention cycle and is never persisted locally beyond
// the journal's summary row.
type Post struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

// Parse extracts a post set from a model response. Markdown code fences
// are stripped first since models wrap JSON in them regardless of
// instructions. Returns an error describing the contract violation when
// the payload is not exactly RequiredCount well-formed posts; the error
// text is fed back to the model as a correction prompt.
func Parse(response string) ([]Post, error) {
	cleaned := StripCodeFences(response)
	if cleaned == "" {
		return nil, fmt.Errorf("response was empty")
	}

	var set []Post
	if err := json.Unmarshal([]byte(cleaned), &set); err != nil {
		return nil, fmt.Errorf("response was not a JSON array of posts: %v", err)
	}

	if len(set) != RequiredCount {
		return nil, fmt.Errorf("expected exactly %d posts, got %d", RequiredCount, len(set))
	}

	for i, p := range set {
		if strings.TrimSpace(p.Title) == "" {
			return nil, fmt.Errorf("post %d has an empty title", i+1)
		}
		if strings.TrimSpace(p.Content) == "" {
			return nil, fmt.Errorf("post %d has empty content", i+1)
		}
	}

	return set, nil
}

// StripCodeFences removes a surrounding markdown code fence, with or
// without a language tag, leaving inner text untouched.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop the language tag on the opening fence line, if any.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if !strings.ContainsAny(first, "[{") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// FormatMessage renders the post set as the reply text sent back on the
// thread.
func FormatMessage(set []Post) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Here are %d Reddit post drafts for your request:\n", len(set)))
	for i, p := range set {
		b.WriteString(fmt.Sprintf("\n--- Post %d ---\n", i+1))
		b.WriteString(fmt.Sprintf("Title: %s\n", p.Title))
		b.WriteString(fmt.Sprintf("Content: %s\n", p.Content))
		if len(p.Keywords) > 0 {
			b.WriteString(fmt.Sprintf("Keywords: %s\n", strings.Join(p.Keywords, ", ")))
		}
	}
	return b.String()
}
