package prompts

import "fmt"

// SystemPrompt is the fixed persona for the post-generation model. The
// agent's value is matching content style and tone to what it knows
// about the requesting user, which is why recalled memories are inlined
// into every generation prompt.
const SystemPrompt = `You are a specialized Reddit content creator. You excel at understanding
users' personalities, writing styles, and preferences through conversations,
and at matching content style and tone to each user's unique characteristics,
creating posts that would resonate with their target audience.`

// GenerationPrompt builds the post-generation instruction for one
// mention. The model must answer with a strict JSON array of exactly
// five posts; the runner validates and, if needed, asks for a
// correction rather than trusting the first answer.
func GenerationPrompt(request, memories string) string {
	return fmt.Sprintf(`A user has asked for Reddit posts with this request:

%s

Relevant context recalled from the user's memory:

%s

Generate exactly 5 complete, publication-ready Reddit posts based on the
request and the memory context. Each post needs:
- "title": an engaging, attention-grabbing title
- "content": the complete post with intro, body, and conclusion
- "keywords": relevant hashtags and key terms

Respond with ONLY a JSON array of exactly 5 objects, each with the keys
"title", "content", and "keywords" (an array of strings). No prose before
or after the JSON.`, request, memories)
}

// CorrectionPrompt is sent when the previous answer was not a valid
// five-post set. The problem description comes from the validator.
func CorrectionPrompt(problem string) string {
	return fmt.Sprintf(`Your previous response was not acceptable: %s.

Respond again with ONLY a JSON array of exactly 5 objects, each with the
keys "title", "content", and "keywords" (an array of strings).`, problem)
}
