package assistant

import "strings"

// BuildPrompt assembles the single-turn prompt. The order is fixed: the
// biography first, then the visitor's question, then the answer cue, so the
// model reads the biography as instruction and the question as the query.
func BuildPrompt(biography, question string) string {
	var b strings.Builder
	b.Grow(len(biography) + len(question) + 24)
	b.WriteString(biography)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
