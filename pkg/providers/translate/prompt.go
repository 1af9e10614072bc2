package translate

import "fmt"

// translatePrompt is the shared instruction every LLM-backed translation
// adapter sends: translate, and return nothing else. Keeping this in one
// place means every adapter degrades the same way when a model chats back
// instead of complying.
func translatePrompt(text, from, to string) string {
	return fmt.Sprintf(
		"Translate the following text from %s to %s. Respond with only the translated text and nothing else — no quotation marks, no explanation.\n\n%s",
		from, to, text,
	)
}
