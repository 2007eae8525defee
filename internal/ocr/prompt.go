package ocr

import (
	"fmt"
	"strings"
)

var languageNames = map[string]string{
	"por": "Portuguese",
	"eng": "English",
}

// transcriptionPrompt asks a vision model to behave like a plain OCR engine.
// The extractor downstream needs the label's line structure intact.
func transcriptionPrompt(langs []string) string {
	names := make([]string, 0, len(langs))
	for _, l := range langs {
		if n, ok := languageNames[l]; ok {
			names = append(names, n)
		} else {
			names = append(names, l)
		}
	}
	hint := "the label's language"
	if len(names) > 0 {
		hint = strings.Join(names, " or ")
	}

	return fmt.Sprintf(`You are an OCR engine reading a photo of an equipment asset label.
The text is in %s.

Transcribe every character you can see, exactly as printed:
- keep one output line per printed line, in reading order
- keep labels such as "R.G.", "NUMERO SERIAL" or "ATIVO FIXO" next to their values
- do not correct, translate, explain or summarize anything
- if there is no readable text, return an empty response

Return only the transcription, without markdown code blocks.`, hint)
}

// cleanTranscript strips the wrapping some models add around plain text.
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
