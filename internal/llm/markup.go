package llm

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// MarkupFilter removes reasoning markup from streamed chunks before they
// reach segmentation. By default only the tags are dropped; with
// SuppressReasoning the text between them is dropped too. A chunk ending in
// a partial tag is held back until the next chunk completes or refutes it.
// Use one filter per turn.
type MarkupFilter struct {
	SuppressReasoning bool
	inside            bool
	carry             string
}

func (f *MarkupFilter) Filter(chunk string) string {
	text := f.carry + chunk
	f.carry = ""

	var b strings.Builder
	for text != "" {
		idx := strings.IndexByte(text, '<')
		if idx < 0 {
			f.write(&b, text)
			break
		}
		f.write(&b, text[:idx])
		text = text[idx:]
		switch {
		case strings.HasPrefix(text, thinkOpen):
			f.inside = true
			text = text[len(thinkOpen):]
		case strings.HasPrefix(text, thinkClose):
			f.inside = false
			text = text[len(thinkClose):]
		case strings.HasPrefix(thinkOpen, text) || strings.HasPrefix(thinkClose, text):
			f.carry = text
			return b.String()
		default:
			f.write(&b, "<")
			text = text[1:]
		}
	}
	return b.String()
}

// Flush releases a held-back partial tag at the end of the stream. It never
// completed, so it is ordinary text.
func (f *MarkupFilter) Flush() string {
	var b strings.Builder
	f.write(&b, f.carry)
	f.carry = ""
	return b.String()
}

func (f *MarkupFilter) write(b *strings.Builder, s string) {
	if f.SuppressReasoning && f.inside {
		return
	}
	b.WriteString(s)
}
