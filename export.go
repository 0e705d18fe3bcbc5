package strand

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// RenderTranscriptHTML renders a session record as a standalone HTML page.
// Message text is treated as Markdown; tool calls and results are shown as
// escaped preformatted blocks.
func RenderTranscriptHTML(rec *SessionRecord) (string, error) {
	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>Session %s</title>\n", htmlEscape(rec.SessionID))
	b.WriteString(transcriptCSS)
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>Session %s</h1>\n", htmlEscape(rec.SessionID))
	if rec.Summary != "" {
		fmt.Fprintf(&b, "<p class=\"summary\">%s</p>\n", htmlEscape(rec.Summary))
	}

	for _, entry := range rec.Messages {
		switch entry.Kind {
		case "user", "model":
			fmt.Fprintf(&b, "<div class=\"msg %s\">\n<div class=\"role\">%s</div>\n", entry.Kind, entry.Kind)
			if text := contentText(entry.Content); text != "" {
				var buf bytes.Buffer
				if err := gm.Convert([]byte(text), &buf); err != nil {
					fmt.Fprintf(&b, "<pre>%s</pre>\n", htmlEscape(text))
				} else {
					b.Write(buf.Bytes())
				}
			}
			for _, call := range entry.Calls {
				fmt.Fprintf(&b, "<details class=\"call\"><summary>%s</summary>\n", htmlEscape(call.Name))
				if len(call.Args) > 0 {
					fmt.Fprintf(&b, "<pre class=\"args\">%s</pre>\n", htmlEscape(string(call.Args)))
				}
				if call.HasResult {
					cls := "result"
					if call.IsError {
						cls = "result error"
					}
					fmt.Fprintf(&b, "<pre class=\"%s\">%s</pre>\n", cls, htmlEscape(call.Result))
				}
				b.WriteString("</details>\n")
			}
			b.WriteString("</div>\n")
		case "annotation":
			if text := contentText(entry.Content); text != "" {
				fmt.Fprintf(&b, "<p class=\"annotation\">%s</p>\n", htmlEscape(text))
			}
		}
	}

	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// contentText extracts a best-effort plain text view of a stored content
// field.
func contentText(raw json.RawMessage) string {
	parts := normalizeContent(raw)
	var texts []string
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

const transcriptCSS = `<style>
body { font-family: -apple-system, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
.msg { border-left: 3px solid #ccc; padding: 0.25rem 1rem; margin: 1rem 0; }
.msg.model { border-left-color: #4a7; }
.role { font-size: 0.75rem; text-transform: uppercase; color: #888; }
.summary, .annotation { color: #666; font-style: italic; }
details.call { margin: 0.5rem 0; }
details.call summary { font-family: monospace; cursor: pointer; }
pre { background: #f6f6f6; padding: 0.5rem; overflow-x: auto; }
pre.error { background: #fdecea; }
</style>
`
