package strand

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRenderTranscriptHTML(t *testing.T) {
	rec := &SessionRecord{
		SessionID: "s1",
		Summary:   "markdown & tools",
		Messages: []Entry{
			{Kind: "user", Content: json.RawMessage(`"render **bold** please"`)},
			{Kind: "model", Content: json.RawMessage(`"here you go"`), Calls: []RecordedCall{
				{ID: "c1", Name: "calc", Args: json.RawMessage(`{"expr":"1<2"}`), Result: "<script>alert(1)</script>", HasResult: true, IsError: true},
			}},
			{Kind: "annotation", Content: json.RawMessage(`"context compressed"`)},
		},
	}

	html, err := RenderTranscriptHTML(rec)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(html, "<strong>bold</strong>") {
		t.Error("markdown not rendered")
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("tool result not escaped")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Error("escaped result missing")
	}
	if !strings.Contains(html, "calc") {
		t.Error("call name missing")
	}
	if !strings.Contains(html, "context compressed") {
		t.Error("annotation missing")
	}
	if !strings.Contains(html, "markdown &amp; tools") {
		t.Error("summary not escaped")
	}
}
