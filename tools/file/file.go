// Package file provides the file_read and file_write tools. All access
// goes through the FileSystem capability carried by the session context,
// so host policy decides what is reachable.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	strand "github.com/calderhq/strand"
)

const maxReadBytes = 256 * 1024

// Definitions returns the file tools.
func Definitions() []strand.ToolDefinition {
	return []strand.ToolDefinition{readDefinition(), writeDefinition()}
}

func readDefinition() strand.ToolDefinition {
	return strand.ToolDefinition{
		Name:        "file_read",
		Description: "Read a file from the workspace. PDF files are returned as extracted plain text.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Path relative to the workspace root"}},"required":["path"]}`),
		Action: func(_ context.Context, args json.RawMessage, sc *strand.SessionContext) (any, error) {
			var params struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, strand.Toolf("invalid args: %v", err)
			}
			if params.Path == "" {
				return nil, strand.Toolf("path is required")
			}
			if sc.FS == nil {
				return nil, strand.Toolf("file access is not configured")
			}
			if err := sc.FS.Check(params.Path, strand.FileRead); err != nil {
				return nil, strand.Toolf("read denied: %v", err)
			}

			data, err := sc.FS.ReadFile(params.Path)
			if err != nil {
				return nil, strand.Toolf("read %s: %v", params.Path, err)
			}

			if strings.HasSuffix(strings.ToLower(params.Path), ".pdf") {
				text, err := extractPDFText(data)
				if err != nil {
					return nil, strand.Toolf("extract pdf %s: %v", params.Path, err)
				}
				return truncate(text), nil
			}
			return truncate(string(data)), nil
		},
	}
}

func writeDefinition() strand.ToolDefinition {
	return strand.ToolDefinition{
		Name:        "file_write",
		Description: "Write content to a file in the workspace, creating parent directories as needed.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Path relative to the workspace root"},"content":{"type":"string","description":"Full file content"}},"required":["path","content"]}`),
		Action: func(_ context.Context, args json.RawMessage, sc *strand.SessionContext) (any, error) {
			var params struct {
				Path    string `json:"path"`
				Content string `json:"content"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, strand.Toolf("invalid args: %v", err)
			}
			if params.Path == "" {
				return nil, strand.Toolf("path is required")
			}
			if sc.FS == nil {
				return nil, strand.Toolf("file access is not configured")
			}
			if err := sc.FS.Check(params.Path, strand.FileWrite); err != nil {
				return nil, strand.Toolf("write denied: %v", err)
			}
			if err := sc.FS.WriteFile(params.Path, []byte(params.Content), 0o644); err != nil {
				return nil, strand.Toolf("write %s: %v", params.Path, err)
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(params.Content), params.Path), nil
		},
	}
}

// extractPDFText pulls plain text out of a PDF document.
func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	r, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	text, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(text), nil
}

func truncate(s string) string {
	if len(s) > maxReadBytes {
		return s[:maxReadBytes] + "\n... (truncated)"
	}
	return s
}
