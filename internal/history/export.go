// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/ochat/internal/transcript"
	"github.com/jeranaias/ochat/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Conversation is a parsed chat ready for export.
type Conversation struct {
	Name     string
	Turns    []transcript.Turn
	Exported time.Time
}

// Exporter renders a conversation in one format.
type Exporter interface {
	// Export converts a conversation to the target format.
	Export(conv *Conversation) ([]byte, error)

	// FileExtension returns the file extension, including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Export formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatJSONL    = "jsonl"
	FormatYAML     = "yaml"
	FormatText     = "txt"
)

// Formats lists the supported export formats.
func Formats() []string {
	formats := []string{FormatMarkdown, FormatJSON, FormatJSONL, FormatYAML, FormatText}
	sort.Strings(formats)
	return formats
}

// ExporterFor returns the exporter for a format name. delims is used by the
// txt format, which writes the transcript back in buffer form.
func ExporterFor(format string, delims transcript.DelimiterSet) (Exporter, error) {
	switch strings.ToLower(format) {
	case FormatMarkdown, "md":
		return MarkdownExporter{}, nil
	case FormatJSON:
		return JSONExporter{Indent: true}, nil
	case FormatJSONL:
		return JSONLExporter{}, nil
	case FormatYAML, "yml":
		return YAMLExporter{}, nil
	case FormatText, "text":
		return TextExporter{Delims: delims}, nil
	}
	return nil, fmt.Errorf("unknown export format %q (want one of %s)", format, strings.Join(Formats(), ", "))
}

// NewConversation parses buffer into a Conversation. Image paths stay in the
// content as written and are also listed on their turn, whether or not the
// files still exist.
func NewConversation(name, buffer string, delims transcript.DelimiterSet) *Conversation {
	codec := transcript.NewCodec(delims)
	codec.Exists = func(string) bool { return false }

	turns := codec.Parse(buffer).Turns
	for i := range turns {
		turns[i].Images = transcript.FindImagePaths(turns[i].Content)
	}
	return &Conversation{
		Name:     name,
		Turns:    turns,
		Exported: time.Now(),
	}
}

// ExportToFile writes conv to dir and returns the path written.
func ExportToFile(conv *Conversation, exporter Exporter, dir string) (string, error) {
	content, err := exporter.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	filename := fmt.Sprintf("chat_%s_%s%s",
		sanitizeFilename(conv.Name),
		conv.Exported.Format("20060102_150405"),
		exporter.FileExtension(),
	)
	path := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(path, content, filePerm); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// sanitizeFilename maps a chat name onto characters safe on every platform.
func sanitizeFilename(s string) string {
	s = util.TruncateWidth(s, 50)

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r), r < 32, r == 127:
			b.WriteRune('-')
		case r == ' ' || r == '\t':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "chat"
	}
	return b.String()
}

// =============================================================================
// MARKDOWN
// =============================================================================

// MarkdownExporter renders a chat as a Markdown document.
type MarkdownExporter struct{}

func (MarkdownExporter) FileExtension() string { return ".md" }
func (MarkdownExporter) MimeType() string      { return "text/markdown" }

func (MarkdownExporter) Export(conv *Conversation) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Name)
	fmt.Fprintf(&b, "*Exported %s*\n\n", conv.Exported.Format(time.RFC3339))

	for i, turn := range conv.Turns {
		if i > 0 {
			b.WriteString("---\n\n")
		}
		fmt.Fprintf(&b, "**%s**\n\n", roleLabel(turn.Role))
		b.WriteString(turn.Content)
		b.WriteString("\n\n")
		for _, img := range turn.Images {
			fmt.Fprintf(&b, "![image](%s)\n\n", img)
		}
	}
	return []byte(b.String()), nil
}

func roleLabel(r transcript.Role) string {
	switch r {
	case transcript.RoleUser:
		return "User"
	case transcript.RoleAssistant:
		return "Assistant"
	case transcript.RoleSystem:
		return "System"
	}
	return "Unknown"
}

// =============================================================================
// JSON / JSONL / YAML
// =============================================================================

type exportTurn struct {
	Role    string   `json:"role" yaml:"role"`
	Content string   `json:"content" yaml:"content"`
	Images  []string `json:"images,omitempty" yaml:"images,omitempty"`
}

type exportDoc struct {
	Name     string       `json:"name" yaml:"name"`
	Exported time.Time    `json:"exported" yaml:"exported"`
	Turns    []exportTurn `json:"turns" yaml:"turns"`
}

func toExportTurns(turns []transcript.Turn) []exportTurn {
	out := make([]exportTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, exportTurn{Role: t.Role.String(), Content: t.Content, Images: t.Images})
	}
	return out
}

func toExportDoc(conv *Conversation) exportDoc {
	return exportDoc{Name: conv.Name, Exported: conv.Exported, Turns: toExportTurns(conv.Turns)}
}

// JSONExporter writes the chat as one JSON document.
type JSONExporter struct {
	Indent bool
}

func (JSONExporter) FileExtension() string { return ".json" }
func (JSONExporter) MimeType() string      { return "application/json" }

func (e JSONExporter) Export(conv *Conversation) ([]byte, error) {
	if e.Indent {
		return json.MarshalIndent(toExportDoc(conv), "", "  ")
	}
	return json.Marshal(toExportDoc(conv))
}

// JSONLExporter writes one message object per line, the shape most
// fine-tuning tools accept.
type JSONLExporter struct{}

func (JSONLExporter) FileExtension() string { return ".jsonl" }
func (JSONLExporter) MimeType() string      { return "application/jsonl" }

func (JSONLExporter) Export(conv *Conversation) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range toExportTurns(conv.Turns) {
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// YAMLExporter writes the chat as a YAML document.
type YAMLExporter struct{}

func (YAMLExporter) FileExtension() string { return ".yaml" }
func (YAMLExporter) MimeType() string      { return "application/yaml" }

func (YAMLExporter) Export(conv *Conversation) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toExportDoc(conv)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// =============================================================================
// TEXT
// =============================================================================

// TextExporter writes the transcript back in buffer form.
type TextExporter struct {
	Delims transcript.DelimiterSet
}

func (TextExporter) FileExtension() string { return ".txt" }
func (TextExporter) MimeType() string      { return "text/plain" }

func (e TextExporter) Export(conv *Conversation) ([]byte, error) {
	return []byte(transcript.NewCodec(e.Delims).Join(conv.Turns)), nil
}
