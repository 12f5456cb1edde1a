package views

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/tidwall/pretty"
)

// DefaultStyle is the chroma style used for highlighting
const DefaultStyle = "monokai"

// Highlight writes content as highlighted HTML, picking the lexer by content type
func Highlight(w io.Writer, content, contentType, style string) error {
	// Split content type before ;
	contentType = strings.TrimSpace(strings.Split(contentType, ";")[0])

	lexer := lexers.MatchMimeType(contentType)
	if lexer == nil && strings.HasSuffix(contentType, "+json") {
		lexer = lexers.Get("json")
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	formatter, chromaStyle := chromaFormatterAndStyle(style)

	iterator, err := lexer.Tokenise(nil, content)
	if err != nil {
		return err
	}

	return formatter.Format(w, chromaStyle, iterator)
}

// WriteStyles writes the CSS for highlighted content
func WriteStyles(w io.Writer, style string) error {
	formatter, chromaStyle := chromaFormatterAndStyle(style)
	if err := formatter.WriteCSS(w, chromaStyle); err != nil {
		return err
	}
	_, err := io.WriteString(w, ".chroma { white-space: pre-wrap; }\n")
	return err
}

func chromaFormatterAndStyle(name string) (*html.Formatter, *chroma.Style) {
	formatter := html.New(
		html.Standalone(false),
		html.WithClasses(true),
		html.TabWidth(4),
	)

	style := styles.Get(name)
	if style == nil {
		style = styles.Fallback
	}

	return formatter, style
}

// FormatJSON pretty-prints a JSON document. Invalid JSON is returned unchanged.
func FormatJSON(data []byte) string {
	if !json.Valid(data) {
		return string(data)
	}
	return string(pretty.PrettyOptions(data, &pretty.Options{Width: 80, Indent: "  "}))
}

// FormatValue renders a decoded JSON value pretty-printed
func FormatValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return FormatJSON(data)
}

// isJSONDocument reports whether data is a JSON object or array
func isJSONDocument(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	return json.Valid(trimmed)
}
