package ingestion

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"github.com/poiesic/insightdocs/core"
)

// ExtractText converts an uploaded file's raw bytes to plain text based
// on its declared type. An unsupported type or an unparseable file is a
// data error, never retried.
func ExtractText(declaredType string, data []byte) (string, error) {
	switch normalizeType(declaredType) {
	case "txt", "text", "md", "markdown":
		return string(data), nil
	case "pdf":
		return extractPDF(data)
	case "docx":
		return extractDocx(data)
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", core.ErrData, declaredType)
	}
}

func normalizeType(declaredType string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(declaredType), "."))
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parse pdf: %v", core.ErrData, err)
	}
	text, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extract pdf text: %v", core.ErrData, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, text); err != nil {
		return "", fmt.Errorf("%w: read pdf text: %v", core.ErrData, err)
	}
	return buf.String(), nil
}

func extractDocx(data []byte) (string, error) {
	reader, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parse docx: %v", core.ErrData, err)
	}
	defer reader.Close()
	return flattenDocxXML(reader.Editable().GetContent()), nil
}

// flattenDocxXML strips WordprocessingML markup, keeping text runs and
// turning paragraph boundaries into newlines.
func flattenDocxXML(content string) string {
	var (
		out   strings.Builder
		inTag bool
		tag   strings.Builder
	)
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
			tag.Reset()
		case r == '>' && inTag:
			inTag = false
			if strings.HasPrefix(tag.String(), "/w:p") {
				out.WriteByte('\n')
			}
		case inTag:
			tag.WriteRune(r)
		default:
			out.WriteRune(r)
		}
	}
	return strings.TrimSpace(out.String())
}
