package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/fumiama/go-docx"
)

// DOCXImporter turns .docx heading styles into ATX headings and keeps body
// paragraphs as plain text.
type DOCXImporter struct {
	MaxBytes int64
}

func (p *DOCXImporter) Import(r io.Reader, filename string) (string, error) {
	br, err := readAll(r, p.MaxBytes)
	if err != nil {
		return "", err
	}
	doc, err := docx.Parse(br, br.Size())
	if err != nil {
		return "", fmt.Errorf("parse docx %s: %w", filename, err)
	}

	var sb strings.Builder
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := docxParagraphText(para)
		if text == "" {
			continue
		}
		if level := docxHeadingLevel(para); level > 0 {
			writeHeading(&sb, level, text)
		} else {
			writeParagraph(&sb, text)
		}
	}
	return sb.String(), nil
}

// docxHeadingLevel maps "Heading1".."Heading6" (or "heading 1" etc.) and
// "Title" styles to a heading level.
func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if style == "title" {
		return 1
	}
	if !strings.HasPrefix(style, "heading") {
		return 0
	}
	rest := strings.TrimPrefix(style, "heading")
	if len(rest) != 1 || rest[0] < '1' || rest[0] > '6' {
		return 0
	}
	return int(rest[0] - '0')
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
