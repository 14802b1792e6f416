package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// PDFImporter emits one "# Page N" section per non-empty page. It tries the
// Go library first, then falls back to pdftotext if enabled.
type PDFImporter struct {
	FallbackPdftotext bool
	MaxBytes          int64
}

func (p *PDFImporter) Import(r io.Reader, filename string) (string, error) {
	br, err := readAll(r, p.MaxBytes)
	if err != nil {
		return "", err
	}

	text, err := extractPDFText(br)
	if err != nil && p.FallbackPdftotext {
		text, err = extractPdftotext(br)
	}
	if err != nil {
		return "", fmt.Errorf("extract pdf text %s: %w", filename, err)
	}
	return pagesToMarkdown(text), nil
}

// pagesToMarkdown converts form-feed separated page text to sections.
func pagesToMarkdown(text string) string {
	var sb strings.Builder
	for i, page := range splitPages(text) {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		writeHeading(&sb, 1, fmt.Sprintf("Page %d", i+1))
		writeParagraph(&sb, page)
	}
	return sb.String()
}

func extractPDFText(br *bytes.Reader) (string, error) {
	reader, err := pdflib.NewReader(br, br.Size())
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if i > 1 {
			buf.WriteString("\f") // Form feed as page separator.
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

func extractPdftotext(br *bytes.Reader) (string, error) {
	if _, err := br.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	cmd := exec.CommandContext(context.Background(), "pdftotext", "-layout", "-", "-")
	cmd.Stdin = br
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

func splitPages(text string) []string {
	return strings.Split(text, "\f")
}
