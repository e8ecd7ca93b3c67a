package corpus

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"school-time-bot/api/internal/util"
)

var supportedExt = map[string]bool{".txt": true, ".md": true, ".pdf": true, ".docx": true}

// extractFile returns the plain text of a source document.
func extractFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	// Content wins over the extension; exported files are often misnamed.
	switch util.SniffDocument(data) {
	case util.KindPDF:
		return extractPDF(data)
	case util.KindZip:
		return extractDOCX(data)
	case util.KindText:
		if ext := strings.ToLower(filepath.Ext(path)); ext == ".txt" || ext == ".md" {
			return collapseWhitespace(string(data)), nil
		}
	}
	return "", fmt.Errorf("unsupported file %s", filepath.Base(path))
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf: %w", err)
	}
	txt, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf text: %w", err)
	}
	b, err := io.ReadAll(txt)
	if err != nil {
		return "", err
	}
	return collapseWhitespace(string(b)), nil
}

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("docx: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx: word/document.xml not found")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	// Paragraphs (w:p) become line breaks, runs (w:t) carry the text.
	dec := xml.NewDecoder(rc)
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx xml: %w", err)
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "t" {
				var v string
				if err := dec.DecodeElement(&v, &se); err == nil {
					sb.WriteString(v)
				}
			}
		case xml.EndElement:
			if se.Name.Local == "p" {
				sb.WriteString("\n")
			}
		}
	}
	return collapseWhitespace(sb.String()), nil
}

// collapseWhitespace squeezes runs of spaces inside lines and drops blank lines.
func collapseWhitespace(s string) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

// chunk splits text into windows of at most size runes that overlap by
// overlap runes, preferring to cut at a line break.
func chunk(text string, size, overlap int) []string {
	r := []rune(text)
	if len(r) == 0 {
		return nil
	}
	if len(r) <= size {
		return []string{text}
	}
	var out []string
	for start := 0; start < len(r); {
		end := start + size
		if end >= len(r) {
			end = len(r)
		} else {
			for i := end; i > start+size/2; i-- {
				if r[i-1] == '\n' {
					end = i
					break
				}
			}
		}
		if piece := strings.TrimSpace(string(r[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(r) {
			break
		}
		if next := end - overlap; next > start {
			start = next
		} else {
			start = end
		}
	}
	return out
}
