package util

import "bytes"

const (
	KindPDF  = "pdf"
	KindZip  = "zip"
	KindText = "text"
)

// SniffDocument classifies a source document by its magic bytes. Zip covers
// docx. Anything valid as UTF-8 without NUL bytes counts as text.
func SniffDocument(b []byte) string {
	switch {
	case bytes.HasPrefix(b, []byte("%PDF-")):
		return KindPDF
	case bytes.HasPrefix(b, []byte("PK\x03\x04")):
		return KindZip
	}
	head := b
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return ""
	}
	return KindText
}
