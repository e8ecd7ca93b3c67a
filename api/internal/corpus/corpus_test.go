package corpus

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"school-time-bot/api/internal/logger"
)

// keywordEmbedder maps text onto counts of a few fixed keywords. A non-zero
// dims truncates the vectors to emulate a smaller model.
type keywordEmbedder struct {
	calls int
	model string
	dims  int
}

var keywords = []string{"내용체계", "성취기준", "평가"}

func (e *keywordEmbedder) EmbeddingModel() string {
	if e.model == "" {
		return "keyword/v1"
	}
	return e.model
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	n := len(keywords)
	if e.dims > 0 {
		n = e.dims
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, n)
		for j, k := range keywords[:n] {
			v[j] = float32(strings.Count(t, k))
		}
		out[i] = v
	}
	return out, nil
}

func writeDocx(t *testing.T, path string, paragraphs ...string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	var sb strings.Builder
	sb.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		sb.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	sb.WriteString(`</w:body></w:document>`)
	if _, err := w.Write([]byte(sb.String())); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestOpenBuildsThenLoads(t *testing.T) {
	docs := t.TempDir()
	idx := filepath.Join(t.TempDir(), "index")
	if err := os.WriteFile(filepath.Join(docs, "a.txt"), []byte("내용체계   작성 안내\n\n영역과 핵심 아이디어"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeDocx(t, filepath.Join(docs, "b.docx"), "성취기준 진술 방법", "성취기준 코드")
	if err := os.WriteFile(filepath.Join(docs, "skip.png"), []byte{0x89}, 0o644); err != nil {
		t.Fatal(err)
	}

	emb := &keywordEmbedder{}
	ix, err := Open(context.Background(), idx, docs, emb, logger.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(ix.Passages) != 2 {
		t.Fatalf("passages = %d, want 2", len(ix.Passages))
	}
	if ix.Passages[0].Text != "내용체계 작성 안내\n영역과 핵심 아이디어" {
		t.Fatalf("txt passage = %q", ix.Passages[0].Text)
	}
	if ix.Passages[1].Source != "b.docx" || ix.Passages[1].Text != "성취기준 진술 방법\n성취기준 코드" {
		t.Fatalf("docx passage = %+v", ix.Passages[1])
	}

	got, err := ix.Search(context.Background(), "성취기준", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Source != "b.docx" {
		t.Fatalf("Search = %+v", got)
	}

	// Second open must come from disk without re-embedding the documents.
	emb2 := &keywordEmbedder{}
	again, err := Open(context.Background(), idx, filepath.Join(docs, "gone"), emb2, logger.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if emb2.calls != 0 || len(again.Passages) != 2 {
		t.Fatalf("reopen embedded %d times, %d passages", emb2.calls, len(again.Passages))
	}
}

func TestOpenRebuildsForAnotherModel(t *testing.T) {
	docs := t.TempDir()
	idx := filepath.Join(t.TempDir(), "index")
	if err := os.WriteFile(filepath.Join(docs, "a.txt"), []byte("성취기준 평가 안내"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(context.Background(), idx, docs, &keywordEmbedder{model: "gpt/small"}, logger.NewNop()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	other := &keywordEmbedder{model: "gemini/embedding", dims: 2}
	if _, err := Load(idx, other); !errors.Is(err, ErrStaleIndex) {
		t.Fatalf("Load with another model: %v", err)
	}
	ix, err := Open(context.Background(), idx, docs, other, logger.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if other.calls == 0 || ix.Model != "gemini/embedding" || ix.Dim != 2 {
		t.Fatalf("not rebuilt: calls=%d model=%q dim=%d", other.calls, ix.Model, ix.Dim)
	}
	if _, err := Load(idx, other); err != nil {
		t.Fatalf("rebuilt index not persisted: %v", err)
	}
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	ix := &Index{
		Model:    "keyword/v1",
		Dim:      3,
		Passages: []Passage{{Text: "a", Vector: []float32{1, 0, 0}}, {Text: "b", Vector: []float32{0, 1, 0}}},
		emb:      &keywordEmbedder{dims: 2},
	}
	if got, err := ix.Search(context.Background(), "성취기준", 1); err == nil {
		t.Fatalf("Search = %+v, want dimension error", got)
	}
}

func TestNoDocuments(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "missing"), &keywordEmbedder{}, logger.NewNop())
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("err = %v, want ErrNoDocuments", err)
	}
}

func TestChunkOverlapAndProgress(t *testing.T) {
	text := strings.Repeat("가", 1000)
	parts := chunk(text, 400, 100)
	if len(parts) != 3 {
		t.Fatalf("chunks = %d, want 3", len(parts))
	}
	if n := len([]rune(parts[0])); n != 400 {
		t.Fatalf("first chunk = %d runes", n)
	}
	if chunk("", 10, 2) != nil {
		t.Fatalf("empty text must give no chunks")
	}
	if got := chunk("short", 10, 2); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text = %v", got)
	}
}

func TestSearchNilIndex(t *testing.T) {
	var ix *Index
	got, err := ix.Search(context.Background(), "q", 3)
	if err != nil || got != nil {
		t.Fatalf("nil index Search = %v, %v", got, err)
	}
	if JoinPassages([]Passage{{Text: "a"}, {Text: "b"}}) != "a\n\nb" {
		t.Fatalf("JoinPassages")
	}
}

func TestExtractSniffsContent(t *testing.T) {
	dir := t.TempDir()
	misnamed := filepath.Join(dir, "guide.pdf")
	writeDocx(t, misnamed, "교수학습 방법")
	got, err := extractFile(misnamed)
	if err != nil {
		t.Fatalf("extractFile: %v", err)
	}
	if got != "교수학습 방법" {
		t.Fatalf("text = %q", got)
	}

	bin := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(bin, []byte{'a', 0, 'b'}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := extractFile(bin); err == nil {
		t.Fatal("binary .txt should be rejected")
	}
}
