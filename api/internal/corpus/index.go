package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"school-time-bot/api/internal/llm"
	"school-time-bot/api/internal/logger"
)

// ErrNoDocuments stops the corpus subsystem when the source folder holds no
// readable documents. The wizard keeps working without retrieval.
var ErrNoDocuments = errors.New("corpus: no source documents")

// ErrStaleIndex means the persisted index was embedded by a different model
// than the one now configured. Open rebuilds it.
var ErrStaleIndex = errors.New("corpus: index built with another embedding model")

const (
	indexFile    = "index.json"
	chunkSize    = 800
	chunkOverlap = 100
	embedBatch   = 64
)

type Passage struct {
	Source string    `json:"source"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

// Index is built once per process and read-only afterwards.
type Index struct {
	Model    string    `json:"model"`
	Dim      int       `json:"dim"`
	Passages []Passage `json:"passages"`

	emb llm.Embedder
}

// Open loads the persisted index from indexDir, or builds one from docsDir
// and persists it when none exists.
func Open(ctx context.Context, indexDir, docsDir string, emb llm.Embedder, log *logger.Logger) (*Index, error) {
	ix, err := Load(indexDir, emb)
	if err == nil {
		log.Info("corpus index loaded", "dir", indexDir, "passages", len(ix.Passages))
		return ix, nil
	}
	switch {
	case errors.Is(err, ErrStaleIndex):
		log.Warn("corpus index stale, rebuilding", "dir", indexDir, "error", err)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}
	ix, err = Build(ctx, docsDir, emb, log)
	if err != nil {
		return nil, err
	}
	if err := ix.Save(indexDir); err != nil {
		log.Warn("corpus index not persisted", "dir", indexDir, "error", err)
	}
	log.Info("corpus index built", "docs", docsDir, "passages", len(ix.Passages))
	return ix, nil
}

func Load(dir string, emb llm.Embedder) (*Index, error) {
	b, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, err
	}
	var ix Index
	if err := json.Unmarshal(b, &ix); err != nil {
		return nil, fmt.Errorf("corpus: decode %s: %w", indexFile, err)
	}
	if want := emb.EmbeddingModel(); ix.Model != want {
		return nil, fmt.Errorf("%w: have %q, want %q", ErrStaleIndex, ix.Model, want)
	}
	for i, p := range ix.Passages {
		if len(p.Vector) != ix.Dim {
			return nil, fmt.Errorf("%w: passage %d has %d dimensions, want %d", ErrStaleIndex, i, len(p.Vector), ix.Dim)
		}
	}
	ix.emb = emb
	return &ix, nil
}

func (ix *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(ix)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, indexFile), b, 0o644)
}

// Build reads every supported file under docsDir, chunks and embeds it.
func Build(ctx context.Context, docsDir string, emb llm.Embedder, log *logger.Logger) (*Index, error) {
	var paths []string
	err := filepath.WalkDir(docsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && supportedExt[strings.ToLower(filepath.Ext(p))] {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("corpus: walk %s: %w", docsDir, err)
	}
	sort.Strings(paths)

	var passages []Passage
	for _, p := range paths {
		text, err := extractFile(p)
		if err != nil {
			log.Warn("corpus: skip document", "path", p, "error", err)
			continue
		}
		for _, c := range chunk(text, chunkSize, chunkOverlap) {
			passages = append(passages, Passage{Source: filepath.Base(p), Text: c})
		}
	}
	if len(passages) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, docsDir)
	}

	for start := 0; start < len(passages); start += embedBatch {
		end := min(start+embedBatch, len(passages))
		texts := make([]string, 0, end-start)
		for _, p := range passages[start:end] {
			texts = append(texts, p.Text)
		}
		vecs, err := emb.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("corpus: embed: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("corpus: embed returned %d vectors for %d passages", len(vecs), len(texts))
		}
		for i, v := range vecs {
			passages[start+i].Vector = v
		}
	}
	dim := len(passages[0].Vector)
	for i, p := range passages {
		if len(p.Vector) == 0 || len(p.Vector) != dim {
			return nil, fmt.Errorf("corpus: passage %d embedded with %d dimensions, want %d", i, len(p.Vector), dim)
		}
	}
	return &Index{Model: emb.EmbeddingModel(), Dim: dim, Passages: passages, emb: emb}, nil
}

// Search returns up to k passages ranked by cosine similarity to query.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if ix == nil || len(ix.Passages) == 0 || k <= 0 {
		return nil, nil
	}
	if ix.emb == nil {
		return nil, fmt.Errorf("corpus: no embedder")
	}
	vecs, err := ix.emb.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("corpus: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("corpus: embed query returned %d vectors", len(vecs))
	}
	q := vecs[0]
	if len(q) != ix.Dim {
		return nil, fmt.Errorf("corpus: query has %d dimensions, index has %d", len(q), ix.Dim)
	}

	type scored struct {
		i     int
		score float64
	}
	ranked := make([]scored, 0, len(ix.Passages))
	for i, p := range ix.Passages {
		ranked = append(ranked, scored{i, cosine(q, p.Vector)})
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	k = min(k, len(ranked))
	out := make([]Passage, 0, k)
	for _, r := range ranked[:k] {
		out = append(out, ix.Passages[r.i])
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// JoinPassages renders passages as one context string separated by blank lines.
func JoinPassages(ps []Passage) string {
	texts := make([]string, 0, len(ps))
	for _, p := range ps {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n\n")
}
