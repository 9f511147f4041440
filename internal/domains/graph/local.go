package graph

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gomantics/repochat/internal/domains/agents"
	"github.com/gomantics/repochat/libs/chunking"
	"github.com/gomantics/repochat/libs/gitrepo"
	"github.com/gomantics/repochat/libs/milvus"
	"go.uber.org/zap"
)

// Embedder turns texts into vectors
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Completer answers a prompt under a system instruction
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// VectorStore persists chunk vectors per repository
type VectorStore interface {
	Insert(ctx context.Context, chunks []milvus.Chunk) error
	Search(ctx context.Context, embedding []float32, repoIDs []string, limit int) ([]milvus.SearchResult, error)
	DeleteByRepoID(ctx context.Context, repoID string) error
}

// FileChunker splits one source file
type FileChunker interface {
	ChunkFile(path, content, language string) []chunking.Chunk
}

const embedBatchSize = 64

var systemPrompts = map[agents.Kind]string{
	agents.KindSummary: "You summarize source code repositories. Using only the code excerpts provided, " +
		"give a short overview of what the code does and how it is organized.",
	agents.KindInsights: "You review source code. Using only the code excerpts provided, point out notable " +
		"design decisions, risks and relationships between components.",
	agents.KindCompletion: "You answer questions about source code. Use the code excerpts provided and cite " +
		"file paths. If the excerpts do not contain the answer, say so.",
}

// Local keeps chunk embeddings in milvus and answers with a chat model
type Local struct {
	l         *zap.Logger
	chunker   FileChunker
	embedder  Embedder
	store     VectorStore
	completer Completer
	limit     int
}

func NewLocal(l *zap.Logger, chunker FileChunker, embedder Embedder, store VectorStore, completer Completer, searchLimit int) *Local {
	if searchLimit <= 0 {
		searchLimit = 8
	}
	return &Local{
		l:         l.Named("graph.local"),
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		completer: completer,
		limit:     searchLimit,
	}
}

// Build replaces the repository's content with the chunks of snap. Content
// inserted before a failure stays until Discard.
func (g *Local) Build(ctx context.Context, repoID string, snap *gitrepo.Snapshot) error {
	if err := g.store.DeleteByRepoID(ctx, repoID); err != nil {
		return fmt.Errorf("%w: clear previous content: %w", ErrBackend, err)
	}

	var (
		pending []milvus.Chunk
		total   int
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := g.embedAndInsert(ctx, pending); err != nil {
			return err
		}
		total += len(pending)
		pending = pending[:0]
		return nil
	}

	for _, rel := range snap.Files {
		if err := ctx.Err(); err != nil {
			return err
		}

		content, err := gitrepo.ReadFile(snap.Root, rel)
		if err != nil {
			g.l.Warn("skipping unreadable file", zap.String("repo_id", repoID), zap.String("path", rel), zap.Error(err))
			continue
		}

		lang := gitrepo.Language(rel)
		for _, ch := range g.chunker.ChunkFile(filepath.Join(snap.Root, filepath.FromSlash(rel)), content, lang) {
			pending = append(pending, milvus.Chunk{
				RepoID:     repoID,
				CommitSHA:  snap.CommitSHA,
				FilePath:   rel,
				ChunkIndex: int64(ch.Index),
				Content:    ch.Content,
				StartLine:  int64(ch.StartLine),
				EndLine:    int64(ch.EndLine),
				Language:   ch.Language,
			})
			if len(pending) >= embedBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	g.l.Info("graph built",
		zap.String("repo_id", repoID),
		zap.Int("files", len(snap.Files)),
		zap.Int("chunks", total),
	)
	return nil
}

func (g *Local) embedAndInsert(ctx context.Context, chunks []milvus.Chunk) error {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = embeddingText(ch)
	}

	vectors, err := g.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: embed: %w", ErrBackend, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks", ErrBackend, len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if err := g.store.Insert(ctx, chunks); err != nil {
		return fmt.Errorf("%w: insert: %w", ErrBackend, err)
	}
	return nil
}

// embeddingText prefixes the chunk with its path so file names take part in
// similarity.
func embeddingText(ch milvus.Chunk) string {
	return fmt.Sprintf("// %s\n%s", ch.FilePath, ch.Content)
}

// Discard removes everything stored for repoID
func (g *Local) Discard(ctx context.Context, repoID string) error {
	if err := g.store.DeleteByRepoID(ctx, repoID); err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}
	return nil
}

// Query answers kind over the chunks most similar to text. Chunks returns
// the excerpts themselves; the other kinds ask the chat model.
func (g *Local) Query(ctx context.Context, kind agents.Kind, text string, repoIDs []string) (string, error) {
	vector, err := g.embedder.EmbedOne(ctx, text)
	if err != nil {
		return "", fmt.Errorf("%w: embed query: %w", ErrBackend, err)
	}

	hits, err := g.store.Search(ctx, vector, repoIDs, g.limit)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBackend, err)
	}

	if kind == agents.KindChunks {
		if len(hits) == 0 {
			return "No matching code found.", nil
		}
		return formatSnippets(hits), nil
	}

	system, ok := systemPrompts[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", agents.ErrUnknownKind, kind)
	}

	prompt := fmt.Sprintf("Question: %s\n\nCode excerpts:\n\n%s", text, formatSnippets(hits))
	if len(hits) == 0 {
		prompt = fmt.Sprintf("Question: %s\n\nNo code excerpts matched the question.", text)
	}

	answer, err := g.completer.Complete(ctx, system, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBackend, err)
	}
	return answer, nil
}

func formatSnippets(hits []milvus.SearchResult) string {
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s:%d-%d\n```%s\n%s\n```", h.FilePath, h.StartLine, h.EndLine, h.Language, strings.TrimRight(h.Content, "\n"))
	}
	return b.String()
}
