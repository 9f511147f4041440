package milvus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"go.uber.org/zap"
)

const (
	// EmbeddingDim matches text-embedding-3-small
	EmbeddingDim = 1536

	FieldID         = "id"
	FieldRepoID     = "repo_id" // partition key, one repository per tenant
	FieldCommitSHA  = "commit_sha"
	FieldFilePath   = "file_path"
	FieldChunkIndex = "chunk_index"
	FieldContent    = "content"
	FieldStartLine  = "start_line"
	FieldEndLine    = "end_line"
	FieldLanguage   = "language"
	FieldEmbedding  = "embedding"

	maxContentLen = 65535
)

// Chunk is a code chunk stored in milvus
type Chunk struct {
	ID         int64
	RepoID     string
	CommitSHA  string
	FilePath   string
	ChunkIndex int64
	Content    string
	StartLine  int64
	EndLine    int64
	Language   string
	Embedding  []float32
}

// SearchResult is a chunk with its distance to the query vector
type SearchResult struct {
	Chunk
	Score float32
}

var outputFields = []string{
	FieldRepoID, FieldCommitSHA, FieldFilePath, FieldChunkIndex,
	FieldContent, FieldStartLine, FieldEndLine, FieldLanguage,
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.c.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if exists {
		s.l.Info("collection already exists", zap.String("collection", s.collection))
		if _, err := s.c.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection)); err != nil {
			s.l.Warn("failed to load collection", zap.Error(err))
		}
		return nil
	}

	s.l.Info("creating collection", zap.String("collection", s.collection))

	schema := entity.NewSchema().
		WithName(s.collection).
		WithDescription("Repository code chunks with embeddings").
		WithAutoID(true).
		WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeInt64).WithIsPrimaryKey(true).WithIsAutoID(true)).
		WithField(entity.NewField().WithName(FieldRepoID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPartitionKey(true)).
		WithField(entity.NewField().WithName(FieldCommitSHA).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
		WithField(entity.NewField().WithName(FieldFilePath).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
		WithField(entity.NewField().WithName(FieldChunkIndex).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(FieldContent).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxContentLen)).
		WithField(entity.NewField().WithName(FieldStartLine).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(FieldEndLine).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(FieldLanguage).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
		WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(EmbeddingDim))

	idx := index.NewIvfFlatIndex(entity.L2, 128)

	err = s.c.CreateCollection(ctx,
		milvusclient.NewCreateCollectionOption(s.collection, schema).
			WithIndexOptions(milvusclient.NewCreateIndexOption(s.collection, FieldEmbedding, idx)),
	)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if _, err := s.c.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection)); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	s.l.Info("collection created and loaded", zap.String("collection", s.collection))
	return nil
}

// Insert writes chunks. Inserted rows are searchable once milvus flushes
// them.
func (s *Store) Insert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	n := len(chunks)
	var (
		repoIDs    = make([]string, n)
		commits    = make([]string, n)
		paths      = make([]string, n)
		indexes    = make([]int64, n)
		contents   = make([]string, n)
		starts     = make([]int64, n)
		ends       = make([]int64, n)
		languages  = make([]string, n)
		embeddings = make([][]float32, n)
	)
	for i, ch := range chunks {
		repoIDs[i] = ch.RepoID
		commits[i] = ch.CommitSHA
		paths[i] = ch.FilePath
		indexes[i] = ch.ChunkIndex
		contents[i] = truncate(ch.Content, maxContentLen)
		starts[i] = ch.StartLine
		ends[i] = ch.EndLine
		languages[i] = ch.Language
		embeddings[i] = ch.Embedding
	}

	columns := []column.Column{
		column.NewColumnVarChar(FieldRepoID, repoIDs),
		column.NewColumnVarChar(FieldCommitSHA, commits),
		column.NewColumnVarChar(FieldFilePath, paths),
		column.NewColumnInt64(FieldChunkIndex, indexes),
		column.NewColumnVarChar(FieldContent, contents),
		column.NewColumnInt64(FieldStartLine, starts),
		column.NewColumnInt64(FieldEndLine, ends),
		column.NewColumnVarChar(FieldLanguage, languages),
		column.NewColumnFloatVector(FieldEmbedding, EmbeddingDim, embeddings),
	}

	if _, err := s.c.Insert(ctx, milvusclient.NewColumnBasedInsertOption(s.collection, columns...)); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

// Search returns the limit chunks closest to embedding among repoIDs
func (s *Store) Search(ctx context.Context, embedding []float32, repoIDs []string, limit int) ([]SearchResult, error) {
	results, err := s.c.Search(ctx,
		milvusclient.NewSearchOption(s.collection, limit, []entity.Vector{entity.FloatVector(embedding)}).
			WithANNSField(FieldEmbedding).
			WithFilter(RepoFilter(repoIDs)).
			WithOutputFields(outputFields...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var out []SearchResult
	for _, rs := range results {
		for i := 0; i < rs.ResultCount; i++ {
			sr := SearchResult{Score: rs.Scores[i]}
			if ids, ok := rs.IDs.(*column.ColumnInt64); ok {
				sr.ID = ids.Data()[i]
			}
			for _, field := range rs.Fields {
				readField(field, i, &sr.Chunk)
			}
			out = append(out, sr)
		}
	}
	return out, nil
}

func readField(field column.Column, i int, ch *Chunk) {
	switch col := field.(type) {
	case *column.ColumnVarChar:
		v := col.Data()[i]
		switch field.Name() {
		case FieldRepoID:
			ch.RepoID = v
		case FieldCommitSHA:
			ch.CommitSHA = v
		case FieldFilePath:
			ch.FilePath = v
		case FieldContent:
			ch.Content = v
		case FieldLanguage:
			ch.Language = v
		}
	case *column.ColumnInt64:
		v := col.Data()[i]
		switch field.Name() {
		case FieldChunkIndex:
			ch.ChunkIndex = v
		case FieldStartLine:
			ch.StartLine = v
		case FieldEndLine:
			ch.EndLine = v
		}
	}
}

// DeleteByRepoID removes every chunk of a repository
func (s *Store) DeleteByRepoID(ctx context.Context, repoID string) error {
	_, err := s.c.Delete(ctx, milvusclient.NewDeleteOption(s.collection).WithExpr(RepoFilter([]string{repoID})))
	if err != nil {
		return fmt.Errorf("failed to delete chunks of repository %s: %w", repoID, err)
	}
	return nil
}

// RepoFilter builds the boolean expression matching chunks of repoIDs
func RepoFilter(repoIDs []string) string {
	if len(repoIDs) == 1 {
		return fmt.Sprintf("%s == %s", FieldRepoID, strconv.Quote(repoIDs[0]))
	}
	quoted := make([]string, len(repoIDs))
	for i, id := range repoIDs {
		quoted[i] = strconv.Quote(id)
	}
	return fmt.Sprintf("%s in [%s]", FieldRepoID, strings.Join(quoted, ", "))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
