package chunking

import (
	"strings"

	"github.com/gomantics/chunkx"
)

// Chunk is a piece of a source file with its line span
type Chunk struct {
	Content   string
	StartLine int
	EndLine   int
	Index     int
	Language  string
}

// DefaultMaxSize is the default maximum chunk size in tokens
const DefaultMaxSize = 500

// fallbackLines bounds line-split chunks when syntax-aware chunking fails
const fallbackLines = 60

// Chunker splits files along syntax boundaries using chunkx
type Chunker struct {
	chunker chunkx.Chunker
	maxSize int
}

func NewChunker(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Chunker{
		chunker: chunkx.NewChunker(),
		maxSize: maxSize,
	}
}

// ChunkFile chunks the file at path, detecting its language from the
// extension. content is the file's text, used when chunkx cannot parse it.
func (c *Chunker) ChunkFile(path, content, language string) []Chunk {
	chunks, err := c.chunker.ChunkFile(path, chunkx.WithMaxSize(c.maxSize))
	if err != nil || len(chunks) == 0 {
		return SplitLines(content, fallbackLines, language)
	}

	out := make([]Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Content) == "" {
			continue
		}
		lang := string(ch.Language)
		if lang == "" {
			lang = language
		}
		out = append(out, Chunk{
			Content:   ch.Content,
			StartLine: ch.StartLine,
			EndLine:   ch.EndLine,
			Index:     len(out),
			Language:  lang,
		})
	}
	return out
}

// SplitLines cuts content into chunks of at most maxLines lines. Blank
// chunks are dropped. Lines are 1-based.
func SplitLines(content string, maxLines int, language string) []Chunk {
	if maxLines <= 0 {
		maxLines = fallbackLines
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")

	var out []Chunk
	for start := 0; start < len(lines); start += maxLines {
		end := min(start+maxLines, len(lines))
		text := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, Chunk{
			Content:   text,
			StartLine: start + 1,
			EndLine:   end,
			Index:     len(out),
			Language:  language,
		})
	}
	return out
}
