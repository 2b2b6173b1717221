package process

import (
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"portal-harvester/pkg/models"
)

// ChunkerConfig sizes chunks in tokens
type ChunkerConfig struct {
	MaxChunkSize int
	ChunkOverlap int
}

// DefaultChunkerConfig returns 512-token chunks with 50 tokens of overlap
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{MaxChunkSize: 512, ChunkOverlap: 50}
}

var headingLineRegex = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

// ChunkMarkdown splits markdown by headers, keeping the heading hierarchy as context,
// and falls back to recursive character splitting for oversized sections.
func ChunkMarkdown(markdown string, cfg ChunkerConfig, tok *Tokenizer) ([]models.ChunkRecord, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, nil
	}
	if cfg.MaxChunkSize <= 0 {
		cfg = DefaultChunkerConfig()
	}
	if cfg.ChunkOverlap >= cfg.MaxChunkSize {
		cfg.ChunkOverlap = cfg.MaxChunkSize / 10
	}

	recursive := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithLenFunc(tok.Count),
	)
	splitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithHeadingHierarchy(true),
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSecondSplitter(recursive),
		textsplitter.WithLenFunc(tok.Count),
	)

	parts, err := splitter.SplitText(markdown)
	if err != nil {
		return nil, err
	}

	chunks := make([]models.ChunkRecord, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, models.ChunkRecord{
			ChunkIndex:       len(chunks),
			Content:          part,
			HeadingHierarchy: headingHierarchy(part),
			TokenCount:       tok.Count(part),
		})
	}
	return chunks, nil
}

// ChunkDocument chunks a document's markdown (or its body text when no markdown was
// produced) and stamps each record with the document's identity.
func ChunkDocument(doc *models.Document, cfg ChunkerConfig, tok *Tokenizer) ([]models.ChunkRecord, error) {
	source := doc.Markdown
	if strings.TrimSpace(source) == "" {
		source = doc.BodyText
	}
	chunks, err := ChunkMarkdown(source, cfg, tok)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].URL = doc.URL
		chunks[i].Title = doc.Title
		chunks[i].Category = doc.Category
	}
	return chunks, nil
}

func headingHierarchy(content string) []string {
	matches := headingLineRegex.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if h := strings.TrimSpace(m[1]); h != "" {
			out = append(out, h)
		}
	}
	return out
}
