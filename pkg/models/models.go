package models

import (
	"fmt"
	"time"
)

// Source identifies which frontier source produced a candidate
type Source string

const (
	SourceSitemap    Source = "sitemap"
	SourceSystematic Source = "systematic"
	SourceDiscovered Source = "discovered"
	SourceFallback   Source = "fallback"
	SourceManual     Source = "manual"
)

// Rank returns the de-duplication precedence of a source. Lower is stronger.
func (s Source) Rank() int {
	switch s {
	case SourceSitemap:
		return 1
	case SourceSystematic:
		return 2
	case SourceDiscovered:
		return 3
	case SourceFallback:
		return 4
	case SourceManual:
		return 5
	}
	return 99
}

// IsValid returns true if the source is a known value
func (s Source) IsValid() bool {
	return s.Rank() != 99
}

// Category is a topical bucket assigned by the link classifier
type Category string

// CategoryOther is assigned when no classifier rule matches
const CategoryOther Category = "other"

// WorkItem represents a URL and its depth in a discovery worklist
type WorkItem struct {
	URL   string
	Depth int
}

// CandidateURL is one frontier entry
type CandidateURL struct {
	NormalizedURL string   `json:"url" yaml:"url"`
	Source        Source   `json:"source" yaml:"source"`
	Priority      float64  `json:"priority" yaml:"priority"`
	Category      Category `json:"category" yaml:"category"`
	Depth         int      `json:"depth" yaml:"depth"`
}

// NewCandidateURL builds a candidate, rejecting empty URLs, unknown sources and
// priorities outside [0,1].
func NewCandidateURL(normalizedURL string, source Source, priority float64, category Category, depth int) (CandidateURL, error) {
	if normalizedURL == "" {
		return CandidateURL{}, fmt.Errorf("candidate URL is empty")
	}
	if !source.IsValid() {
		return CandidateURL{}, fmt.Errorf("candidate %s: unknown source '%s'", normalizedURL, source)
	}
	if priority < 0 || priority > 1 {
		return CandidateURL{}, fmt.Errorf("candidate %s: priority %.3f outside [0,1]", normalizedURL, priority)
	}
	if depth < 0 {
		return CandidateURL{}, fmt.Errorf("candidate %s: negative depth %d", normalizedURL, depth)
	}
	if category == "" {
		category = CategoryOther
	}
	return CandidateURL{
		NormalizedURL: normalizedURL,
		Source:        source,
		Priority:      priority,
		Category:      category,
		Depth:         depth,
	}, nil
}

// Quality buckets a document by extracted length
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// QualityForLength maps an extracted length to a quality bucket
func QualityForLength(length int) Quality {
	switch {
	case length > 2000:
		return QualityHigh
	case length > 1000:
		return QualityMedium
	default:
		return QualityLow
	}
}

// Document is a fetched page that passed the content threshold
type Document struct {
	URL                 string    `json:"url" yaml:"url"`
	Title               string    `json:"title" yaml:"title"`
	BodyText            string    `json:"body_text" yaml:"-"`
	Category            Category  `json:"category" yaml:"category"`
	Length              int       `json:"length" yaml:"length"`
	Depth               int       `json:"depth" yaml:"depth"`
	DiscoveredLinkCount int       `json:"discovered_link_count" yaml:"discovered_link_count"`
	Markdown            string    `json:"markdown,omitempty" yaml:"-"`
	Headings            []string  `json:"headings,omitempty" yaml:"headings,omitempty"`
	TokenCount          int       `json:"token_count,omitempty" yaml:"token_count,omitempty"`
	ContentHash         string    `json:"content_hash" yaml:"content_hash"`
	Quality             Quality   `json:"quality" yaml:"quality"`
	FetchedAt           time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// NewDocument materializes a Document. The body must be longer than minLength runes;
// it is truncated to maxBodyLength runes while Length keeps the full size.
func NewDocument(url, title, body string, bodyLength int, category Category, depth, linkCount, minLength, maxBodyLength int) (*Document, error) {
	if bodyLength <= minLength {
		return nil, fmt.Errorf("document %s: body length %d does not exceed minimum %d", url, bodyLength, minLength)
	}
	if category == "" {
		category = CategoryOther
	}
	runes := []rune(body)
	if maxBodyLength > 0 && len(runes) > maxBodyLength {
		body = string(runes[:maxBodyLength])
	}
	return &Document{
		URL:                 url,
		Title:               title,
		BodyText:            body,
		Category:            category,
		Length:              bodyLength,
		Depth:               depth,
		DiscoveredLinkCount: linkCount,
		Quality:             QualityForLength(bodyLength),
		FetchedAt:           time.Now().UTC(),
	}, nil
}

// ChunkRecord is one indexer-ready slice of a document
type ChunkRecord struct {
	URL              string   `json:"url"`
	Title            string   `json:"title"`
	Category         Category `json:"category"`
	ChunkIndex       int      `json:"chunk_index"`
	Content          string   `json:"content"`
	HeadingHierarchy []string `json:"heading_hierarchy,omitempty"`
	TokenCount       int      `json:"token_count"`
}

// AttemptRecord is one entry of the fetch attempt log
type AttemptRecord struct {
	Seq      int           `json:"seq" yaml:"seq"`
	URL      string        `json:"url" yaml:"url"`
	Phase    Phase         `json:"phase" yaml:"phase"`
	Status   OutcomeStatus `json:"status" yaml:"status"`
	HTTPCode int           `json:"http_code,omitempty" yaml:"http_code,omitempty"`
	Category Category      `json:"category" yaml:"category"`
	Depth    int           `json:"depth" yaml:"depth"`
	Elapsed  time.Duration `json:"elapsed" yaml:"elapsed"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}
