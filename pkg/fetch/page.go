package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"portal-harvester/pkg/models"
	"portal-harvester/pkg/process"
	"portal-harvester/pkg/utils"
)

// maxPageBytes bounds the HTML read for a single page
const maxPageBytes = 16 << 20

// Categorizer assigns the topical category stored on each Document
type Categorizer interface {
	Categorize(u string) models.Category
}

// PageOptions configures a PageFetcher
type PageOptions struct {
	UserAgent           string
	Timeout             time.Duration
	ProbeTimeout        time.Duration
	ConnectivityTimeout time.Duration
	MinContentLength    int
	MaxBodyLength       int
}

// PageFetcher issues single-attempt GETs and classifies every result into a FetchOutcome
type PageFetcher struct {
	client      *http.Client
	extractor   *process.Extractor
	categorizer Categorizer
	tokenizer   *process.Tokenizer
	opts        PageOptions
	log         *logrus.Entry
}

// NewPageFetcher creates a PageFetcher. tokenizer may be nil.
func NewPageFetcher(client *http.Client, extractor *process.Extractor, categorizer Categorizer, tokenizer *process.Tokenizer, opts PageOptions, log *logrus.Entry) *PageFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.ConnectivityTimeout <= 0 {
		opts.ConnectivityTimeout = 10 * time.Second
	}
	return &PageFetcher{
		client:      client,
		extractor:   extractor,
		categorizer: categorizer,
		tokenizer:   tokenizer,
		opts:        opts,
		log:         log,
	}
}

type page struct {
	status      int
	contentType string
	body        []byte
}

// get performs one GET detached from ctx cancellation but bounded by timeout.
// Non-2xx responses are returned without reading the body.
func (pf *PageFetcher) get(ctx context.Context, rawURL string, timeout time.Duration) (*page, error) {
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", pf.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := pf.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	p := &page{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type")}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return p, nil
	}
	p.body, err = io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	if p.contentType == "" {
		p.contentType = http.DetectContentType(p.body)
	}
	return p, nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// transportStatus separates timeouts from other transport failures
func transportStatus(err error) models.OutcomeStatus {
	if utils.IsTimeout(err) {
		return models.StatusTimeout
	}
	return models.StatusConnectionError
}

// Fetch retrieves one page. It never retries and never panics on network input;
// every result maps to exactly one OutcomeStatus.
func (pf *PageFetcher) Fetch(ctx context.Context, pageURL string, depth int) (outcome models.FetchOutcome) {
	start := time.Now()
	defer func() { outcome.Elapsed = time.Since(start) }()

	p, err := pf.get(ctx, pageURL, pf.opts.Timeout)
	if err != nil {
		return models.FailureOutcome(pageURL, depth, transportStatus(err), err)
	}
	if p.status < 200 || p.status > 299 {
		return models.HTTPErrorOutcome(pageURL, depth, p.status)
	}
	if !isHTML(p.contentType) {
		return models.FailureOutcome(pageURL, depth, models.StatusParseError,
			fmt.Errorf("%w: content type '%s'", utils.ErrNotHTML, p.contentType))
	}

	ext, err := pf.extractor.Extract(p.body, pageURL)
	if err != nil {
		return models.FailureOutcome(pageURL, depth, models.StatusParseError, err)
	}

	category := models.CategoryOther
	if pf.categorizer != nil {
		category = pf.categorizer.Categorize(pageURL)
	}
	doc, err := models.NewDocument(pageURL, ext.Title, ext.Body, ext.BodyLength, category, depth,
		len(ext.Links), pf.opts.MinContentLength, pf.opts.MaxBodyLength)
	if err != nil {
		short := models.FailureOutcome(pageURL, depth, models.StatusTooShort,
			fmt.Errorf("%w: %d runes", utils.ErrContentTooShort, ext.BodyLength))
		short.Links = ext.Links
		return short
	}

	doc.Markdown = ext.Markdown
	doc.Headings = ext.Headings
	doc.ContentHash = utils.CalculateStringSHA256(ext.Body)
	if ext.Markdown != "" {
		doc.TokenCount = pf.tokenizer.Count(ext.Markdown)
	} else {
		doc.TokenCount = pf.tokenizer.Count(doc.BodyText)
	}
	return models.SuccessOutcome(pageURL, depth, doc, ext.Links)
}

// Links fetches pageURL and returns its extracted links without building a Document.
// Used by seed exploration, where only the link graph matters.
func (pf *PageFetcher) Links(ctx context.Context, pageURL string) ([]string, error) {
	p, err := pf.get(ctx, pageURL, pf.opts.Timeout)
	if err != nil {
		return nil, err
	}
	if p.status < 200 || p.status > 299 {
		return nil, fmt.Errorf("%w: status %d", utils.ErrOtherHTTPError, p.status)
	}
	if !isHTML(p.contentType) {
		return nil, fmt.Errorf("%w: content type '%s'", utils.ErrNotHTML, p.contentType)
	}
	ext, err := pf.extractor.Extract(p.body, pageURL)
	if err != nil {
		return nil, err
	}
	return ext.Links, nil
}

// Probe issues a HEAD request, following redirects, and returns the final status code
func (pf *PageFetcher) Probe(ctx context.Context, rawURL string) (int, error) {
	probeCtx, cancel := context.WithTimeout(ctx, pf.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", pf.opts.UserAgent)
	resp, err := pf.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// CheckConnectivity GETs baseURL and requires a 200. Any other result wraps ErrConnectivity.
func (pf *PageFetcher) CheckConnectivity(ctx context.Context, baseURL string) error {
	p, err := pf.get(ctx, baseURL, pf.opts.ConnectivityTimeout)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", utils.ErrConnectivity, baseURL, err)
	}
	if p.status != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", utils.ErrConnectivity, baseURL, p.status)
	}
	return nil
}

// Diagnosis is one line of the connectivity diagnostic
type Diagnosis struct {
	URL         string        `json:"url" yaml:"url"`
	Status      int           `json:"status,omitempty" yaml:"status,omitempty"`
	ContentType string        `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Size        int           `json:"size" yaml:"size"`
	Elapsed     time.Duration `json:"elapsed" yaml:"elapsed"`
	Preview     string        `json:"preview,omitempty" yaml:"preview,omitempty"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Diagnose fetches each URL once and reports status, size, timing and a text preview.
// It stops early if ctx is cancelled.
func (pf *PageFetcher) Diagnose(ctx context.Context, urls []string) []Diagnosis {
	out := make([]Diagnosis, 0, len(urls))
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		d := Diagnosis{URL: u}
		p, err := pf.get(ctx, u, pf.opts.ConnectivityTimeout)
		d.Elapsed = time.Since(start)
		if err != nil {
			d.Error = err.Error()
			if errors.Is(err, context.DeadlineExceeded) {
				d.Error = "timeout: " + d.Error
			}
			out = append(out, d)
			continue
		}
		d.Status = p.status
		d.ContentType = p.contentType
		d.Size = len(p.body)
		d.Preview = utils.TruncateRunes(utils.CollapseWhitespace(string(p.body)), 200, "...")
		pf.log.WithFields(logrus.Fields{"url": u, "status": d.Status, "size": d.Size, "elapsed": d.Elapsed}).Info("Diagnosed")
		out = append(out, d)
	}
	return out
}
