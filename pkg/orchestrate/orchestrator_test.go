package orchestrate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-harvester/pkg/config"
	"portal-harvester/pkg/models"
	"portal-harvester/pkg/output"
	"portal-harvester/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

type recordingSink struct {
	mu   sync.Mutex
	docs []*models.Document
}

func (s *recordingSink) Submit(_ context.Context, docs []*models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, docs...)
	return nil
}
func (s *recordingSink) Name() string { return "recording" }
func (s *recordingSink) Close() error { return nil }

func contentPage(title string, links ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><main><h1>%s</h1>", title, title)
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&b, "<p>%s carries imaging and sounding payloads observing the Indian Ocean region every half hour.</p>", title)
	}
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, l, l)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

// portalServer serves a tiny portal: a sitemap with two mission pages and one broken page.
// Every content page links to /about.
func portalServer(t *testing.T, homeStatus int) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			if homeStatus != http.StatusOK {
				w.WriteHeader(homeStatus)
				return
			}
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, contentPage("Portal Home", "/about"))
		case "/sitemap.xml":
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprintf(w, `<?xml version="1.0"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>%[1]s/insat-3d</loc></url><url><loc>%[1]s/oceansat-2</loc></url><url><loc>%[1]s/broken</loc></url></urlset>`, srv.URL)
		case "/insat-3d", "/oceansat-2", "/about":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, contentPage(strings.TrimPrefix(r.URL.Path, "/"), "/about"))
		case "/broken":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		Portal: config.PortalConfig{
			BaseURL:     baseURL,
			SitemapURLs: []string{baseURL + "/sitemap.xml"},
		},
		Budget: config.BudgetConfig{MaxTotalPages: 10, MaxDepth: 2},
		Fetch:  config.FetchConfig{MaxRetries: 0, InitialRetryDelay: time.Millisecond},
		Output: config.OutputConfig{Dir: t.TempDir(), WriteChunks: true},
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	cfg.Budget.PolitenessDelay = time.Millisecond
	cfg.HTTPClientSettings.Timeout = 2 * time.Second
	cfg.Fetch.ConnectivityTimeout = 2 * time.Second
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.AppConfig, sink *recordingSink) *Runner {
	t.Helper()
	comp, err := NewComponents(cfg, testLogger())
	require.NoError(t, err)
	return NewRunner(comp, sink, testLogger())
}

func TestRunner_EndToEnd(t *testing.T) {
	srv := portalServer(t, http.StatusOK)
	cfg := testConfig(t, srv.URL)
	sink := &recordingSink{}
	runner := newTestRunner(t, cfg, sink)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	s := report.Summary

	assert.Empty(t, s.Aborted)
	assert.Equal(t, models.PhasePriority, s.PhasesExecuted[0])
	assert.Equal(t, models.PhaseDone, s.PhasesExecuted[len(s.PhasesExecuted)-1])
	assert.GreaterOrEqual(t, s.Documents, 3, "two missions plus the discovered about page")
	assert.LessOrEqual(t, s.PagesFetched, cfg.Budget.MaxTotalPages)
	assert.Equal(t, 2, s.ByHTTPCode[http.StatusServiceUnavailable], "one attempt plus one retry")
	assert.Equal(t, 1, s.RetriesAttempted)
	assert.Zero(t, s.RetriesRecovered)
	assert.Equal(t, 3, s.FrontierBySource[models.SourceSitemap])
	assert.Greater(t, s.Coverage, 0.0)
	assert.Len(t, sink.docs, s.Documents)

	for _, name := range []string{output.DocumentsFile, output.ChunksFile, output.AttemptsFile, output.FrontierFile, output.SummaryFile} {
		_, statErr := os.Stat(filepath.Join(report.OutputDir, name))
		assert.NoError(t, statErr, name)
	}
	assert.Positive(t, report.Chunks)

	latest, _, err := output.LatestSummary(output.SiteDir(cfg.Output.Dir, cfg.Portal.Domain))
	require.NoError(t, err)
	assert.Equal(t, s.RunID, latest.RunID)

	p := runner.Progress()
	assert.Equal(t, StageDone, p.Stage)
	assert.Equal(t, s.RunID, p.RunID)
	assert.Equal(t, s.PagesFetched, p.PagesFetched)
}

func TestRunner_ConnectivityAbort(t *testing.T) {
	srv := portalServer(t, http.StatusInternalServerError)
	cfg := testConfig(t, srv.URL)
	sink := &recordingSink{}
	runner := newTestRunner(t, cfg, sink)

	report, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnectivityFailure(err))
	assert.ErrorIs(t, err, utils.ErrConnectivity)

	s := report.Summary
	assert.NotEmpty(t, s.Aborted)
	assert.Zero(t, s.PagesFetched)
	assert.Empty(t, sink.docs)

	loaded, err := output.LoadSummary(filepath.Join(report.OutputDir, output.SummaryFile))
	require.NoError(t, err)
	assert.Equal(t, s.Aborted, loaded.Aborted)
}

func TestRunner_CancelledDuringAggregation(t *testing.T) {
	srv := portalServer(t, http.StatusOK)
	cfg := testConfig(t, srv.URL)
	runner := newTestRunner(t, cfg, &recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := runner.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Summary.PagesFetched)
	assert.NotEmpty(t, report.Summary.Aborted)
}

func TestComponents_DiagnosticURLsAndCheck(t *testing.T) {
	srv := portalServer(t, http.StatusOK)
	cfg := testConfig(t, srv.URL)
	cfg.Portal.CriticalURLs = []string{srv.URL + "/insat-3d", srv.URL + "/sitemap.xml"}

	comp, err := NewComponents(cfg, testLogger())
	require.NoError(t, err)

	urls := comp.DiagnosticURLs()
	assert.Equal(t, []string{srv.URL, srv.URL + "/sitemap.xml", srv.URL + "/insat-3d"}, urls)

	diags, err := comp.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, diags, 3)
	for _, d := range diags {
		assert.Equal(t, http.StatusOK, d.Status, d.URL)
	}
}

func TestComponents_BuildFrontier(t *testing.T) {
	srv := portalServer(t, http.StatusOK)
	cfg := testConfig(t, srv.URL)
	comp, err := NewComponents(cfg, testLogger())
	require.NoError(t, err)

	f, err := comp.BuildFrontier(context.Background(), testLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, f.Len())
	c, ok := f.Get(srv.URL + "/insat-3d")
	require.True(t, ok)
	assert.Equal(t, models.Category("missions"), c.Category)
}

func TestApplyOverrides(t *testing.T) {
	cfg := &config.AppConfig{Budget: config.BudgetConfig{MaxTotalPages: 200, MaxDepth: 3}, Output: config.OutputConfig{Dir: "out"}}
	ApplyOverrides(cfg, 0, 0, "")
	assert.Equal(t, 200, cfg.Budget.MaxTotalPages)
	ApplyOverrides(cfg, 25, 1, "elsewhere")
	assert.Equal(t, 25, cfg.Budget.MaxTotalPages)
	assert.Equal(t, 1, cfg.Budget.MaxDepth)
	assert.Equal(t, "elsewhere", cfg.Output.Dir)
}
