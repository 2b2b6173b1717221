package process

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-harvester/pkg/detect"
	"portal-harvester/pkg/parse"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestExtractor() *Extractor {
	return NewExtractor(parse.NewNormalizer("portal.example", []string{"language"}), testLogger())
}

const missionPage = `<!doctype html>
<html><head><title>
  INSAT-3D   Introduction </title></head>
<body>
<header><a href="/">Home</a></header>
<nav class="menu"><a href="/missions">Missions</a><a href="/login">Login</a></nav>
<main>
  <h1>INSAT-3D</h1>
  <p>INSAT-3D is an advanced meteorological satellite carrying a six channel imager and a nineteen channel sounder.
  It provides vertical profiles of temperature and humidity over the Indian region for weather forecasting.</p>
  <table>
    <tr><th>Payload</th><th>Channels</th></tr>
    <tr><td>Imager</td><td>6</td></tr>
    <tr><td>Sounder</td><td>19</td></tr>
  </table>
  <ol><li>Launch</li><li>Orbit raising</li></ol>
  <dl><dt>Orbit</dt><dd>Geostationary</dd></dl>
  <div class="spec-row">Longitude: 82 E</div>
  <a href="insat-3d-payloads#top">Payloads</a>
  <a href="https://other.example/x">External</a>
  <a href="/insat-3d-introduction">Self</a>
</main>
<form action="/internal/catalog-insat3d"></form>
<form action="/search"></form>
<script>var api = "https://portal.example/data/feed"; var lib = "https://portal.example/app.js";</script>
<footer>Copyright footer text</footer>
</body></html>`

func TestExtractor_Extract(t *testing.T) {
	ext, err := newTestExtractor().Extract([]byte(missionPage), "https://portal.example/insat-3d-introduction")
	require.NoError(t, err)

	assert.Equal(t, "INSAT-3D Introduction", ext.Title)

	assert.Contains(t, ext.Body, "advanced meteorological satellite")
	assert.Contains(t, ext.Body, "[TABLE - Payload | Channels: Imager | 6; Sounder | 19;]")
	assert.Contains(t, ext.Body, "[ORDERED LIST: Launch • Orbit raising]")
	assert.Contains(t, ext.Body, "[DEFINITIONS: Orbit: Geostationary]")
	assert.Contains(t, ext.Body, "[INFO: Longitude: 82 E]")
	assert.NotContains(t, ext.Body, "Copyright footer")
	assert.NotContains(t, ext.Body, "  ", "whitespace is collapsed")
	assert.Equal(t, len([]rune(ext.Body)), ext.BodyLength)

	assert.Contains(t, ext.Markdown, "INSAT-3D")
	assert.Equal(t, []string{"INSAT-3D"}, ext.Headings)
}

func TestExtractor_Links(t *testing.T) {
	ext, err := newTestExtractor().Extract([]byte(missionPage), "https://portal.example/insat-3d-introduction")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"https://portal.example/",
		"https://portal.example/missions",
		"https://portal.example/login",
		"https://portal.example/insat-3d-payloads",
		"https://portal.example/internal/catalog-insat3d",
		"https://portal.example/data/feed",
	}, ext.Links)
}

func TestExtractor_TitleDefaultsAndTruncation(t *testing.T) {
	e := newTestExtractor()

	ext, err := e.Extract([]byte("<html><body><p>x</p></body></html>"), "https://portal.example/a")
	require.NoError(t, err)
	assert.Equal(t, "Untitled", ext.Title)

	long := strings.Repeat("t", 150)
	ext, err = e.Extract([]byte("<title>"+long+"</title>"), "https://portal.example/a")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("t", 100)+"...", ext.Title)
}

func TestExtractor_StrategyFallsThroughShortSelectors(t *testing.T) {
	body := strings.Repeat("Oceansat data product description. ", 10)
	page := `<html><body><main>tiny</main><div class="description">` + body + `</div></body></html>`

	ext, err := newTestExtractor().Extract([]byte(page), "https://portal.example/oceansat")
	require.NoError(t, err)
	assert.NotContains(t, ext.Body, "tiny")
	assert.Contains(t, ext.Body, "Oceansat data product description.")
}

func TestExtractor_ShortPageFallsBackToBody(t *testing.T) {
	ext, err := newTestExtractor().Extract([]byte(`<html><body><p>Short text</p><a href="/x">x</a></body></html>`), "https://portal.example/")
	require.NoError(t, err)
	assert.Equal(t, "Short text x", ext.Body)
	assert.Equal(t, []string{"https://portal.example/x"}, ext.Links)
}

func TestExtractor_PlatformSelectorWins(t *testing.T) {
	sidebar := strings.Repeat("Related links and quick access tiles for registered users. ", 6)
	article := strings.Repeat("Scatterometer wind products are generated at 25 km resolution. ", 6)
	page := `<html><head><meta name="generator" content="Drupal 7"></head><body>
<div class="content">` + sidebar + `</div>
<div id="block-system-main"><h1>SCATSAT-1</h1><p>` + article + `</p></div>
</body></html>`

	e := newTestExtractor()
	ext, err := e.Extract([]byte(page), "https://portal.example/scatsat-1")
	require.NoError(t, err)
	assert.Equal(t, detect.PlatformDrupal, ext.Platform)
	assert.Contains(t, ext.Body, "Scatterometer wind products")
	assert.NotContains(t, ext.Body, "quick access tiles")

	// Detection is remembered for the host, and a thin platform block falls back to the strategies
	thin := `<html><body><div id="block-system-main">x</div><main>` + article + `</main></body></html>`
	ext, err = e.Extract([]byte(thin), "https://portal.example/other")
	require.NoError(t, err)
	assert.Equal(t, detect.PlatformDrupal, ext.Platform)
	assert.Contains(t, ext.Body, "Scatterometer wind products")
}
