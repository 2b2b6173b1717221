package process

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"portal-harvester/pkg/detect"
	"portal-harvester/pkg/parse"
	"portal-harvester/pkg/utils"
)

const (
	titleMaxRunes      = 100
	selectorMinRunes   = 200
	maxTableRows       = 5
	maxListItems       = 10
	maxDefinitions     = 5
	maxInfoRunes       = 200
	untitled           = "Untitled"
	catalogFormKeyword = "catalog"
)

// contentStrategies are tried in order; the first selector whose text exceeds
// selectorMinRunes wins. body is always the last resort.
var contentStrategies = [][]string{
	{"main", ".main-content", ".content", ".page-content", "article"},
	{".container", ".wrapper", ".body-content", "#content"},
	{".data-content", ".mission-content", ".service-content"},
	{".mission-info", ".product-info", ".service-info"},
	{".description", ".details", ".specifications"},
	{".table-container", ".data-table", ".info-table"},
	{".satellite-info", ".payload-info", ".instrument-info"},
	{"body"},
}

const noiseSelector = "script, style, nav, footer, header, iframe, noscript, .menu, .navigation, .sidebar, .ads"

var (
	infoClassRegex   = regexp.MustCompile(`(spec|info|detail|param)`)
	scriptSkipTokens = []string{"javascript:", "mailto:", ".js", ".css"}
)

// Extraction is everything the crawl needs from one HTML page
type Extraction struct {
	Title      string
	Body       string
	BodyLength int
	Links      []string
	Markdown   string
	Headings   []string
	Platform   detect.Platform
}

// Extractor turns raw markup into title, body text and an in-domain link set.
// It is safe for concurrent use.
type Extractor struct {
	normalizer *parse.Normalizer
	detector   *detect.ContentDetector
	strategies [][]cascadia.Selector
	noise      cascadia.Selector
	scriptURL  *regexp.Regexp
	log        *logrus.Entry
}

// NewExtractor compiles the content strategies. Links are normalized and scoped with normalizer.
func NewExtractor(normalizer *parse.Normalizer, log *logrus.Entry) *Extractor {
	e := &Extractor{
		normalizer: normalizer,
		detector:   detect.NewContentDetector(log),
		noise:      cascadia.MustCompile(noiseSelector),
		log:        log,
	}
	for _, group := range contentStrategies {
		compiled := make([]cascadia.Selector, 0, len(group))
		for _, s := range group {
			compiled = append(compiled, cascadia.MustCompile(s))
		}
		e.strategies = append(e.strategies, compiled)
	}
	if domain := normalizer.Domain(); domain != "" {
		e.scriptURL = regexp.MustCompile(`["']([^"']*` + regexp.QuoteMeta(domain) + `[^"']*)["']`)
	}
	return e
}

// Extract parses body as HTML. Links and the portal platform are read from the full
// document before boilerplate removal. Body text comes from the platform's content
// selector when it holds enough text, otherwise from the first matching content strategy.
func (e *Extractor) Extract(body []byte, pageURL string) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML for '%s': %w", utils.ErrParsing, pageURL, err)
	}

	var host string
	if u, err := url.Parse(pageURL); err == nil {
		host = u.Hostname()
	}
	platform := e.detector.Detect(doc, host)

	out := &Extraction{
		Title:    pageTitle(doc),
		Links:    e.extractLinks(doc, pageURL),
		Platform: platform.Platform,
	}

	doc.FindMatcher(e.noise).Remove()

	content := e.selectContent(doc, platform.Selector)
	if content != nil {
		out.Body = utils.CollapseWhitespace(nodeText(content) + structuredContent(content))
		out.BodyLength = utils.RuneLen(out.Body)

		conv := md.NewConverter(md.DomainFromURL(pageURL), true, nil)
		out.Markdown = strings.TrimSpace(conv.Convert(content))
		out.Headings = ExtractHeadings([]byte(out.Markdown))
	}
	return out, nil
}

func pageTitle(doc *goquery.Document) string {
	title := utils.CollapseWhitespace(doc.Find("title").First().Text())
	if title == "" {
		return untitled
	}
	return utils.TruncateRunes(title, titleMaxRunes, "...")
}

// selectContent tries the platform selector, then walks the strategies, returning the
// first selection whose text plus structured content exceeds selectorMinRunes.
// The last candidate seen is the fallback.
func (e *Extractor) selectContent(doc *goquery.Document, platformSelector string) *goquery.Selection {
	if platformSelector != "" {
		if found := doc.Find(platformSelector).First(); found.Length() > 0 && richEnough(found) {
			return found
		}
	}
	var last *goquery.Selection
	for _, group := range e.strategies {
		for _, sel := range group {
			found := doc.FindMatcher(sel).First()
			if found.Length() == 0 {
				continue
			}
			last = found
			if richEnough(found) {
				return found
			}
		}
	}
	return last
}

func richEnough(sel *goquery.Selection) bool {
	text := utils.CollapseWhitespace(nodeText(sel) + structuredContent(sel))
	return utils.RuneLen(text) > selectorMinRunes
}

// nodeText joins every text node under the selection with single spaces
func nodeText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

func cellText(sel *goquery.Selection) string {
	return utils.CollapseWhitespace(sel.Text())
}

// structuredContent renders tables, lists, definition lists and short key/value
// blocks as bracketed annotations appended to the body.
func structuredContent(sel *goquery.Selection) string {
	var b strings.Builder

	sel.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() == 0 {
			return
		}
		var headers []string
		rows.First().Find("th, td").Each(func(_ int, c *goquery.Selection) {
			headers = append(headers, cellText(c))
		})
		var data [][]string
		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			var cells []string
			row.Find("td, th").Each(func(_ int, c *goquery.Selection) {
				cells = append(cells, cellText(c))
			})
			if len(cells) > 0 {
				data = append(data, cells)
			}
		})
		if len(data) == 0 {
			return
		}
		if len(headers) > 0 {
			fmt.Fprintf(&b, " [TABLE - %s:", strings.Join(headers, " | "))
		} else {
			b.WriteString(" [TABLE:")
		}
		for i, row := range data {
			if i == maxTableRows {
				break
			}
			fmt.Fprintf(&b, " %s;", strings.Join(row, " | "))
		}
		b.WriteString("]")
	})

	sel.Find("ul, ol").Each(func(_ int, list *goquery.Selection) {
		var items []string
		list.Find("li").Each(func(_ int, li *goquery.Selection) {
			if len(items) < maxListItems {
				items = append(items, cellText(li))
			}
		})
		if len(items) == 0 {
			return
		}
		kind := "UNORDERED"
		if goquery.NodeName(list) == "ol" {
			kind = "ORDERED"
		}
		fmt.Fprintf(&b, " [%s LIST: %s]", kind, strings.Join(items, " • "))
	})

	sel.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		terms, defs := dl.Find("dt"), dl.Find("dd")
		n := min(terms.Length(), defs.Length(), maxDefinitions)
		if n == 0 {
			return
		}
		pairs := make([]string, 0, n)
		for i := 0; i < n; i++ {
			pairs = append(pairs, cellText(terms.Eq(i))+": "+cellText(defs.Eq(i)))
		}
		fmt.Fprintf(&b, " [DEFINITIONS: %s]", strings.Join(pairs, " | "))
	})

	sel.Find("div[class]").Each(func(_ int, div *goquery.Selection) {
		class, _ := div.Attr("class")
		if !infoClassRegex.MatchString(class) {
			return
		}
		text := cellText(div)
		if strings.Contains(text, ":") && utils.RuneLen(text) < maxInfoRunes {
			fmt.Fprintf(&b, " [INFO: %s]", text)
		}
	})

	return b.String()
}

// extractLinks collects anchors, catalog form actions and in-domain URL literals in
// inline scripts. Results are normalized, de-duplicated and exclude the page itself.
func (e *Extractor) extractLinks(doc *goquery.Document, pageURL string) []string {
	self, _ := e.normalizer.Normalize(pageURL, "")
	seen := map[string]bool{self: true}
	var links []string
	add := func(raw string) {
		normalized, err := e.normalizer.Normalize(raw, pageURL)
		if err != nil {
			return
		}
		if !seen[normalized] {
			seen[normalized] = true
			links = append(links, normalized)
		}
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		add(href)
	})

	doc.Find("form[action]").Each(func(_ int, form *goquery.Selection) {
		action, _ := form.Attr("action")
		if strings.Contains(strings.ToLower(action), catalogFormKeyword) {
			add(action)
		}
	})

	if e.scriptURL != nil {
		doc.Find("script").Each(func(_ int, script *goquery.Selection) {
			if _, external := script.Attr("src"); external {
				return
			}
			for _, m := range e.scriptURL.FindAllStringSubmatch(script.Text(), -1) {
				lower := strings.ToLower(m[1])
				skip := false
				for _, token := range scriptSkipTokens {
					if strings.Contains(lower, token) {
						skip = true
						break
					}
				}
				if !skip {
					add(m[1])
				}
			}
		})
	}

	return links
}
