package detect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Signature defines detection patterns for a portal platform
type Signature struct {
	Platform     Platform
	Selector     string   // CSS selector for main content
	Generators   []string // substrings of <meta name="generator">
	Attributes   []string // HTML attributes to look for (e.g., "data-drupal-selector")
	Classes      []string // CSS classes to look for; a trailing * matches a class prefix
	Scripts      []string // script src patterns
	HTMLPatterns []string // substrings of the lowercased raw HTML
}

// Matches returns true if the document matches this platform's signature
func (sig *Signature) Matches(doc *goquery.Document, htmlLower string) bool {
	if gen, ok := doc.Find(`meta[name="generator"]`).First().Attr("content"); ok {
		gen = strings.ToLower(gen)
		for _, g := range sig.Generators {
			if strings.Contains(gen, strings.ToLower(g)) {
				return true
			}
		}
	}

	for _, attr := range sig.Attributes {
		if doc.Find("["+attr+"]").Length() > 0 {
			return true
		}
	}

	for _, class := range sig.Classes {
		if prefix, ok := strings.CutSuffix(class, "*"); ok {
			if hasClassPrefix(doc, prefix) {
				return true
			}
		} else if doc.Find("."+class).Length() > 0 {
			return true
		}
	}

	for _, pattern := range sig.Scripts {
		found := false
		doc.Find("script[src], link[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src := s.AttrOr("src", s.AttrOr("href", ""))
			found = strings.Contains(src, pattern)
			return !found
		})
		if found {
			return true
		}
	}

	for _, pattern := range sig.HTMLPatterns {
		if strings.Contains(htmlLower, pattern) {
			return true
		}
	}
	return false
}

func hasClassPrefix(doc *goquery.Document, prefix string) bool {
	found := false
	doc.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, c := range strings.Fields(s.AttrOr("class", "")) {
			if strings.HasPrefix(c, prefix) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// signatures are checked in order. S3WaaS sites run on WordPress, so it comes first.
var signatures = []Signature{
	{
		Platform:     PlatformDrupal,
		Selector:     "#block-system-main, .region-content, #main-content, .node__content",
		Generators:   []string{"drupal"},
		Attributes:   []string{"data-drupal-selector", "data-drupal-messages"},
		Classes:      []string{"region-content", "node__content"},
		Scripts:      []string{"/misc/drupal.js", "/core/misc/drupal"},
		HTMLPatterns: []string{"drupal.settings", "drupalsettings", "/sites/default/files/"},
	},
	{
		Platform:     PlatformS3WaaS,
		Selector:     "#SkipContent, .entry-content",
		HTMLPatterns: []string{"s3waas"},
	},
	{
		Platform:   PlatformWordPress,
		Selector:   ".entry-content, .post-content, article",
		Generators: []string{"wordpress"},
		Classes:    []string{"wp-site-blocks", "wp-block-*"},
		Scripts:    []string{"/wp-content/", "/wp-includes/"},
	},
	{
		Platform:   PlatformJoomla,
		Selector:   ".item-page, .com-content-article, #content",
		Generators: []string{"joomla"},
		Scripts:    []string{"/media/jui/", "/media/system/js/"},
	},
	{
		Platform:     PlatformLiferay,
		Selector:     ".portlet-body, #content",
		Classes:      []string{"portlet-boundary*"},
		Scripts:      []string{"/o/frontend-js"},
		HTMLPatterns: []string{"liferay.themedisplay"},
	},
}

// SelectorFor returns the content selector for a known platform
func SelectorFor(p Platform) string {
	for _, sig := range signatures {
		if sig.Platform == p {
			return sig.Selector
		}
	}
	return ""
}
