package detect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// Platform is the CMS a portal runs on
type Platform string

const (
	PlatformUnknown   Platform = "unknown"
	PlatformDrupal    Platform = "drupal"
	PlatformS3WaaS    Platform = "s3waas"
	PlatformWordPress Platform = "wordpress"
	PlatformJoomla    Platform = "joomla"
	PlatformLiferay   Platform = "liferay"
)

// DetectionResult is the platform of a host and where its main content lives
type DetectionResult struct {
	Platform Platform
	Selector string // empty when the platform is unknown
}

// ContentDetector identifies the portal platform from page markup.
// Positive results are cached per host; unknown hosts are re-examined on every page.
type ContentDetector struct {
	cache *SelectorCache
	log   *logrus.Entry
}

// NewContentDetector creates a new content detector with caching
func NewContentDetector(log *logrus.Entry) *ContentDetector {
	return &ContentDetector{
		cache: NewSelectorCache(),
		log:   log,
	}
}

// Detect returns the platform of host, judged from doc. Call it before boilerplate
// removal since scripts and meta tags carry most of the signal.
func (d *ContentDetector) Detect(doc *goquery.Document, host string) DetectionResult {
	if cached, ok := d.cache.Get(host); ok {
		return cached
	}

	html, _ := doc.Html()
	htmlLower := strings.ToLower(html)
	for i := range signatures {
		sig := &signatures[i]
		if sig.Matches(doc, htmlLower) {
			result := DetectionResult{Platform: sig.Platform, Selector: sig.Selector}
			d.log.Infof("Detected %s platform for %s, content selector: %s", sig.Platform, host, sig.Selector)
			d.cache.Set(host, result)
			return result
		}
	}
	return DetectionResult{Platform: PlatformUnknown}
}

// Platform returns the cached platform for host, or PlatformUnknown
func (d *ContentDetector) Platform(host string) Platform {
	if r, ok := d.cache.Get(host); ok {
		return r.Platform
	}
	return PlatformUnknown
}
