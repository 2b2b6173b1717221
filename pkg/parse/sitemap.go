package parse

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"portal-harvester/pkg/utils"
)

// XMLURL represents a <url> element in a sitemap
type XMLURL struct {
	Loc      string `xml:"loc"`
	LastMod  string `xml:"lastmod,omitempty"`
	Priority string `xml:"priority,omitempty"`
}

// XMLURLSet represents a <urlset> element in a sitemap
type XMLURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []XMLURL `xml:"url"`
}

// XMLSitemap represents a <sitemap> element in a sitemap index file
type XMLSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLSitemapIndex represents a <sitemapindex> element
type XMLSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []XMLSitemap `xml:"sitemap"`
}

// ParseSitemap decodes either a sitemap index or a URL set.
// Exactly one of the returned slices is populated on success.
func ParseSitemap(data []byte) (nested []string, urls []XMLURL, err error) {
	var index XMLSitemapIndex
	errIndex := xml.Unmarshal(data, &index)
	if errIndex == nil {
		for _, s := range index.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				nested = append(nested, loc)
			}
		}
		return nested, nil, nil
	}

	var set XMLURLSet
	errSet := xml.Unmarshal(data, &set)
	if errSet != nil {
		return nil, nil, fmt.Errorf("%w: not a sitemap index (%v) or url set (%v)", utils.ErrParsing, errIndex, errSet)
	}
	for _, u := range set.URLs {
		u.Loc = strings.TrimSpace(u.Loc)
		if u.Loc != "" {
			urls = append(urls, u)
		}
	}
	return nil, urls, nil
}

// SitemapPriority reads a <priority> value, returning def when it is missing or outside [0,1]
func SitemapPriority(raw string, def float64) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil || p < 0 || p > 1 {
		return def
	}
	return p
}
