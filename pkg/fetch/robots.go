package fetch

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

type robotsEntry struct {
	once sync.Once
	data *robotstxt.RobotsData
}

// RobotsChecker fetches, parses and caches robots.txt once per scheme and host.
// Missing or unreadable robots.txt allows everything.
type RobotsChecker struct {
	fetcher   *Fetcher
	gate      *Gate
	userAgent string
	entries   map[string]*robotsEntry
	mu        sync.Mutex
	log       *logrus.Entry
}

// NewRobotsChecker creates a RobotsChecker. gate may be nil.
func NewRobotsChecker(fetcher *Fetcher, gate *Gate, userAgent string, log *logrus.Entry) *RobotsChecker {
	return &RobotsChecker{
		fetcher:   fetcher,
		gate:      gate,
		userAgent: userAgent,
		entries:   make(map[string]*robotsEntry),
		log:       log,
	}
}

func (rc *RobotsChecker) robotsFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host
	rc.mu.Lock()
	entry, ok := rc.entries[key]
	if !ok {
		entry = &robotsEntry{}
		rc.entries[key] = entry
	}
	rc.mu.Unlock()

	entry.once.Do(func() {
		robotsURL := key + "/robots.txt"
		robotsLog := rc.log.WithField("robots_url", robotsURL)

		if rc.gate != nil {
			release, err := rc.gate.Enter(ctx, u.Hostname())
			if err != nil {
				robotsLog.Warnf("Could not enter aggregation gate: %v", err)
				return
			}
			defer release()
		}

		body, err := rc.fetcher.Get(ctx, robotsURL)
		if err != nil {
			robotsLog.Infof("robots.txt unavailable, allowing all: %v", err)
			return
		}
		data, err := robotstxt.FromBytes(body)
		if err != nil {
			robotsLog.Warnf("robots.txt unparseable, allowing all: %v", err)
			return
		}
		robotsLog.Info("Fetched and parsed robots.txt")
		entry.data = data
	})
	return entry.data
}

// Allowed reports whether the configured user agent may fetch rawURL
func (rc *RobotsChecker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	data := rc.robotsFor(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), rc.userAgent)
}

// Sitemaps returns the Sitemap directives of the robots.txt governing rawURL
func (rc *RobotsChecker) Sitemaps(ctx context.Context, rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	data := rc.robotsFor(ctx, u)
	if data == nil {
		return nil
	}
	return data.Sitemaps
}
