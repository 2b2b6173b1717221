package parse

import (
	"errors"
	"net/url"
	"testing"

	"portal-harvester/pkg/utils"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"UppercaseSchemeAndHost", "HTTPS://Portal.EXAMPLE/Path", "https://portal.example/Path"},
		{"DefaultHTTPPort", "http://portal.example:80/a", "http://portal.example/a"},
		{"DefaultHTTPSPort", "https://portal.example:443/a", "https://portal.example/a"},
		{"NonDefaultPortKept", "http://portal.example:8080/a", "http://portal.example:8080/a"},
		{"EmptyPathBecomesRoot", "https://portal.example", "https://portal.example/"},
		{"TrailingSlashRemoved", "https://portal.example/a/b/", "https://portal.example/a/b"},
		{"RootSlashKept", "https://portal.example/", "https://portal.example/"},
		{"FragmentAndQueryDropped", "https://portal.example/a?x=1#top", "https://portal.example/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := url.Parse(tt.input)
			if err != nil {
				t.Fatalf("url.Parse(%q): %v", tt.input, err)
			}
			if got := NormalizeURL(parsed); got != tt.expected {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}

	if got := NormalizeURL(nil); got != "" {
		t.Errorf("NormalizeURL(nil) = %q, want empty", got)
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer("portal.example", []string{"language"})

	tests := []struct {
		name     string
		raw      string
		base     string
		expected string
		wantErr  error
	}{
		{"Absolute", "https://portal.example/insat-3d", "", "https://portal.example/insat-3d", nil},
		{"RelativeResolved", "../data/catalog/", "https://portal.example/missions/insat/", "https://portal.example/missions/data/catalog", nil},
		{"RootRelative", "/help", "https://portal.example/a/b", "https://portal.example/help", nil},
		{"Subdomain", "https://www.portal.example/a", "", "https://www.portal.example/a", nil},
		{"LanguageKept", "https://portal.example/a?language=hi&utm=x", "", "https://portal.example/a?language=hi", nil},
		{"QueryDropped", "https://portal.example/a?page=2", "", "https://portal.example/a", nil},
		{"FragmentOnly", "#section", "https://portal.example/a", "https://portal.example/a", nil},
		{"ForeignHost", "https://evil.example/a", "", "", utils.ErrScopeViolation},
		{"SuffixTrick", "https://notportal.example/a", "", "", utils.ErrScopeViolation},
		{"Mailto", "mailto:help@portal.example", "", "", utils.ErrScopeViolation},
		{"Javascript", "javascript:void(0)", "https://portal.example/", "", utils.ErrScopeViolation},
		{"Empty", "   ", "", "", utils.ErrParsing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.raw, tt.base)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Normalize(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestNormalizer_Idempotent(t *testing.T) {
	n := NewNormalizer("portal.example", []string{"language"})
	inputs := []string{
		"HTTPS://PORTAL.example:443/Missions/INSAT-3D/?language=hi&b=2#x",
		"https://portal.example",
		"https://portal.example/a b/c//",
		"https://portal.example/search?language=en&language=hi",
		"http://sub.portal.example:8080/x/",
	}
	for _, in := range inputs {
		once, err := n.Normalize(in, "")
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		twice, err := n.Normalize(once, "")
		if err != nil {
			t.Fatalf("Normalize(%q): %v", once, err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestNormalizer_ZeroDomainAcceptsAnyHost(t *testing.T) {
	n := NewNormalizer("", nil)
	got, err := n.Normalize("https://anywhere.example/a/?language=hi", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://anywhere.example/a" {
		t.Errorf("got %q", got)
	}
}

func TestStripQueryParam(t *testing.T) {
	got, err := StripQueryParam("https://portal.example/a?language=hi", "language")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://portal.example/a" {
		t.Errorf("StripQueryParam = %q", got)
	}
}
