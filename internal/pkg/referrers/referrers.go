// Package referrers derives and labels the referring domain of a pageview.
package referrers

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Direct is the bucket used when no referrer was sent.
const Direct = "direct"

type source struct {
	label    string
	category string
}

var knownSources = map[string]source{
	"google.com":           {"Google", "search"},
	"bing.com":             {"Bing", "search"},
	"duckduckgo.com":       {"DuckDuckGo", "search"},
	"ecosia.org":           {"Ecosia", "search"},
	"kagi.com":             {"Kagi", "search"},
	"yahoo.com":            {"Yahoo", "search"},
	"baidu.com":            {"Baidu", "search"},
	"yandex.ru":            {"Yandex", "search"},
	"x.com":                {"X/Twitter", "social"},
	"twitter.com":          {"X/Twitter", "social"},
	"t.co":                 {"X/Twitter", "social"},
	"facebook.com":         {"Facebook", "social"},
	"instagram.com":        {"Instagram", "social"},
	"linkedin.com":         {"LinkedIn", "social"},
	"reddit.com":           {"Reddit", "social"},
	"threads.net":          {"Threads", "social"},
	"bsky.app":             {"Bluesky", "social"},
	"mastodon.social":      {"Mastodon", "social"},
	"youtube.com":          {"YouTube", "social"},
	"weibo.com":            {"Weibo", "social"},
	"douban.com":           {"Douban", "social"},
	"zhihu.com":            {"Zhihu", "community"},
	"v2ex.com":             {"V2EX", "community"},
	"news.ycombinator.com": {"Hacker News", "community"},
	"lobste.rs":            {"Lobsters", "community"},
	"github.com":           {"GitHub", "community"},
	"dev.to":               {"DEV Community", "community"},
	"medium.com":           {"Medium", "community"},
	"substack.com":         {"Substack", "community"},
	"notion.so":            {"Notion", "community"},
	"feedly.com":           {"Feedly", "reader"},
	"inoreader.com":        {"Inoreader", "reader"},
	"mail.google.com":      {"Gmail", "email"},
	"outlook.live.com":     {"Outlook", "email"},
}

var titleCaser = cases.Title(language.Und)

// Domain strips scheme, credentials, port and path from a referrer URL.
// Bare hostnames are accepted. Returns "" when nothing usable remains.
func Domain(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return ""
	}
	if !strings.Contains(referrer, "://") {
		referrer = "http://" + referrer
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// FriendlyName returns a display label for a referrer domain. Unknown
// domains are returned title-cased, the direct bucket as "Direct".
func FriendlyName(domain string) string {
	if s, ok := lookup(domain); ok {
		return s.label
	}
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	if domain == "" || domain == Direct {
		return "Direct"
	}
	return titleCaser.String(domain[:1]) + domain[1:]
}

// Category groups a domain as search, social, community, reader, email,
// direct or other.
func Category(domain string) string {
	if s, ok := lookup(domain); ok {
		return s.category
	}
	if domain == "" || domain == Direct {
		return Direct
	}
	return "other"
}

func lookup(domain string) (source, bool) {
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	if s, ok := knownSources[domain]; ok {
		return s, true
	}
	// Subdomains and regional search hosts.
	for known, s := range knownSources {
		if strings.HasSuffix(domain, "."+known) {
			return s, true
		}
	}
	if strings.HasPrefix(domain, "google.") || strings.Contains(domain, ".google.") {
		return knownSources["google.com"], true
	}
	return source{}, false
}
