// internal/resolver/navigate.go
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
)

// namedSites maps bare site names the planner tends to emit onto their
// canonical front pages.
var namedSites = map[string]string{
	"google":        "https://www.google.com",
	"youtube":       "https://www.youtube.com",
	"wikipedia":     "https://www.wikipedia.org",
	"amazon":        "https://www.amazon.com",
	"github":        "https://github.com",
	"reddit":        "https://www.reddit.com",
	"twitter":       "https://twitter.com",
	"x":             "https://x.com",
	"facebook":      "https://www.facebook.com",
	"instagram":     "https://www.instagram.com",
	"linkedin":      "https://www.linkedin.com",
	"bing":          "https://www.bing.com",
	"duckduckgo":    "https://duckduckgo.com",
	"ebay":          "https://www.ebay.com",
	"stackoverflow": "https://stackoverflow.com",
}

func (r *Resolver) doNavigate(ctx context.Context, step schemas.Step) (string, error) {
	raw := step.URL
	if raw == "" {
		raw = step.Description
	}

	target, isSearch := ResolveDestination(raw, r.cfg.SearchEngine)
	if err := r.driver.Navigate(ctx, target); err != nil {
		return r.failure(err, "failed to navigate to %q", target)
	}
	if err := r.driver.WaitReady(ctx); err != nil {
		return r.failure(err, "failed waiting for %q to load", target)
	}

	if isSearch {
		return fmt.Sprintf("performed a web search for %q; a results page is showing, the next step must click one of the result links", raw), nil
	}
	return fmt.Sprintf("Navigated to %s", target), nil
}

func (r *Resolver) doSearch(ctx context.Context, step schemas.Step) (string, error) {
	query := step.Text
	if query == "" {
		if lits := quotedLiterals(step.Description); len(lits) > 0 {
			query = lits[0]
		} else {
			query = stripActionWords(step.Description)
		}
	}
	if strings.TrimSpace(query) == "" {
		return "failed: the step gives no search query", nil
	}

	target := r.cfg.SearchEngine + url.QueryEscape(query)
	if err := r.driver.Navigate(ctx, target); err != nil {
		return r.failure(err, "failed to search for %q", query)
	}
	if err := r.driver.WaitReady(ctx); err != nil {
		return r.failure(err, "failed waiting for search results")
	}
	return fmt.Sprintf("performed a web search for %q; a results page is showing, the next step must click one of the result links", query), nil
}

// ResolveDestination turns loose planner output into a navigable URL. The
// boolean reports whether it fell back to a web search, which changes what a
// sensible next step looks like.
func ResolveDestination(raw, searchEngine string) (string, bool) {
	cleaned := cleanURLText(stripNavPrefixes(cleanURLText(raw)))

	if u, err := url.Parse(cleaned); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return cleaned, false
	}

	lower := strings.ToLower(cleaned)
	if site, ok := namedSites[strings.TrimSuffix(lower, ".com")]; ok {
		return site, false
	}
	if site, ok := namedSites[lower]; ok {
		return site, false
	}

	if looksLikeHost(lower) {
		return "https://" + cleaned, false
	}

	return searchEngine + url.QueryEscape(cleaned), true
}

// stripNavPrefixes removes imperative lead-ins while preserving the case of
// whatever follows, since URL paths can be case sensitive.
func stripNavPrefixes(s string) string {
	for _, p := range []string{"go to ", "open ", "visit ", "navigate to "} {
		if len(s) > len(p) && strings.EqualFold(s[:len(p)], p) {
			return strings.TrimSpace(s[len(p):])
		}
	}
	return s
}

// cleanURLText strips the quoting and trailing punctuation that rides along
// when a URL is lifted out of prose.
func cleanURLText(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	s = strings.TrimRight(s, ".,;:!?)")
	return strings.TrimSpace(s)
}

// looksLikeHost accepts bare domains such as "news.ycombinator.com" or
// "example.org/path" while rejecting sentences.
func looksLikeHost(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	host := s
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if !strings.Contains(host, ".") {
		return false
	}
	last := host[strings.LastIndexByte(host, '.')+1:]
	if len(last) < 2 {
		return false
	}
	for _, r := range last {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
