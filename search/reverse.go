package search

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Match is one page that appears to contain the searched image.
type Match struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
	Title  string `json:"title"`
}

// Result is the opaque signal handed to the decision engine. The engine
// serializes it verbatim and makes no assumptions about its shape.
type Result struct {
	Found         bool    `json:"found"`
	MatchCount    int     `json:"match_count,omitempty"`
	EarliestMatch *Match  `json:"earliest_match,omitempty"`
	AllMatches    []Match `json:"all_matches,omitempty"`
	SearchURL     string  `json:"search_url,omitempty"`
	Message       string  `json:"message,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Client performs reverse image searches by scraping the public search
// results page. Failures never abort an analysis: they degrade to a
// found=false result the decision engine consumes like any other signal.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    "https://www.google.com/searchbyimage",
	}
}

// NewClientWithBase is used by tests to point the scraper at a stub server.
func NewClientWithBase(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// SearchImage looks for earlier instances of the image at imageURL.
func (c *Client) SearchImage(imageURL string) Result {
	if strings.TrimSpace(imageURL) == "" {
		return Result{Found: false, Error: "invalid image URL provided"}
	}

	searchURL := fmt.Sprintf("%s?image_url=%s&safe=off", c.baseURL, url.QueryEscape(imageURL))

	req, err := http.NewRequest(http.MethodGet, searchURL, nil)
	if err != nil {
		return Result{Found: false, Error: "invalid image URL provided", SearchURL: searchURL}
	}
	// Plain library user agents get served a CAPTCHA page immediately.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Found: false, Error: "search unavailable: " + err.Error(), SearchURL: searchURL}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{Found: false, Error: "rate limit exceeded", SearchURL: searchURL}
	}
	if resp.StatusCode != http.StatusOK {
		return Result{
			Found:     false,
			Error:     fmt.Sprintf("search unavailable: status %d", resp.StatusCode),
			SearchURL: searchURL,
		}
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return Result{Found: false, Error: "search unavailable: unparsable results page", SearchURL: searchURL}
	}

	matches := extractMatches(doc)
	if len(matches) == 0 {
		return Result{Found: false, MatchCount: 0, Message: "No matches found", SearchURL: searchURL}
	}

	return Result{
		Found:         true,
		MatchCount:    len(matches),
		EarliestMatch: &matches[0],
		AllMatches:    matches,
		SearchURL:     searchURL,
	}
}

// extractMatches walks the parsed results page collecting outbound result
// links. Links back into the search engine itself are navigation, not
// matches, and are skipped.
func extractMatches(doc *html.Node) []Match {
	var matches []Match
	seen := map[string]bool{}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attrValue(n, "href")
			if m, ok := matchFromHref(href); ok && !seen[m.URL] {
				m.Title = strings.TrimSpace(nodeText(n))
				seen[m.URL] = true
				matches = append(matches, m)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return matches
}

func matchFromHref(href string) (Match, bool) {
	// Result links are wrapped as /url?q=<target>.
	if strings.HasPrefix(href, "/url?") {
		parsed, err := url.Parse(href)
		if err != nil {
			return Match{}, false
		}
		href = parsed.Query().Get("q")
	}

	target, err := url.Parse(href)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return Match{}, false
	}
	host := strings.TrimPrefix(target.Hostname(), "www.")
	if host == "" || strings.Contains(host, "google.") || strings.Contains(host, "gstatic.") {
		return Match{}, false
	}
	return Match{URL: target.String(), Domain: host}, true
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		sb.WriteString(nodeText(child))
	}
	return sb.String()
}

// UnavailableResult is the signal recorded when no URL is available for a
// reverse search (file uploads carry no public URL to query by).
func UnavailableResult(reason string) Result {
	return Result{Found: false, Message: reason}
}
