package search

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const resultsPage = `<html><body>
<div id="nav"><a href="/search?q=more">More results</a></div>
<div class="g">
  <a href="/url?q=https://news.example.com/harbor-fire&amp;sa=U">Harbor fire photo goes viral</a>
</div>
<div class="g">
  <a href="https://blog.example.org/posts/123">Original post</a>
</div>
<div class="g">
  <a href="/url?q=https://news.example.com/harbor-fire&amp;sa=U">Duplicate link to same page</a>
</div>
<a href="https://www.google.com/imghp">Back to Images</a>
<a href="https://encrypted-tbn0.gstatic.com/images?q=thumb">thumb</a>
<a href="ftp://files.example.com/x">ftp link</a>
</body></html>`

func stubServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithBase(server.URL, 5*time.Second)
}

func TestSearchImageParsesResults(t *testing.T) {
	t.Parallel()

	client := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("image_url"); got != "https://cdn.example.com/photo.jpg" {
			t.Errorf("image_url query: %q", got)
		}
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla") {
			t.Errorf("request must carry a browser user agent, got %q", ua)
		}
		fmt.Fprint(w, resultsPage)
	})

	got := client.SearchImage("https://cdn.example.com/photo.jpg")

	if !got.Found {
		t.Fatalf("expected matches: %+v", got)
	}
	if got.MatchCount != 2 || len(got.AllMatches) != 2 {
		t.Fatalf("match count: %d (%v)", got.MatchCount, got.AllMatches)
	}
	if got.EarliestMatch == nil || got.EarliestMatch.URL != "https://news.example.com/harbor-fire" {
		t.Errorf("earliest match: %+v", got.EarliestMatch)
	}
	if got.EarliestMatch.Domain != "news.example.com" {
		t.Errorf("domain: %q", got.EarliestMatch.Domain)
	}
	if got.EarliestMatch.Title != "Harbor fire photo goes viral" {
		t.Errorf("title: %q", got.EarliestMatch.Title)
	}
	if got.AllMatches[1].Domain != "blog.example.org" {
		t.Errorf("second match: %+v", got.AllMatches[1])
	}
}

func TestSearchImageNoMatches(t *testing.T) {
	t.Parallel()

	client := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/search?q=x">nav only</a></body></html>`)
	})

	got := client.SearchImage("https://cdn.example.com/photo.jpg")

	if got.Found || got.MatchCount != 0 {
		t.Fatalf("expected no matches: %+v", got)
	}
	if got.Message != "No matches found" {
		t.Errorf("message: %q", got.Message)
	}
	if got.Error != "" {
		t.Errorf("no-match is not an error: %q", got.Error)
	}
}

func TestSearchImageRateLimited(t *testing.T) {
	t.Parallel()

	client := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	got := client.SearchImage("https://cdn.example.com/photo.jpg")

	if got.Found {
		t.Fatalf("rate limited search must not report matches")
	}
	if got.Error != "rate limit exceeded" {
		t.Errorf("error: %q", got.Error)
	}
}

func TestSearchImageServerError(t *testing.T) {
	t.Parallel()

	client := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	got := client.SearchImage("https://cdn.example.com/photo.jpg")

	if got.Found || got.Error != "search unavailable: status 503" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestSearchImageUnreachableHost(t *testing.T) {
	t.Parallel()

	client := NewClientWithBase("http://127.0.0.1:1", 200*time.Millisecond)
	got := client.SearchImage("https://cdn.example.com/photo.jpg")

	if got.Found || !strings.HasPrefix(got.Error, "search unavailable:") {
		t.Fatalf("network failure must degrade to an unavailable result: %+v", got)
	}
}

func TestSearchImageEmptyURL(t *testing.T) {
	t.Parallel()

	got := NewClient().SearchImage("   ")
	if got.Found || got.Error != "invalid image URL provided" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestMatchFromHref(t *testing.T) {
	t.Parallel()

	cases := []struct {
		href   string
		wantOK bool
		domain string
	}{
		{"/url?q=https://news.example.com/a", true, "news.example.com"},
		{"https://www.blog.example.org/b", true, "blog.example.org"},
		{"https://www.google.com/imghp", false, ""},
		{"https://tbn.gstatic.com/x", false, ""},
		{"/search?q=nav", false, ""},
		{"javascript:void(0)", false, ""},
		{"", false, ""},
	}
	for _, tc := range cases {
		m, ok := matchFromHref(tc.href)
		if ok != tc.wantOK {
			t.Errorf("%q: ok=%v, want %v", tc.href, ok, tc.wantOK)
			continue
		}
		if ok && m.Domain != tc.domain {
			t.Errorf("%q: domain %q, want %q", tc.href, m.Domain, tc.domain)
		}
	}
}

func TestUnavailableResult(t *testing.T) {
	t.Parallel()

	got := UnavailableResult("Reverse search requires a public image URL")
	if got.Found || got.Message != "Reverse search requires a public image URL" {
		t.Fatalf("unexpected result: %+v", got)
	}
}
