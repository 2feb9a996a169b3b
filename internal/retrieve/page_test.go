package retrieve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/veracity/internal/model"
)

func testFetcher() *PageFetcher {
	return NewPageFetcher(model.HTTPConfig{
		UserAgent:    "veracity-test/1.0",
		Timeout:      5 * time.Second,
		MaxBodyBytes: 1 << 20,
	})
}

func TestEnrich(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
		case "/article":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body><p>Coffee consumption has no measurable effect on adult height.</p></body></html>`))
		case "/private/secret":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body><p>hidden</p></body></html>`))
		case "/data.json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"not": "html"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	evidence := []model.Evidence{
		{URL: server.URL + "/article", Snippet: "snippet"},
		{URL: server.URL + "/private/secret"},
		{URL: server.URL + "/data.json"},
		{URL: server.URL + "/missing"},
	}

	testFetcher().Enrich(context.Background(), evidence)

	if !strings.Contains(evidence[0].Text, "no measurable effect") {
		t.Errorf("article not enriched: %q", evidence[0].Text)
	}
	if evidence[1].Text != "" {
		t.Error("robots-disallowed page was fetched")
	}
	if evidence[2].Text != "" {
		t.Error("non-HTML response used as page text")
	}
	if evidence[3].Text != "" {
		t.Error("404 response used as page text")
	}
}

func TestEnrich_CancelledContextStops(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("User-agent: *\nAllow: /\n"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	evidence := []model.Evidence{{URL: server.URL + "/a"}, {URL: server.URL + "/b"}}
	testFetcher().Enrich(ctx, evidence)

	if calls != 0 {
		t.Errorf("expected no fetches after cancel, got %d", calls)
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"paragraphs joined",
			`<html><body><p>First.</p><p>Second.</p></body></html>`,
			"First. Second.",
		},
		{
			"script and nav skipped",
			`<html><body><nav><p>menu</p></nav><p>Real text.</p><script>var x = 1;</script></body></html>`,
			"Real text.",
		},
		{
			"bare body text ignored",
			`<html><body>loose text<p>kept</p></body></html>`,
			"kept",
		},
		{
			"list items and headings",
			`<html><body><h2>Title</h2><ul><li>one</li><li>two</li></ul></body></html>`,
			"Title one two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractText(tt.html); got != tt.want {
				t.Errorf("ExtractText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractText_Capped(t *testing.T) {
	long := "<html><body><p>" + strings.Repeat("word ", 2000) + "</p></body></html>"
	got := ExtractText(long)
	if len(got) > maxExtractedTextLen {
		t.Errorf("extracted %d bytes, cap is %d", len(got), maxExtractedTextLen)
	}
	if got == "" {
		t.Error("expected text")
	}
}

func TestExtractText_CapKeepsValidUTF8(t *testing.T) {
	// 3-byte runes do not divide the byte cap evenly; a byte-wise cut
	// would leave a torn rune at the end.
	long := "<html><body><p>" + strings.Repeat("€", maxExtractedTextLen) + "</p></body></html>"
	got := ExtractText(long)
	if len(got) > maxExtractedTextLen {
		t.Errorf("extracted %d bytes, cap is %d", len(got), maxExtractedTextLen)
	}
	if !utf8.ValidString(got) {
		t.Error("capped text is not valid UTF-8")
	}
}
