package wiki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"campus-assistant/internal/config"

	"golang.org/x/net/html"
)

// fakeWiki serves search results, pages and rendered page html keyed by title
func fakeWiki(t *testing.T, search map[string]string, pages map[string]page, rendered map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("format") != "json" || q.Get("formatversion") != "2" {
			http.Error(w, "bad format", http.StatusBadRequest)
			return
		}
		var body any
		switch {
		case q.Get("list") == "search":
			results := []map[string]string{}
			if title, ok := search[q.Get("srsearch")]; ok {
				results = append(results, map[string]string{"title": title})
			}
			body = map[string]any{"query": map[string]any{"search": results}}
		case q.Get("action") == "parse":
			text, ok := rendered[q.Get("page")]
			if !ok {
				http.Error(w, "missing page", http.StatusNotFound)
				return
			}
			body = map[string]any{"parse": map[string]string{"title": q.Get("page"), "text": text}}
		case q.Get("titles") != "":
			p, ok := pages[q.Get("titles")]
			if !ok {
				p = page{Title: q.Get("titles"), Missing: true}
			}
			body = map[string]any{"query": map[string]any{"pages": []page{p}}}
		default:
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
}

// planet is listed first even though element sorts first alphabetically
const mercuryDisambiguation = `<div class="mw-parser-output">
<p><b>Mercury</b> may refer to:</p>
<div id="toc"><ul><li class="toclevel-1 tocsection-1"><a href="#Science"><span>Science</span></a></li></ul></div>
<ul>
<li>Heading without a link</li>
<li><a href="/wiki/Mercury_(planet)" title="Mercury (planet)">Mercury (planet)</a>, the closest planet to the Sun</li>
<li><a href="/wiki/Mercury_(element)" title="Mercury (element)">Mercury (element)</a>, a chemical element</li>
</ul>
</div>`

func newTestClient(baseURL string) *Client {
	return NewClient(&config.WikipediaConfig{
		BaseURL:   baseURL,
		Sentences: 3,
		Timeout:   config.Duration{Duration: 5 * time.Second},
		UserAgent: "test",
	})
}

func TestLookup(t *testing.T) {
	gopher := page{Title: "Gopher", Extract: "Gophers are rodents."}
	mercury := page{Title: "Mercury (planet)", Extract: "Mercury is the first planet."}
	element := page{Title: "Mercury (element)", Extract: "Mercury is a chemical element."}
	disamb := page{Title: "Mercury", PageProps: map[string]string{"disambiguation": ""}}
	empty := page{Title: "Blank", PageProps: map[string]string{"disambiguation": ""}}

	srv := fakeWiki(t,
		map[string]string{"gopher": "Gopher", "mercury": "Mercury", "ghost": "Ghost page", "blank": "Blank"},
		map[string]page{
			"Gopher": gopher, "Mercury": disamb, "Blank": empty,
			"Mercury (planet)": mercury, "Mercury (element)": element,
		},
		map[string]string{
			"Mercury": mercuryDisambiguation,
			"Blank":   "<p>Nothing to choose from.</p>",
		},
	)
	defer srv.Close()
	c := newTestClient(srv.URL)

	tests := []struct {
		name   string
		query  string
		want   string
		wantOK bool
	}{
		{"article", "gopher", "Gophers are rodents.\n\n(Source: Wikipedia - Gopher)", true},
		{"disambiguation takes first alternative", "mercury", "Mercury is the first planet.\n\n(Source: Wikipedia - Mercury (planet))", true},
		{"no search result", "zzzz", "", false},
		{"missing page", "ghost", "", false},
		{"disambiguation without options", "blank", "", false},
		{"blank query", "  ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Lookup(context.Background(), tt.query)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.query, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLookupServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if got, ok := newTestClient(srv.URL).Lookup(context.Background(), "gopher"); ok || got != "" {
		t.Errorf("Lookup() = %q, %v; want failure", got, ok)
	}
}

func TestFirstListedLink(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"page order", mercuryDisambiguation, "Mercury (planet)"},
		{"text when no title", `<ul><li><a href="/wiki/X"> Xenon </a></li></ul>`, "Xenon"},
		{"no list items", `<p><a title="Loose">Loose</a></p>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := html.Parse(strings.NewReader(tt.html))
			if err != nil {
				t.Fatal(err)
			}
			if got := firstListedLink(doc); got != tt.want {
				t.Errorf("firstListedLink() = %q, want %q", got, tt.want)
			}
		})
	}
}
