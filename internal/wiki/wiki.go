package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"campus-assistant/internal/config"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Client looks up short article summaries through the MediaWiki action API
type Client struct {
	baseURL   string
	sentences int
	userAgent string
	http      *http.Client
}

func NewClient(cfg *config.WikipediaConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		sentences: cfg.Sentences,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout.Duration},
	}
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

type page struct {
	Title     string            `json:"title"`
	Missing   bool              `json:"missing"`
	Extract   string            `json:"extract"`
	PageProps map[string]string `json:"pageprops"`
}

type pagesResponse struct {
	Query struct {
		Pages []page `json:"pages"`
	} `json:"query"`
}

type parseResponse struct {
	Parse struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	} `json:"parse"`
}

// Lookup searches for query and returns the intro of the best matching article
// followed by its source line. A disambiguation page resolves to its first
// listed alternative. The bool is false when nothing usable was found.
func (c *Client) Lookup(ctx context.Context, query string) (string, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", false
	}

	title, err := c.search(ctx, query)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("wikipedia search failed")
		return "", false
	}
	if title == "" {
		log.Debug().Str("query", query).Msg("wikipedia search returned no results")
		return "", false
	}

	p, err := c.intro(ctx, title)
	if err != nil {
		log.Warn().Err(err).Str("title", title).Msg("wikipedia summary failed")
		return "", false
	}
	if _, ok := p.PageProps["disambiguation"]; ok {
		if p.Title != "" {
			title = p.Title
		}
		option, err := c.firstOption(ctx, title)
		if err != nil || option == "" {
			log.Warn().Err(err).Str("title", title).Msg("wikipedia disambiguation has no options")
			return "", false
		}
		title = option
		log.Debug().Str("title", title).Msg("resolving wikipedia disambiguation")
		if p, err = c.intro(ctx, title); err != nil {
			log.Warn().Err(err).Str("title", title).Msg("wikipedia summary failed")
			return "", false
		}
	}

	extract := strings.TrimSpace(p.Extract)
	if p.Missing || extract == "" {
		return "", false
	}
	if p.Title != "" {
		title = p.Title
	}
	return fmt.Sprintf("%s\n\n(Source: Wikipedia - %s)", extract, title), true
}

func (c *Client) search(ctx context.Context, query string) (string, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {"1"},
		"srprop":   {""},
	}
	var resp searchResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return "", err
	}
	if len(resp.Query.Search) == 0 {
		return "", nil
	}
	return resp.Query.Search[0].Title, nil
}

func (c *Client) intro(ctx context.Context, title string) (page, error) {
	params := url.Values{
		"action":      {"query"},
		"prop":        {"extracts|pageprops"},
		"titles":      {title},
		"redirects":   {"1"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"exsentences": {strconv.Itoa(max(c.sentences, 1))},
		"ppprop":      {"disambiguation"},
	}
	var resp pagesResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return page{}, err
	}
	if len(resp.Query.Pages) == 0 {
		return page{}, fmt.Errorf("no page for %q", title)
	}
	return resp.Query.Pages[0], nil
}

// firstOption returns the first alternative listed on a disambiguation page, in
// page order
func (c *Client) firstOption(ctx context.Context, title string) (string, error) {
	params := url.Values{
		"action":    {"parse"},
		"page":      {title},
		"prop":      {"text"},
		"redirects": {"1"},
	}
	var resp parseResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return "", err
	}
	doc, err := html.Parse(strings.NewReader(resp.Parse.Text))
	if err != nil {
		return "", fmt.Errorf("failed to parse disambiguation page: %w", err)
	}
	return firstListedLink(doc), nil
}

// firstListedLink finds the first list item holding a link, skipping table of
// contents entries, and returns the link's title
func firstListedLink(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Li && !strings.Contains(attr(n, "class"), "tocsection") {
		if a := findElement(n, atom.A); a != nil {
			if t := strings.TrimSpace(attr(a, "title")); t != "" {
				return t
			}
			if t := strings.TrimSpace(textOf(a)); t != "" {
				return t
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if t := firstListedLink(child); t != "" {
			return t
		}
	}
	return ""
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.DataAtom == a {
			return child
		}
		if found := findElement(child, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		b.WriteString(textOf(child))
	}
	return b.String()
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wikipedia returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode wikipedia response: %w", err)
	}
	return nil
}
