package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	sharedhttp "github.com/scoutline/discovery/pkg/shared/http"
)

// MaxBodyBytes caps how much of a response body is read, protecting
// against a misbehaving server streaming an unbounded response.
const MaxBodyBytes = 5 << 20 // 5MiB

// HTTPBackend fetches a URL and projects its HTML body to a flattened,
// markdown-ish text block: headings prefixed with '#', links rendered
// inline as "text (href)", everything else as plain text. Good enough
// for an LLM judge prompt; not a faithful HTML-to-markdown converter.
type HTTPBackend struct {
	client *http.Client
}

// NewHTTPBackend constructs an HTTPBackend.
func NewHTTPBackend(client *http.Client) *HTTPBackend {
	if client == nil {
		client = sharedhttp.NewClient(sharedhttp.DefaultClientConfig())
	}
	return &HTTPBackend{client: client}
}

func (b *HTTPBackend) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("scrape: building request: %w", err)
	}
	req.Header.Set("User-Agent", "ScoutlineDiscoveryBot/1.0")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("scrape: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("scrape: %s returned status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(&limitedReader{r: resp.Body, limit: MaxBodyBytes})
	if err != nil {
		return "", fmt.Errorf("scrape: parsing html: %w", err)
	}

	doc.Find("script, style, nav, footer").Remove()

	var out strings.Builder
	doc.Find("h1, h2, h3, p, a, li").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1", "h2", "h3":
			out.WriteString("# " + text + "\n")
		case "a":
			if href, ok := s.Attr("href"); ok && href != "" {
				out.WriteString(text + " (" + href + ")\n")
				return
			}
			out.WriteString(text + "\n")
		default:
			out.WriteString(text + "\n")
		}
	})

	return out.String(), nil
}

// limitedReader bounds how many bytes goquery will read from a response
// body.
type limitedReader struct {
	r     io.Reader
	limit int
	read  int
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.read >= l.limit {
		return 0, fmt.Errorf("scrape: response exceeded %d byte limit", l.limit)
	}
	if remaining := l.limit - l.read; len(p) > remaining {
		p = p[:remaining]
	}
	n, err := l.r.Read(p)
	l.read += n
	return n, err
}
