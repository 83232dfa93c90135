package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	sharedhttp "github.com/scoutline/discovery/pkg/shared/http"
)

// GoogleEngine queries the Google Programmable Search JSON API,
// authenticated with a plain API key plus search-engine ID.
type GoogleEngine struct {
	apiKey  string
	cx      string
	client  *http.Client
	baseURL string
}

// NewGoogleEngine constructs a GoogleEngine against the public
// Programmable Search API endpoint; the endpoint is not configurable.
func NewGoogleEngine(apiKey, cx string, client *http.Client) *GoogleEngine {
	if client == nil {
		client = sharedhttp.NewClient(sharedhttp.DefaultClientConfig())
	}
	return &GoogleEngine{apiKey: apiKey, cx: cx, client: client, baseURL: "https://www.googleapis.com/customsearch/v1"}
}

func (g *GoogleEngine) Name() string { return "google" }

type googleSearchResponse struct {
	Items []struct {
		Link    string `json:"link"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (g *GoogleEngine) Search(ctx context.Context, query string, n int) ([]Result, error) {
	q := url.Values{}
	q.Set("key", g.apiKey)
	q.Set("cx", g.cx)
	q.Set("q", query)
	if n > 0 {
		q.Set("num", fmt.Sprintf("%d", n))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: building google request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: google request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: google returned status %d", resp.StatusCode)
	}

	var out googleSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("search: decoding google response: %w", err)
	}

	results := make([]Result, 0, len(out.Items))
	for i, item := range out.Items {
		results = append(results, Result{URL: item.Link, Title: item.Title, Snippet: item.Snippet, Rank: i + 1})
	}
	return results, nil
}

// BingEngine queries the Bing Web Search API. Bing is the only
// configured engine in this spec that needs a full OAuth2 client
// credentials handshake rather than a bare API key (spec §4.C3 domain
// stack).
type BingEngine struct {
	tokenSource oauth2.TokenSource
	client      *http.Client
	baseURL     string
}

// NewBingEngine constructs a BingEngine. tokenURL/clientID/clientSecret
// drive the OAuth2 client-credentials flow against Azure AD.
func NewBingEngine(tokenURL, clientID, clientSecret string, client *http.Client) *BingEngine {
	if client == nil {
		client = sharedhttp.NewClient(sharedhttp.DefaultClientConfig())
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{"https://api.cognitive.microsoft.com/.default"},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
	return &BingEngine{
		tokenSource: cfg.TokenSource(ctx),
		client:      client,
		baseURL:     "https://api.bing.microsoft.com/v7.0/search",
	}
}

func (b *BingEngine) Name() string { return "bing" }

type bingSearchResponse struct {
	WebPages struct {
		Value []struct {
			URL     string `json:"url"`
			Name    string `json:"name"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

func (b *BingEngine) Search(ctx context.Context, query string, n int) ([]Result, error) {
	token, err := b.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("search: bing token handshake failed: %w", err)
	}

	q := url.Values{}
	q.Set("q", query)
	if n > 0 {
		q.Set("count", fmt.Sprintf("%d", n))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: building bing request: %w", err)
	}
	token.SetAuthHeader(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: bing request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: bing returned status %d", resp.StatusCode)
	}

	var out bingSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("search: decoding bing response: %w", err)
	}

	results := make([]Result, 0, len(out.WebPages.Value))
	for i, item := range out.WebPages.Value {
		results = append(results, Result{URL: item.URL, Title: item.Name, Snippet: item.Snippet, Rank: i + 1})
	}
	return results, nil
}

// DuckDuckGoEngine queries DuckDuckGo's Instant Answer JSON API
// (format=json): no API key, used as the last engine in the fallback
// chain.
type DuckDuckGoEngine struct {
	client  *http.Client
	baseURL string
}

// NewDuckDuckGoEngine constructs a DuckDuckGoEngine.
func NewDuckDuckGoEngine(client *http.Client) *DuckDuckGoEngine {
	if client == nil {
		client = sharedhttp.NewClient(sharedhttp.DefaultClientConfig())
	}
	return &DuckDuckGoEngine{client: client, baseURL: "https://api.duckduckgo.com/"}
}

func (d *DuckDuckGoEngine) Name() string { return "duckduckgo" }

type duckduckgoResponse struct {
	RelatedTopics []struct {
		FirstURL string `json:"FirstURL"`
		Text     string `json:"Text"`
	} `json:"RelatedTopics"`
}

func (d *DuckDuckGoEngine) Search(ctx context.Context, query string, n int) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: building duckduckgo request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: duckduckgo request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: duckduckgo returned status %d", resp.StatusCode)
	}

	var out duckduckgoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("search: decoding duckduckgo response: %w", err)
	}

	results := make([]Result, 0, len(out.RelatedTopics))
	for i, item := range out.RelatedTopics {
		if item.FirstURL == "" {
			continue
		}
		if n > 0 && len(results) >= n {
			break
		}
		results = append(results, Result{URL: item.FirstURL, Title: item.Text, Snippet: item.Text, Rank: i + 1})
	}
	return results, nil
}
