// Package scrape implements the Scrape Client collaborator (spec §4.C4):
// fetch a URL and project it to markdown, with a batch mode and the same
// one-retry transient-failure discipline as the search client.
package scrape

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scoutline/discovery/internal/circuitbreaker"
)

// Status is the outcome of one scrape attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Page is the result of scraping one URL.
type Page struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Backend is the out-of-scope vendor collaborator that actually fetches
// and renders a page to markdown (spec §6: `Scrape.scrape(url)`).
type Backend interface {
	Fetch(ctx context.Context, url string) (markdown string, err error)
}

// Client wraps a Backend with circuit breaking and batch fan-out.
type Client struct {
	backend Backend
	breaker *circuitbreaker.Manager
	log     *logrus.Entry
}

// New constructs a Client.
func New(backend Backend, breaker *circuitbreaker.Manager) *Client {
	return &Client{backend: backend, breaker: breaker, log: logrus.WithField("component", "scrape_client")}
}

// Scrape fetches one URL, retrying once on transient failure (spec §5).
func (c *Client) Scrape(ctx context.Context, url string) Page {
	run := func() (string, error) {
		return c.backend.Fetch(ctx, url)
	}

	exec := run
	if c.breaker != nil {
		exec = func() (string, error) {
			return circuitbreaker.Execute(c.breaker, "scrape:"+url, run)
		}
	}

	content, err := exec()
	if err != nil {
		c.log.WithError(err).WithField("url", url).Debug("scrape failed, retrying once")
		select {
		case <-ctx.Done():
			return Page{URL: url, Status: StatusError, Error: ctx.Err().Error()}
		case <-time.After(time.Second):
		}
		content, err = exec()
	}
	if err != nil {
		c.log.WithError(err).WithField("url", url).Warn("scrape failed after retry")
		return Page{URL: url, Status: StatusError, Error: err.Error()}
	}
	return Page{URL: url, Content: content, Status: StatusSuccess}
}

// BatchScrape fetches every URL, preserving order. One URL's failure
// never aborts the batch.
func (c *Client) BatchScrape(ctx context.Context, urls []string) []Page {
	pages := make([]Page, len(urls))
	for i, u := range urls {
		pages[i] = c.Scrape(ctx, u)
	}
	return pages
}
