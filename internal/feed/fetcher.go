// Package feed provides feed fetching and parsing.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/jerobins/syngen/internal/model"
)

// Status classifies the outcome of one fetch.
type Status int

const (
	// StatusUpdated means the document carries one or more items.
	StatusUpdated Status = iota
	// StatusNotModified means the validators matched and the feed is unchanged.
	StatusNotModified
	// StatusEmpty means the feed parsed cleanly but holds no items.
	StatusEmpty
	// StatusHTTPError means the server answered with an error status.
	StatusHTTPError
	// StatusParseError means the body was retrieved but is not a usable feed.
	StatusParseError
)

// Result is the outcome of fetching one feed. Document is set only for
// StatusUpdated and StatusEmpty; Err carries the parse failure for
// StatusParseError.
type Result struct {
	Status   Status
	Code     int // HTTP status code, 0 when the response never arrived
	Document *model.Document
	Err      error
}

// Fetcher retrieves one feed document. Transport-level failures are returned
// as errors; everything signaled through the HTTP response surfaces in the
// Result instead.
type Fetcher interface {
	Fetch(ctx context.Context, url string, prior model.ConditionalState) (Result, error)
}

// HTTPFetcher fetches feeds over HTTP, issuing conditional requests when
// prior validators are available, and parses responses with gofeed.
type HTTPFetcher struct {
	client    *http.Client
	parser    *gofeed.Parser
	limiter   *domainLimiter
	userAgent string
	username  string
	password  string
}

// NewHTTPFetcher creates a fetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		parser:    gofeed.NewParser(),
		limiter:   newDomainLimiter(),
		userAgent: "syngen/2.0",
	}
}

// SetBasicAuth attaches credentials to every request, as required by remote
// subscription services.
func (f *HTTPFetcher) SetBasicAuth(username, password string) {
	f.username = username
	f.password = password
}

// Fetch retrieves and parses the feed at url. Requests to a single host are
// rate limited so parallel runs stay polite.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, prior model.ConditionalState) (Result, error) {
	domain := extractDomain(url)
	if err := f.limiter.acquire(ctx, domain); err != nil {
		return Result{}, fmt.Errorf("rate limit cancelled for %s: %w", url, err)
	}
	defer f.limiter.release(domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if prior.ETag != "" {
		req.Header.Set("If-None-Match", prior.ETag)
	}
	if prior.Modified != "" {
		req.Header.Set("If-Modified-Since", prior.Modified)
	}
	if f.username != "" {
		req.SetBasicAuth(f.username, f.password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return Result{Status: StatusNotModified, Code: resp.StatusCode}, nil
	}
	if resp.StatusCode > 399 {
		return Result{Status: StatusHTTPError, Code: resp.StatusCode}, nil
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return Result{Status: StatusParseError, Code: resp.StatusCode, Err: err}, nil
	}

	doc := documentFromParsed(parsed)
	doc.ETag = resp.Header.Get("ETag")
	doc.Modified = resp.Header.Get("Last-Modified")

	status := StatusUpdated
	if len(doc.Items) == 0 {
		status = StatusEmpty
	}
	return Result{Status: status, Code: resp.StatusCode, Document: doc}, nil
}

// documentFromParsed maps a gofeed feed onto the collaborator contract types.
func documentFromParsed(parsed *gofeed.Feed) *model.Document {
	doc := &model.Document{
		Title: parsed.Title,
		Link:  parsed.Link,
	}
	for _, item := range parsed.Items {
		mi := model.Item{
			Title:       item.Title,
			Link:        item.Link,
			GUID:        item.GUID,
			Description: item.Description,
		}
		if item.Content != "" {
			// gofeed folds typed content entries down to one HTML body.
			mi.Content = []model.ContentEntry{{Type: "text/html", Value: item.Content}}
		}
		for _, enc := range item.Enclosures {
			if enc == nil || enc.URL == "" {
				continue
			}
			mi.Enclosures = append(mi.Enclosures, model.Enclosure{URL: enc.URL, Type: enc.Type})
		}
		if item.PublishedParsed != nil {
			mi.Published = item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			mi.Published = item.UpdatedParsed
		}
		doc.Items = append(doc.Items, mi)
	}
	return doc
}
