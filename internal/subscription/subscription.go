// Package subscription resolves the set of subscribed feeds for a run.
//
// Two sources exist: a flat feed-list file maintained by an external link
// manager, and a remote OPML subscription listing fetched with basic auth.
package subscription

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Entry is one subscription record before path resolution.
type Entry struct {
	URL     string // feed URL, or a fully composed item URL in remote mode
	CacheID string // identifier for cache/state files, empty in remote mode
	Mailbox string // destination mailbox name
}

// Source lists the current subscriptions.
type Source interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// FileSource reads subscriptions from a flat file of
// "url|cache-hash|mailbox-name" records, one per line.
type FileSource struct {
	Path string
}

// Entries parses the feed-list file. Malformed records are rejected with an
// error naming the offending line; a broken subscription list is a
// configuration failure, not something to guess around.
func (s FileSource) Entries(ctx context.Context) ([]Entry, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open feed list %s: %w", s.Path, err)
	}
	defer f.Close()
	return parseFeedList(f, s.Path)
}

func parseFeedList(r io.Reader, name string) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("%s:%d: malformed record %q", name, lineNo, line)
		}
		entries = append(entries, Entry{URL: parts[0], CacheID: parts[1], Mailbox: parts[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read feed list %s: %w", name, err)
	}
	return entries, nil
}

// RemoteSource fetches an OPML subscription listing from a remote service.
// Each listed subscription is keyed by an opaque id; ItemURL is the prefix
// the id is appended to when fetching that subscription's items.
type RemoteSource struct {
	ListURL  string
	ItemURL  string
	Username string
	Password string
	Client   *http.Client
}

// Entries downloads the subscription listing and keeps only subscriptions
// with unread items. Remote-mode entries carry no cache id: the service
// already filters delivered articles server-side.
func (s RemoteSource) Entries(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ListURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build subscription request: %w", err)
	}
	req.SetBasicAuth(s.Username, s.Password)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription listing %s: %w", s.ListURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subscription listing %s: HTTP %d", s.ListURL, resp.StatusCode)
	}

	unread, err := ParseListing(resp.Body)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(unread))
	for _, u := range unread {
		entries = append(entries, Entry{URL: s.ItemURL + u.SubID, Mailbox: u.Mailbox})
	}
	return entries, nil
}
