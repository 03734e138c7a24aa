package subscription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSourceEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedlist.txt")
	content := "http://example.com/a.xml|aaa111|News\n" +
		"\n" +
		"http://example.com/b.xml|bbb222|Tech\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	entries, err := FileSource{Path: path}.Entries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{URL: "http://example.com/a.xml", CacheID: "aaa111", Mailbox: "News"},
		{URL: "http://example.com/b.xml", CacheID: "bbb222", Mailbox: "Tech"},
	}, entries)
}

func TestFileSourceMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedlist.txt")
	require.NoError(t, os.WriteFile(path, []byte("http://example.com/a.xml|aaa\n"), 0o600))

	_, err := FileSource{Path: path}.Entries(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":1:")
}

func TestFileSourceMissingFile(t *testing.T) {
	_, err := FileSource{Path: filepath.Join(t.TempDir(), "nope")}.Entries(context.Background())
	assert.Error(t, err)
}

const sampleListing = `<?xml version="1.0"?>
<opml version="1.0">
  <body>
    <outline title="Tech News">
      <outline title="Example" xmlUrl="http://example.com/a.xml"
               BloglinesSubId="101" BloglinesUnread="3"/>
      <outline title="Quiet" xmlUrl="http://example.com/b.xml"
               BloglinesSubId="102" BloglinesUnread="0"/>
    </outline>
    <outline title="Weblogs">
      <outline title="Someone" xmlUrl="http://example.com/c.xml"
               BloglinesSubId="103" BloglinesUnread="12"/>
    </outline>
  </body>
</opml>`

func TestParseListing(t *testing.T) {
	unread, err := ParseListing(strings.NewReader(sampleListing))
	require.NoError(t, err)
	assert.Equal(t, []Unread{
		{SubID: "101", Mailbox: "in_tech news"},
		{SubID: "103", Mailbox: "in_weblogs"},
	}, unread)
}

func TestParseListingBadXML(t *testing.T) {
	_, err := ParseListing(strings.NewReader("not xml"))
	assert.Error(t, err)
}

func TestRemoteSourceEntries(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		sawAuth = ok && user == "reader" && pass == "secret"
		w.Write([]byte(sampleListing))
	}))
	defer srv.Close()

	src := RemoteSource{
		ListURL:  srv.URL,
		ItemURL:  "http://items.example.com/get?s=",
		Username: "reader",
		Password: "secret",
	}
	entries, err := src.Entries(context.Background())
	require.NoError(t, err)
	assert.True(t, sawAuth)
	assert.Equal(t, []Entry{
		{URL: "http://items.example.com/get?s=101", Mailbox: "in_tech news"},
		{URL: "http://items.example.com/get?s=103", Mailbox: "in_weblogs"},
	}, entries)
}

func TestRemoteSourceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := RemoteSource{ListURL: srv.URL}.Entries(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
