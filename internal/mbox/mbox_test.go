package mbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerobins/syngen/internal/model"
	"github.com/jerobins/syngen/internal/transform"
)

func sampleMessage() model.Message {
	return model.Message{
		From:        `"Example Feed" <SynGen@SynGen.rss>`,
		To:          `"RSS eMail Reader" <blogger@SynGen.rss>`,
		Subject:     "First Post",
		MessageID:   "<post-1@http://example.com/>",
		Date:        time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC),
		ContentType: "text/html",
		Charset:     "utf-8",
		Link:        "http://example.com/1",
		Body:        "<h4><a href=\"http://example.com/1\">First Post</a></h4>\n<p>\nhello\n</p>\n",
		GUID:        "post-1",
	}
}

func TestSerialize(t *testing.T) {
	out, err := Serialize(sampleMessage())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "From SynGen@SynGen.rss Tue Jun  4 12:00:00 2024\n"))
	assert.True(t, strings.HasSuffix(out, "\n\n"), "message must end with a blank-line separator")

	lower := strings.ToLower(out)
	assert.Contains(t, lower, "subject: first post")
	assert.Contains(t, lower, "message-id: <post-1@http://example.com/>")
	assert.Contains(t, lower, "x-rss-link: http://example.com/1")
	assert.Contains(t, lower, "charset=utf-8")
	assert.Contains(t, out, "hello")
	assert.NotContains(t, lower, "x-rss-enclosure")
}

func TestSerializeEnclosureHeader(t *testing.T) {
	msg := sampleMessage()
	msg.EnclosureURL = "http://example.com/1.mp3"
	out, err := Serialize(msg)
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(out), "x-rss-enclosure: http://example.com/1.mp3")
}

func TestSerializeLatin1(t *testing.T) {
	msg := model.Message{
		From:        `"SynGen RSS Aggregator" <SynGen@SynGen.rss>`,
		To:          `"RSS eMail Reader" <blogger@SynGen.rss>`,
		Subject:     "Error in RSS Feed",
		MessageID:   "<http://example.com/feed@feederror.syngen.rss>",
		Date:        time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC),
		ContentType: "text/plain",
		Charset:     "iso-8859-1",
		Body:        "Error Detail: café — crash\n",
	}
	out, err := Serialize(msg)
	require.NoError(t, err)

	assert.Contains(t, out, "charset=iso-8859-1")
	// U+00E9 narrows to the latin-1 byte, U+2014 is substituted.
	assert.Contains(t, out, "caf\xe9 ? crash")
}

func TestSerializeErrorMessage(t *testing.T) {
	now := time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC)
	msg := transform.ErrorMessage("http://example.com/dead.xml", "received HTTP error 500", now)

	out, err := Serialize(msg)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "From SynGen@SynGen.rss Tue Jun  4 12:00:00 2024\n"))
	assert.True(t, strings.HasSuffix(out, "\n\n"))

	lower := strings.ToLower(out)
	assert.Contains(t, lower, "subject: error in rss feed")
	assert.Contains(t, lower, "charset=iso-8859-1")
	assert.Contains(t, out, "Error Detail: received HTTP error 500")
	assert.Contains(t, out, "http://example.com/dead.xml")
}

func TestAppendCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Offline")
	out, err := Serialize(sampleMessage())
	require.NoError(t, err)

	require.NoError(t, Appender{}.Append(path, out))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
}

func TestAppendAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Offline")
	a := Appender{}
	require.NoError(t, a.Append(path, "first\n\n"))
	require.NoError(t, a.Append(path, "second\n\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond\n\n", string(data))
}

func TestAppendDryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Offline")
	require.NoError(t, Appender{DryRun: true}.Append(path, "data"))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

// TestAppendConcurrent drives many writers at one mailbox and verifies no
// append interleaves with another: every message body must appear as one
// contiguous block.
func TestAppendConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Offline")
	a := Appender{}

	const writers = 8
	const lines = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			var b strings.Builder
			for j := 0; j < lines; j++ {
				fmt.Fprintf(&b, "writer-%d\n", id)
			}
			b.WriteString("\n")
			assert.NoError(t, a.Append(path, b.String()))
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Each writer's block must be contiguous: scanning the file, a writer id
	// must repeat exactly `lines` times before any other id shows up.
	seen := make(map[string]int)
	current := ""
	count := 0
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if line == "" {
			continue
		}
		if line != current {
			if current != "" {
				assert.Equal(t, lines, count, "block for %s was split", current)
				seen[current]++
			}
			current = line
			count = 0
		}
		count++
	}
	assert.Equal(t, lines, count)
	seen[current]++

	assert.Len(t, seen, writers)
	for id, n := range seen {
		assert.Equal(t, 1, n, "writer %s appeared in multiple blocks", id)
	}
}
